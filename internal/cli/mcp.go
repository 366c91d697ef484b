package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	gatemcp "github.com/ppiankov/actiongate/internal/mcp"
)

var mcpActor string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpActor, "actor", "", "Default caller label for tool calls that name no actor")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs actiongate as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: actiongate_authorize, actiongate_authorize_batch,\n" +
		"actiongate_gate_status, actiongate_pending.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.watchConstitution(ctx, logger)

	srv := gatemcp.New(a.authz, a.holds, gatemcp.Config{Actor: mcpActor, Version: version}, logger)

	fmt.Fprintln(os.Stderr, "actiongate MCP server running on stdio")
	err = srv.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
