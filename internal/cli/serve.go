package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/actiongate/internal/server"
)

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "gRPC listen port (default server.port)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC authorization server",
	Long: "Runs actiongate as a central authorization server over gRPC.\n" +
		"Agents connect with --remote or the client package. The constitution is\n" +
		"reloaded when its file changes; the audit log is flushed on shutdown.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	srv := server.New(a.authz, server.Config{Port: port, FlushPath: cfg.Audit.FlushPath}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.watchConstitution(ctx, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down actiongate server...")
			cancel()
			srv.GracefulStop()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(os.Stderr, "actiongate server listening on :%d\n", port)
	fmt.Fprintf(os.Stderr, "Constitution: %s (hot-reload enabled)\n", cfg.Constitution)
	if !a.constitution.Current().Loaded() {
		fmt.Fprintln(os.Stderr, "warning: constitution not loaded, every request will be denied")
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve()
}
