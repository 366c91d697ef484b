package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/client"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/server"
)

func init() {
	rootCmd.AddCommand(batchCmd)
	addActorFlags(batchCmd)
}

var batchCmd = &cobra.Command{
	Use:   "batch <items.json|->",
	Short: "Decide several actions for one actor",
	Long: "Reads a JSON array of {\"action\", \"target\": {\"kind\", \"path\"}, \"context\"} items\n" +
		"from a file or stdin and decides every one. Exit 0 only when all are allowed;\n" +
		"otherwise 2 if any item is held and none denied, else 1.",
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	items, err := readBatchItems(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	actor := cliActor()
	var res authorizer.BatchResult
	if authRemote != "" {
		c, err := client.New(authRemote)
		if err != nil {
			return err
		}
		defer c.Close()
		res = c.AuthorizeBatch(ctx, server.AuthorizeBatchRequest{Actor: actor, Items: items, ForceGateRerun: authForceGate})
	} else {
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		res = a.authz.AuthorizeBatch(ctx, actor, items, authForceGate)
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	if err := printJSON(res); err != nil {
		return err
	}
	if !res.AllAllowed {
		exitFor(batchMode(res))
	}
	return nil
}

// batchMode folds a batch into the mode that determines its exit code.
func batchMode(res authorizer.BatchResult) model.Mode {
	if res.AllAllowed {
		return model.Allow
	}
	if slices.ContainsFunc(res.Results, func(d model.Decision) bool { return d.Mode != model.Allow && d.Mode != model.Hold }) {
		return model.Deny
	}
	if len(res.Results) == 0 {
		return model.Deny
	}
	return model.Hold
}

func readBatchItems(path string) ([]authorizer.BatchItem, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open batch file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var items []authorizer.BatchItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("parse batch items: %w", err)
	}
	return items, nil
}
