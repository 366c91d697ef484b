package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/authorizer"
	"github.com/ppiankov/actiongate/internal/client"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/policy"
	"github.com/ppiankov/actiongate/internal/server"
)

// Exit codes of authorize and batch.
const (
	exitDenied = 1
	exitHeld   = 2
)

var (
	authActor     string
	authActorType string
	authKind      string
	authContext   map[string]string
	authForceGate bool
	authRemote    string
)

func init() {
	rootCmd.AddCommand(authorizeCmd)
	addActorFlags(authorizeCmd)
	authorizeCmd.Flags().StringVar(&authKind, "kind", "file", "Resource kind (file|dir|repo|branch|snapshot)")
	authorizeCmd.Flags().StringToStringVar(&authContext, "context", nil, "Request context, e.g. --context branch=main,env=prod")
}

// addActorFlags registers the flags shared by authorize and batch.
func addActorFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&authActor, "actor", "", "Caller label, classified into an actor type (required)")
	cmd.Flags().StringVar(&authActorType, "actor-type", "", "Explicit actor type, skipping classification")
	cmd.Flags().BoolVar(&authForceGate, "force-gate", false, "Rerun the validation gate instead of using the cached result")
	cmd.Flags().StringVar(&authRemote, "remote", "", "Ask a running actiongate server at this address instead of deciding locally")
	cmd.MarkFlagRequired("actor")
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize <action> <path>",
	Short: "Decide one action",
	Long: "Prints the decision as JSON. Exit 0 on allow, 1 on deny, 2 on hold.\n" +
		"Locally, the decision is appended to the configured audit sinks and flushed to audit.flush_path.",
	Args: cobra.ExactArgs(2),
	RunE: runAuthorize,
}

func runAuthorize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	actor := cliActor()
	target := model.Resource{Kind: model.ResourceKind(authKind), Path: args[1]}
	action := model.ActionKind(args[0])

	var d model.Decision
	if authRemote != "" {
		c, err := client.New(authRemote)
		if err != nil {
			return err
		}
		defer c.Close()
		d = c.Authorize(ctx, server.AuthorizeRequest{
			Actor: actor, Action: action, Target: target, Context: authContext, ForceGateRerun: authForceGate,
		})
	} else {
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		d = a.authz.Authorize(ctx, authorizer.Request{
			Actor: actor, Action: action, Target: target, Context: authContext, ForceGateRerun: authForceGate,
		})
		if err := a.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}

	if err := printJSON(d); err != nil {
		return err
	}
	exitFor(d.Mode)
	return nil
}

func cliActor() model.Actor {
	if authActorType != "" {
		return model.Actor{Type: model.ActorType(authActorType), Name: authActor}
	}
	return policy.NewActor(authActor, nil)
}

func exitFor(mode model.Mode) {
	switch mode {
	case model.Allow:
	case model.Hold:
		os.Exit(exitHeld)
	default:
		os.Exit(exitDenied)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
