package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/client"
	"github.com/ppiankov/actiongate/internal/gate"
)

var (
	gateRemote  string
	gateHistory int
)

func init() {
	rootCmd.AddCommand(gateCmd)
	gateCmd.AddCommand(gateRunCmd)
	gateCmd.AddCommand(gateStatusCmd)
	gateCmd.AddCommand(gateHistoryCmd)
	gateStatusCmd.Flags().StringVar(&gateRemote, "remote", "", "Query a running actiongate server at this address")
	gateHistoryCmd.Flags().IntVarP(&gateHistory, "lines", "n", 10, "Number of recent runs to show")
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Validation gate operations",
}

var gateRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured validation command once",
	Long:  "Runs gate.command, judges its artifact against the gate policy, records the\nresult in gate.history, and prints it. Exits 1 if the gate did not pass.",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openHistory()
		if err != nil {
			return err
		}
		res := gate.NewRunner(cfg.Gate, history, logger).Run()
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.Passed {
			os.Exit(1)
		}
		return nil
	},
}

var gateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last gate result",
	Long:  "Without --remote, reports the newest entry of gate.history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if gateRemote != "" {
			c, err := client.New(gateRemote)
			if err != nil {
				return err
			}
			defer c.Close()
			st, err := c.GateStatus(context.Background())
			if err != nil {
				return err
			}
			return printJSON(st)
		}

		history, err := openHistory()
		if err != nil {
			return err
		}
		if history == nil {
			return fmt.Errorf("gate.history is not configured")
		}
		last, ok := history.Last()
		if !ok {
			fmt.Println("Gate has never run.")
			return nil
		}
		return printJSON(last)
	},
}

var gateHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent gate runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := openHistory()
		if err != nil {
			return err
		}
		if history == nil {
			return fmt.Errorf("gate.history is not configured")
		}
		entries := history.Entries()
		if len(entries) == 0 {
			fmt.Println("No gate runs recorded.")
			return nil
		}

		start := max(len(entries)-gateHistory, 0)
		fmt.Printf("%-24s %-6s %-8s %-22s %s\n", "FINISHED", "PASS", "RATE", "ERROR", "FAILED PHASES")
		for _, r := range entries[start:] {
			pass := "no"
			if r.Passed {
				pass = "yes"
			}
			fmt.Printf("%-24s %-6s %-8s %-22s %v\n", r.FinishedUTC, pass, fmt.Sprintf("%.1f%%", r.PassRate), r.Error, r.FailedPhases)
		}
		return nil
	},
}

func openHistory() (*gate.History, error) {
	if cfg.Gate.HistoryPath == "" {
		return nil, nil
	}
	return gate.OpenHistory(cfg.Gate.HistoryPath)
}
