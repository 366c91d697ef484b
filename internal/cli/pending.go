package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/approval"
)

var pendingAll bool

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().BoolVarP(&pendingAll, "all", "a", false, "Include resolved and expired tickets")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List hold tickets awaiting review",
	Long:  "Shows the tickets filed for held decisions with their status, actor, action and resource.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := holdsStore()
	if err != nil {
		return err
	}

	var list []approval.Ticket
	if pendingAll {
		list, err = store.List()
	} else {
		list, err = store.Pending()
	}
	if err != nil {
		return fmt.Errorf("failed to list tickets: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No pending holds.")
		return nil
	}

	fmt.Printf("%-38s %-10s %-20s %-16s %-32s %s\n", "KEY", "STATUS", "ACTOR", "ACTION", "RESOURCE", "CREATED")
	for _, t := range list {
		fmt.Printf("%-38s %-10s %-20s %-16s %-32s %s\n",
			t.Key,
			t.Status,
			truncate(t.Actor, 20),
			t.Action,
			truncate(t.Resource, 32),
			t.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
