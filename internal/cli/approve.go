package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	approveDuration time.Duration
	approveNote     string
)

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().DurationVar(&approveDuration, "duration", 0, "How long the approval stays on record (e.g. 30m, 1h). Default: no expiry")
	approveCmd.Flags().StringVar(&approveNote, "note", "", "Reviewer note stored on the ticket")
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Mark a hold ticket as approved",
	Long: "Records a reviewer's approval on a pending hold ticket. The original decision\n" +
		"is not changed; the caller still has to satisfy the required actions and ask again.",
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := holdsStore()
	if err != nil {
		return err
	}

	if err := store.Approve(key, approveNote, approveDuration); err != nil {
		return err
	}

	if approveDuration > 0 {
		fmt.Printf("Approved %q for %s\n", key, approveDuration)
	} else {
		fmt.Printf("Approved %q\n", key)
	}
	return nil
}
