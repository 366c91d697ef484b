package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var denyNote string

func init() {
	rootCmd.AddCommand(denyCmd)
	denyCmd.Flags().StringVar(&denyNote, "note", "", "Reviewer note stored on the ticket")
}

var denyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Mark a hold ticket as denied",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeny,
}

func runDeny(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := holdsStore()
	if err != nil {
		return err
	}

	if err := store.Deny(key, denyNote); err != nil {
		return err
	}

	fmt.Printf("Denied %q\n", key)
	return nil
}
