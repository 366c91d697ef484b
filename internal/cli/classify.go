package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/policy"
)

func init() {
	rootCmd.AddCommand(classifyCmd)
}

var classifyCmd = &cobra.Command{
	Use:   "classify <label>...",
	Short: "Show the actor type a caller label classifies as",
	Long:  "Applies the ordered classification rules to each label. Only automated_agent\nmay run privileged actions directly.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, label := range args {
			a := policy.NewActor(label, nil)
			mark := ""
			if a.Privileged() {
				mark = "  (privileged)"
			}
			fmt.Printf("%-30s %s%s\n", truncate(label, 30), a.Type, mark)
		}
	},
}
