package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/audit"
	"github.com/ppiankov/actiongate/internal/model"
)

var (
	replayActor  string
	replayMode   string
	replayFrom   string
	replayTo     string
	replayLimit  int
	replayFormat string
)

func init() {
	auditCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayActor, "actor", "", "Only decisions for this actor name")
	replayCmd.Flags().StringVar(&replayMode, "mode", "", "Only decisions with this mode (allow|deny|hold|escalate)")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	replayCmd.Flags().IntVar(&replayLimit, "limit", 0, "Keep only the last N matches (0 = all)")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var replayCmd = &cobra.Command{
	Use:   "replay [path]",
	Short: "Replay recorded decisions with filters",
	Long:  "Reads a chain log or flushed audit log, filters by actor, mode and time range,\nand renders a decision timeline with summary. Defaults to audit.chain_log.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := pathArg(args, cfg.Audit.ChainLog)
	if path == "" {
		return fmt.Errorf("no log given and audit.chain_log is not configured")
	}

	filter := audit.ReplayFilter{
		ActorName: replayActor,
		Mode:      model.Mode(replayMode),
		Limit:     replayLimit,
	}

	if replayFrom != "" {
		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
		filter.From = from
	}

	if replayTo != "" {
		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
		filter.To = to
	}

	result, err := audit.Replay(path, filter)
	if err != nil {
		return err
	}

	switch replayFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(audit.FormatTimeline(result))
	}

	return nil
}
