package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/audit"
	"github.com/ppiankov/actiongate/internal/model"
)

var (
	tailLines  int
	tailSQLite bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().BoolVar(&tailSQLite, "sqlite", false, "Read from audit.sqlite instead of the chain log")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting recorded decisions.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of a chain log",
	Long:  "Walks the JSONL chain log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.\nDefaults to audit.chain_log.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent decisions",
	Long:  "Prints the last N recorded decisions as a timeline. Defaults to audit.chain_log.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path := pathArg(args, cfg.Audit.ChainLog)
	if path == "" {
		return fmt.Errorf("no chain log given and audit.chain_log is not configured")
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	var events []model.AuditEvent
	if tailSQLite {
		if cfg.Audit.SQLite == "" {
			return fmt.Errorf("audit.sqlite is not configured")
		}
		db, err := audit.OpenSQLite(cfg.Audit.SQLite)
		if err != nil {
			return err
		}
		defer db.Close()
		events, err = db.Recent(context.Background(), tailLines)
		if err != nil {
			return err
		}
	} else {
		path := pathArg(args, cfg.Audit.ChainLog)
		if path == "" {
			return fmt.Errorf("no log given and audit.chain_log is not configured")
		}
		res, err := audit.Replay(path, audit.ReplayFilter{Limit: tailLines})
		if err != nil {
			return err
		}
		events = res.Events
	}

	fmt.Print(audit.FormatTimeline(audit.Summarize(events)))
	return nil
}

func pathArg(args []string, fallback string) string {
	if len(args) == 1 {
		return args[0]
	}
	return fallback
}
