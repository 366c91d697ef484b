package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/approval"
	"github.com/ppiankov/actiongate/internal/audit"
	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/constitution"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check readiness and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath
	}
	checks := doctorChecks(path, cfg)

	hasFailures := false
	for _, c := range checks {
		mark := "\u2713" // ✓
		if !c.ok {
			mark = "\u2717" // ✗
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}

func doctorChecks(path string, c *config.Config) []checkResult {
	var checks []checkResult

	// 1. Config file.
	if _, err := os.Stat(path); err == nil {
		checks = append(checks, checkResult{label: "config", ok: true, detail: path})
	} else {
		checks = append(checks, checkResult{
			label:  "config",
			ok:     false,
			detail: "not found, using defaults",
			fix:    "actiongate init",
		})
	}

	// 2. Constitution.
	checks = append(checks, checkConstitution(c.Constitution))

	// 3. Gate command.
	if len(c.Gate.Command) == 0 {
		checks = append(checks, checkResult{
			label:  "gate command",
			ok:     false,
			detail: "not configured, every commit, push and promote will be held",
			fix:    "set gate.command in " + path,
		})
	} else if bin, err := exec.LookPath(c.Gate.Command[0]); err != nil {
		checks = append(checks, checkResult{
			label:  "gate command",
			ok:     false,
			detail: fmt.Sprintf("%q not found", c.Gate.Command[0]),
			fix:    "install it or fix gate.command",
		})
	} else {
		checks = append(checks, checkResult{
			label:  "gate command",
			ok:     true,
			detail: bin + " " + strings.Join(c.Gate.Command[1:], " "),
		})
	}

	// 4. Hold tickets.
	if c.HoldsDir != "" {
		if _, err := approval.NewStore(c.HoldsDir); err != nil {
			checks = append(checks, checkResult{label: "holds dir", ok: false, detail: err.Error()})
		} else {
			checks = append(checks, checkResult{label: "holds dir", ok: true, detail: c.HoldsDir})
		}
	}

	// 5. Chain log integrity.
	if c.Audit.ChainLog != "" {
		checks = append(checks, checkChain(c.Audit.ChainLog))
	}

	return checks
}

func checkConstitution(path string) checkResult {
	m, err := constitution.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return checkResult{label: "constitution", ok: false, detail: "missing " + path, fix: "actiongate init"}
		}
		return checkResult{label: "constitution", ok: false, detail: err.Error(), fix: "actiongate constitution validate"}
	}
	if v := m.Validate(); !v.Valid {
		return checkResult{
			label:  "constitution",
			ok:     false,
			detail: "missing " + strings.Join(v.Missing, ", "),
			fix:    "actiongate constitution validate",
		}
	}
	return checkResult{label: "constitution", ok: true, detail: fmt.Sprintf("%s (%s)", path, m.Hash()[:19])}
}

func checkChain(path string) checkResult {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return checkResult{label: "audit chain", ok: true, detail: "no entries yet"}
	}
	result := audit.Verify(path)
	if !result.Valid {
		return checkResult{
			label:  "audit chain",
			ok:     false,
			detail: fmt.Sprintf("broken at line %d: %s", result.ErrorLine, result.Error),
			fix:    "actiongate audit verify " + path,
		}
	}
	return checkResult{label: "audit chain", ok: true, detail: fmt.Sprintf("%d entries verified", result.Lines)}
}
