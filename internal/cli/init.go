package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/constitution"
)

var (
	initDir   string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write actiongate.yaml and constitution.yaml into")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap actiongate configuration",
	Long: `Writes a commented actiongate.yaml and a constitution.yaml that declares every
required singularity and system, plus the .actiongate/ state directory.

The generated config has no gate command: commits, pushes and promotions are
held until gate.command is set.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	var created []string

	if err := os.MkdirAll(filepath.Join(initDir, ".actiongate", "holds"), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	configFile := filepath.Join(initDir, config.DefaultPath)
	if wrote, err := writeIfMissing(configFile, config.DefaultYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, configFile)
	}

	manifestFile := filepath.Join(initDir, "constitution.yaml")
	if wrote, err := writeIfMissing(manifestFile, constitution.DefaultManifestYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, manifestFile)
	}

	fmt.Println("actiongate init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
		fmt.Println()
	}

	fmt.Println("Next:")
	fmt.Println("  set gate.command in actiongate.yaml")
	fmt.Println("  actiongate doctor")
	fmt.Println("  actiongate authorize --actor autonomous-agent git_commit src/main.go")

	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
