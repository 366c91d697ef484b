package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/actiongate/internal/config"
)

var (
	configPath string
	verbose    bool

	// cfg and logger are set by the root PersistentPreRunE.
	cfg    *config.Config
	logger = zap.NewNop()
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to actiongate.yaml (default ./actiongate.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")
}

var rootCmd = &cobra.Command{
	Use:   "actiongate",
	Short: "Authorization gate for irreversible agent actions",
	Long: "Decides allow, deny, or hold for every irreversible action an agent wants to take.\n" +
		"Commits, pushes and promotions need a passing validation gate and the privileged agent;\n" +
		"protected paths need an explicit override. Every decision is audited.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		logger = l

		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// newLogger builds a JSON logger on stderr. Warn level by default so command
// output stays readable; debug with verbose.
func newLogger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.DisableStacktrace = true
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return zc.Build()
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
