package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/constitution"
)

func init() {
	rootCmd.AddCommand(constitutionCmd)
	constitutionCmd.AddCommand(constitutionValidateCmd)
	constitutionCmd.AddCommand(constitutionHashCmd)
}

var constitutionCmd = &cobra.Command{
	Use:   "constitution",
	Short: "Constitution manifest operations",
}

var constitutionValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check that a manifest declares every required singularity and system",
	Long:  "Exits 0 if the manifest is valid, 1 otherwise. Defaults to the configured manifest.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadManifest(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
			os.Exit(1)
		}
		v := c.Validate()
		if !v.Valid {
			fmt.Fprintf(os.Stderr, "FAILED: %s is missing:\n", c.Path())
			for _, m := range v.Missing {
				fmt.Fprintf(os.Stderr, "  - %s\n", m)
			}
			os.Exit(1)
		}
		m := c.Manifest()
		fmt.Printf("OK: %s (version %s, %d singularities, %d systems, %d action contracts)\n",
			c.Path(), m.Version, len(m.Singularities), len(m.Systems), len(m.Actions))
		fmt.Printf("hash: %s\n", c.Hash())
		return nil
	},
}

var constitutionHashCmd = &cobra.Command{
	Use:   "hash [path]",
	Short: "Print the canonical hash recorded on audit events",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadManifest(args)
		if err != nil {
			return err
		}
		fmt.Println(c.Hash())
		return nil
	},
}

func loadManifest(args []string) (*constitution.Constitution, error) {
	path := cfg.Constitution
	if len(args) == 1 {
		path = args[0]
	}
	c, err := constitution.Load(path)
	if err != nil {
		return nil, err
	}
	return c, nil
}
