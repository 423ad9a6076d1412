package cmd

import (
	"github.com/spf13/cobra"
)

func newConfigCmd(c *cli) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the reconciler configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Show prints the configuration a reconcile run would use after merging
flags, RECONCILER_* environment variables, the .env file, the --config file
and the built-in defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.cfg.ToYAML()
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(data)
			return err
		},
	}

	configCmd.AddCommand(showCmd)
	return configCmd
}
