package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"wbs-auc-reconciliation/cmd/reconciler/config"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// cli holds the state shared by the commands of one invocation
type cli struct {
	v       *viper.Viper
	cfg     *config.AppConfig
	cfgFile string
	envFile string
	stdout  io.Writer
	stderr  io.Writer
}

// newRootCmd builds the command tree. Every call returns an independent
// tree with its own viper instance.
func newRootCmd(stdout, stderr io.Writer) (*cobra.Command, *cli) {
	c := &cli{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "WBS-AUC reconciliation tool",
		Long: `Reconciler cleans a WBS-AUC ledger export: rows are classified as PO or
Non-PO, excluded document types are dropped and offsetting positive/negative
entries are cancelled pairwise. It writes a cleaned report, a Non-PO report
and a summary.

Examples:
  reconciler reconcile --input wbs_auc.xlsx
  reconciler reconcile --input export.csv --delimiter ";" --summary-format json
  reconciler config show --config reconciler.yaml
  reconciler --version`,
		Version:           getVersionString(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initConfig,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file, yaml/json/toml (optional)")
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.String("log-file", "", "write logs to this file instead of stderr")

	c.bindFlag(config.KeyVerbose, flags.Lookup("verbose"))
	c.bindFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	c.bindFlag(config.KeyLogFormat, flags.Lookup("log-format"))
	c.bindFlag(config.KeyLogFile, flags.Lookup("log-file"))

	rootCmd.AddCommand(newReconcileCmd(c))
	rootCmd.AddCommand(newConfigCmd(c))

	return rootCmd, c
}

// Execute runs the CLI with the process arguments and returns the exit code
func Execute() int {
	return ExecuteArgs(os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteArgs runs the CLI with args and returns the exit code
func ExecuteArgs(args []string, stdout, stderr io.Writer) int {
	rootCmd, c := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)

	code := NewCLIErrorHandler(stderr, c.verbose()).HandleError(rootCmd.Execute())
	if err := logger.Close(); err != nil {
		fmt.Fprintf(stderr, "Warning: failed to close log file: %v\n", err)
	}
	return code
}

// initConfig resolves the configuration in the order flags, environment,
// config file, defaults and configures the global logger from it.
func (c *cli) initConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(c.envFile); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "env-file", c.envFile, err)
	}

	config.SetDefaults(c.v)
	config.ConfigureEnv(c.v)

	if err := config.ReadConfigFile(c.v, c.cfgFile); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", c.cfgFile, err).
			WithSuggestion("Check the path and syntax of the --config file")
	}

	cfg, err := config.Load(c.v)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "config", c.cfgFile, err)
	}
	c.cfg = cfg

	if err := logger.Configure(cfg.LoggerConfig()); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", cfg.Log, err)
	}

	if c.cfgFile != "" {
		logger.WithComponent("cli").Debugf("Using config file: %s", c.v.ConfigFileUsed())
	}
	return nil
}

func (c *cli) bindFlag(key string, flag *pflag.Flag) {
	if err := c.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", key, err))
	}
}

func (c *cli) verbose() bool {
	if c.cfg != nil {
		return c.cfg.Verbose
	}
	return c.v.GetBool(config.KeyVerbose)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
