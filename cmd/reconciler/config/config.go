package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"wbs-auc-reconciliation/internal/matcher"
	"wbs-auc-reconciliation/internal/parsers"
	"wbs-auc-reconciliation/internal/reconciler"
	"wbs-auc-reconciliation/internal/reporter"
	"wbs-auc-reconciliation/pkg/logger"
)

// EnvPrefix is the prefix of environment variables read by the CLI
const EnvPrefix = "RECONCILER"

// Configuration keys shared by flags, environment and config files
const (
	KeyInput           = "input"
	KeyOutputDir       = "output_dir"
	KeyTableFormat     = "table_format"
	KeySummaryFormat   = "summary_format"
	KeySummaryFile     = "summary_file"
	KeySheet           = "sheet"
	KeyDelimiter       = "delimiter"
	KeyEncoding        = "encoding"
	KeyExcludeDocTypes = "exclude_doc_types"
	KeyProgress        = "progress"
	KeyVerbose         = "verbose"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyLogFile         = "log.file"
)

// AppConfig is the effective configuration of one CLI run
type AppConfig struct {
	Input           string   `yaml:"input" mapstructure:"input"`
	OutputDir       string   `yaml:"output_dir" mapstructure:"output_dir"`
	TableFormat     string   `yaml:"table_format" mapstructure:"table_format"`
	SummaryFormat   string   `yaml:"summary_format" mapstructure:"summary_format"`
	SummaryFile     string   `yaml:"summary_file,omitempty" mapstructure:"summary_file"`
	Sheet           string   `yaml:"sheet,omitempty" mapstructure:"sheet"`
	Delimiter       string   `yaml:"delimiter" mapstructure:"delimiter"`
	Encoding        string   `yaml:"encoding" mapstructure:"encoding"`
	ExcludeDocTypes []string `yaml:"exclude_doc_types" mapstructure:"exclude_doc_types"`
	Progress        bool     `yaml:"progress" mapstructure:"progress"`
	Verbose         bool     `yaml:"verbose" mapstructure:"verbose"`

	Log     LogConfig             `yaml:"log" mapstructure:"log"`
	Columns *parsers.ColumnConfig `yaml:"columns" mapstructure:"columns"`
}

// LogConfig holds the logging settings of the CLI
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file,omitempty" mapstructure:"file"`
}

// DefaultAppConfig returns the configuration used when nothing is set
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		OutputDir:       ".",
		TableFormat:     string(reporter.TableFormatAuto),
		SummaryFormat:   string(reporter.FormatConsole),
		Delimiter:       ",",
		Encoding:        parsers.EncodingUTF8,
		ExcludeDocTypes: []string{"CS"},
		Log: LogConfig{
			Level:  string(logger.WarnLevel),
			Format: string(logger.TextFormat),
		},
		Columns: parsers.DefaultColumnConfig(),
	}
}

// SetDefaults registers the defaults with v so every key is known to
// viper, including keys only set through the environment.
func SetDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault(KeyInput, d.Input)
	v.SetDefault(KeyOutputDir, d.OutputDir)
	v.SetDefault(KeyTableFormat, d.TableFormat)
	v.SetDefault(KeySummaryFormat, d.SummaryFormat)
	v.SetDefault(KeySummaryFile, d.SummaryFile)
	v.SetDefault(KeySheet, d.Sheet)
	v.SetDefault(KeyDelimiter, d.Delimiter)
	v.SetDefault(KeyEncoding, d.Encoding)
	v.SetDefault(KeyExcludeDocTypes, d.ExcludeDocTypes)
	v.SetDefault(KeyProgress, d.Progress)
	v.SetDefault(KeyVerbose, d.Verbose)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
	v.SetDefault(KeyLogFile, d.Log.File)
	v.SetDefault("columns.purchase_doc", d.Columns.PurchaseDoc)
	v.SetDefault("columns.doc_type", d.Columns.DocType)
	v.SetDefault("columns.wbs_element", d.Columns.WBSElement)
	v.SetDefault("columns.purchase_order_text", d.Columns.PurchaseOrderText)
	v.SetDefault("columns.offset_account_name", d.Columns.OffsetAccountName)
	v.SetDefault("columns.amount", d.Columns.Amount)
}

// ConfigureEnv makes v read RECONCILER_* variables, mapping nested keys
// with underscores (log.level -> RECONCILER_LOG_LEVEL).
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables that are already set
// keep their value.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

// ReadConfigFile reads a yaml, json or toml file into v
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Load builds the effective configuration from v
func Load(v *viper.Viper) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Alias headers contain dots, which viper reads as key paths
	if cfg.Columns == nil {
		cfg.Columns = parsers.DefaultColumnConfig()
	}
	cfg.Columns.Aliases = parsers.DefaultColumnConfig().Aliases

	// Comma-separated values from the environment arrive as one element
	cfg.ExcludeDocTypes = splitList(cfg.ExcludeDocTypes)
	cfg.Encoding = strings.ToLower(strings.TrimSpace(cfg.Encoding))
	cfg.TableFormat = strings.ToLower(strings.TrimSpace(cfg.TableFormat))
	cfg.SummaryFormat = strings.ToLower(strings.TrimSpace(cfg.SummaryFormat))

	return cfg, nil
}

func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}

// Validate validates the configuration of a reconcile run. The input file
// is checked separately by the command.
func (c *AppConfig) Validate() error {
	if _, err := c.DelimiterRune(); err != nil {
		return err
	}

	if !reporter.TableFormat(c.TableFormat).IsValid() {
		return fmt.Errorf("invalid table format '%s'. Valid formats: auto, xlsx, csv", c.TableFormat)
	}
	if !reporter.OutputFormat(c.SummaryFormat).IsValid() {
		return fmt.Errorf("invalid summary format '%s'. Valid formats: console, json, csv, yaml", c.SummaryFormat)
	}

	if _, err := c.CreateParserConfig(); err != nil {
		return err
	}
	if err := c.CreateReconcilerConfig().Validate(); err != nil {
		return err
	}
	if err := c.LoggerConfig().Validate(); err != nil {
		return err
	}

	return nil
}

// DelimiterRune converts the delimiter setting. "tab" and "\t" select a
// tab character.
func (c *AppConfig) DelimiterRune() (rune, error) {
	switch c.Delimiter {
	case "tab", `\t`, "\t":
		return '\t', nil
	}
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r, nil
}

// CreateParserConfig creates the table parser configuration
func (c *AppConfig) CreateParserConfig() (*parsers.TableParserConfig, error) {
	delimiter, err := c.DelimiterRune()
	if err != nil {
		return nil, err
	}

	config := parsers.DefaultTableParserConfig()
	config.Sheet = c.Sheet
	config.Delimiter = delimiter
	config.Encoding = c.Encoding
	config.ReportProgress = c.Progress
	config.Columns = c.Columns

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parser configuration: %w", err)
	}
	return config, nil
}

// CreateReconcilerConfig creates the reconciliation configuration
func (c *AppConfig) CreateReconcilerConfig() *reconciler.Config {
	config := reconciler.DefaultConfig()
	config.ExcludedDocTypes = c.ExcludeDocTypes
	config.Columns = c.Columns
	config.Offset = matcher.DefaultOffsetConfig()
	return config
}

// CreateTableWriterConfig creates the output table configuration
func (c *AppConfig) CreateTableWriterConfig() *reporter.TableWriterConfig {
	config := reporter.DefaultTableWriterConfig()
	config.Format = reporter.TableFormat(c.TableFormat)
	config.OutputDir = c.OutputDir
	config.Encoding = c.Encoding
	if delimiter, err := c.DelimiterRune(); err == nil {
		config.CSVDelimiter = delimiter
	}
	if c.Columns != nil {
		config.NumericColumns = []string{c.Columns.Amount}
	}
	return config
}

// CreateReportConfig creates the summary report configuration
func (c *AppConfig) CreateReportConfig() *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(c.SummaryFormat)
	config.IncludeProcessingStats = c.Verbose

	if config.Format == reporter.FormatCSV {
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}
	return config
}

// LoggerConfig creates the logger configuration. Verbose raises the level
// to debug.
func (c *AppConfig) LoggerConfig() *logger.Config {
	config := logger.DefaultConfig()
	config.Level = logger.Level(strings.ToLower(c.Log.Level))
	config.Format = logger.Format(strings.ToLower(c.Log.Format))
	if c.Verbose {
		config.Level = logger.DebugLevel
	}
	if c.Log.File != "" {
		config.Output = logger.FileOutput
		config.File = c.Log.File
	}
	return config
}

// ToYAML renders the configuration as YAML
func (c *AppConfig) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
