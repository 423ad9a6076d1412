package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"wbs-auc-reconciliation/internal/parsers"
	"wbs-auc-reconciliation/internal/reporter"
	"wbs-auc-reconciliation/pkg/logger"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	ConfigureEnv(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "auto", cfg.TableFormat)
	assert.Equal(t, "console", cfg.SummaryFormat)
	assert.Equal(t, []string{"CS"}, cfg.ExcludeDocTypes)
	assert.Equal(t, parsers.EncodingUTF8, cfg.Encoding)
	assert.Equal(t, "Purch.Doc.", cfg.Columns.PurchaseDoc)
	assert.Equal(t, "ValCOArCur", cfg.Columns.Amount)
	assert.Contains(t, cfg.Columns.Aliases, "Purch.Doc.")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("RECONCILER_OUTPUT_DIR", "/tmp/reports")
	t.Setenv("RECONCILER_EXCLUDE_DOC_TYPES", "CS, ZP")
	t.Setenv("RECONCILER_SUMMARY_FORMAT", "JSON")
	t.Setenv("RECONCILER_LOG_LEVEL", "debug")
	t.Setenv("RECONCILER_COLUMNS_AMOUNT", "Amount")

	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/reports", cfg.OutputDir)
	assert.Equal(t, []string{"CS", "ZP"}, cfg.ExcludeDocTypes)
	assert.Equal(t, "json", cfg.SummaryFormat)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "Amount", cfg.Columns.Amount)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconciler.yaml")
	content := `output_dir: out
table_format: csv
delimiter: ";"
exclude_doc_types: [CS, AA]
log:
  format: json
columns:
  wbs_element: WBS
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	v := newViper()
	require.NoError(t, ReadConfigFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "csv", cfg.TableFormat)
	assert.Equal(t, []string{"CS", "AA"}, cfg.ExcludeDocTypes)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "WBS", cfg.Columns.WBSElement)
	assert.Equal(t, "Purch.Doc.", cfg.Columns.PurchaseDoc)

	delimiter, err := cfg.DelimiterRune()
	require.NoError(t, err)
	assert.Equal(t, ';', delimiter)

	assert.Error(t, ReadConfigFile(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")))
	assert.NoError(t, ReadConfigFile(viper.New(), ""))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RECONCILER_SHEET=Export\nRECONCILER_ENCODING=latin1\n"), 0644))

	t.Setenv("RECONCILER_ENCODING", "windows-1252")
	t.Setenv("RECONCILER_SHEET", "")
	os.Unsetenv("RECONCILER_SHEET")

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))

	cfg, err := Load(newViper())
	require.NoError(t, err)
	assert.Equal(t, "Export", cfg.Sheet)
	// Existing variables win over the file
	assert.Equal(t, "windows-1252", cfg.Encoding)

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "none.env")))
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"long delimiter", func(c *AppConfig) { c.Delimiter = ";;" }},
		{"empty delimiter", func(c *AppConfig) { c.Delimiter = "" }},
		{"table format", func(c *AppConfig) { c.TableFormat = "ods" }},
		{"summary format", func(c *AppConfig) { c.SummaryFormat = "xml" }},
		{"encoding", func(c *AppConfig) { c.Encoding = "utf-16" }},
		{"empty doc type", func(c *AppConfig) { c.ExcludeDocTypes = []string{""} }},
		{"log level", func(c *AppConfig) { c.Log.Level = "trace" }},
		{"log format", func(c *AppConfig) { c.Log.Format = "xml" }},
		{"empty column", func(c *AppConfig) { c.Columns.DocType = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAppConfig_DelimiterRune(t *testing.T) {
	for _, value := range []string{"tab", `\t`, "\t"} {
		cfg := DefaultAppConfig()
		cfg.Delimiter = value
		r, err := cfg.DelimiterRune()
		require.NoError(t, err)
		assert.Equal(t, '\t', r)
	}
}

func TestAppConfig_CreateConfigs(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Sheet = "Data"
	cfg.Delimiter = ";"
	cfg.Encoding = parsers.EncodingLatin1
	cfg.ExcludeDocTypes = []string{"CS", "ZP"}
	cfg.TableFormat = "csv"
	cfg.SummaryFormat = "yaml"
	cfg.OutputDir = "reports"
	cfg.Verbose = true

	parserConfig, err := cfg.CreateParserConfig()
	require.NoError(t, err)
	assert.Equal(t, "Data", parserConfig.Sheet)
	assert.Equal(t, ';', parserConfig.Delimiter)
	assert.Equal(t, parsers.EncodingLatin1, parserConfig.Encoding)

	reconcilerConfig := cfg.CreateReconcilerConfig()
	assert.Equal(t, []string{"CS", "ZP"}, reconcilerConfig.ExcludedDocTypes)
	assert.NoError(t, reconcilerConfig.Validate())

	writerConfig := cfg.CreateTableWriterConfig()
	assert.Equal(t, reporter.TableFormatCSV, writerConfig.Format)
	assert.Equal(t, "reports", writerConfig.OutputDir)
	assert.Equal(t, ';', writerConfig.CSVDelimiter)
	assert.Equal(t, parsers.EncodingLatin1, writerConfig.Encoding)
	assert.Equal(t, []string{"ValCOArCur"}, writerConfig.NumericColumns)

	reportConfig := cfg.CreateReportConfig()
	assert.Equal(t, reporter.FormatYAML, reportConfig.Format)
	assert.True(t, reportConfig.IncludeProcessingStats)

	logConfig := cfg.LoggerConfig()
	assert.Equal(t, logger.DebugLevel, logConfig.Level)

	cfg.Verbose = false
	cfg.Log.File = filepath.Join(t.TempDir(), "run.log")
	logConfig = cfg.LoggerConfig()
	assert.Equal(t, logger.WarnLevel, logConfig.Level)
	assert.Equal(t, logger.FileOutput, logConfig.Output)
}

func TestAppConfig_ToYAML(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Input = "wbs.xlsx"

	data, err := cfg.ToYAML()
	require.NoError(t, err)

	var decoded AppConfig
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "wbs.xlsx", decoded.Input)
	assert.Equal(t, []string{"CS"}, decoded.ExcludeDocTypes)
	assert.Equal(t, "Purch.Doc.", decoded.Columns.PurchaseDoc)
	assert.Contains(t, string(data), "summary_format: console")
}
