package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, format Format, level Level) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l, err := NewLogger(&Config{
		Level:            level,
		Format:           format,
		Output:           StderrOutput,
		DisableTimestamp: true,
		Writer:           buf,
	})
	require.NoError(t, err)
	return l, buf
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		wantError bool
	}{
		{"default", DefaultConfig(), false},
		{"debug", DebugConfig(), false},
		{"bad level", &Config{Level: "trace", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", &Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"bad output", &Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"}, true},
		{"file without path", &Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithFieldsArePreserved(t *testing.T) {
	l, buf := newBufferLogger(t, JSONFormat, InfoLevel)

	l.WithComponent("parser").
		WithField("file", "dump.xlsx").
		WithError(errors.New("bad sheet")).
		Info("Parsed table")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "parser", entry["component"])
	assert.Equal(t, "dump.xlsx", entry["file"])
	assert.Equal(t, "bad sheet", entry["error"])
	assert.Equal(t, "Parsed table", entry["msg"])
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, TextFormat, WarnLevel)

	l.Info("hidden")
	l.Warnf("shown %d", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 1")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reconciler.log")
	l, err := NewLogger(&Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput, File: path})
	require.NoError(t, err)

	l.Info("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{" INFO ", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"trace", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextKeysOrderComponentAndRunFirst(t *testing.T) {
	l, buf := newBufferLogger(t, TextFormat, InfoLevel)

	l.WithField("alpha", 1).WithRun("run-1").WithComponent("matcher").Info("Cancelled pairs")

	out := buf.String()
	component := strings.Index(out, "component=matcher")
	run := strings.Index(out, "run_id=run-1")
	alpha := strings.Index(out, "alpha=1")
	require.True(t, component >= 0 && run >= 0 && alpha >= 0, out)
	assert.Less(t, component, run)
	assert.Less(t, run, alpha)
}

func TestConfigureClosesPreviousLogFile(t *testing.T) {
	previous := GetGlobalLogger()
	t.Cleanup(func() {
		SetGlobalLogger(previous)
		_ = Close()
	})

	path := filepath.Join(t.TempDir(), "reconciler.log")
	require.NoError(t, Configure(&Config{Level: InfoLevel, Format: JSONFormat, Output: FileOutput, File: path}))
	WithComponent("cli").Info("first")

	require.NoError(t, Configure(&Config{Level: InfoLevel, Format: TextFormat, Output: StderrOutput, Writer: &bytes.Buffer{}}))
	assert.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"first"`)
}

func TestConfigureSetsGlobalLogger(t *testing.T) {
	previous := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(previous) })

	buf := &bytes.Buffer{}
	require.NoError(t, Configure(&Config{Level: DebugLevel, Format: TextFormat, Output: StderrOutput, Writer: buf}))

	WithComponent("cli").Debug("hello")
	assert.True(t, strings.Contains(buf.String(), "component=cli"))
}

func TestRowProgress(t *testing.T) {
	l, buf := newBufferLogger(t, JSONFormat, InfoLevel)

	progress := NewRowProgress(l, "wbs.csv", time.Hour)
	clock := time.Now()
	progress.started = clock
	progress.lastLog = clock
	progress.now = func() time.Time { return clock }

	progress.Row()
	progress.Row()
	clock = clock.Add(2 * time.Hour)
	progress.Row()

	stats := progress.Stats()
	assert.Equal(t, int64(3), stats.Rows)
	assert.Equal(t, 2*time.Hour, stats.Elapsed)

	progress.Done(nil)
	out := buf.String()
	assert.Contains(t, out, "Reading rows")
	assert.Contains(t, out, "Still reading rows")
	assert.Contains(t, out, "Finished reading: 3 rows")
	assert.Contains(t, out, `"source":"wbs.csv"`)
}

func TestRowProgressFailure(t *testing.T) {
	l, buf := newBufferLogger(t, TextFormat, InfoLevel)

	progress := NewRowProgress(l, "wbs.xlsx", 0)
	progress.Done(errors.New("context canceled"))

	assert.Contains(t, buf.String(), "Reading rows failed")
	assert.Contains(t, buf.String(), "context canceled")
}
