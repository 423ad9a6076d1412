package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger used across the reconciler. Components
// derive scoped loggers with WithComponent and WithRun.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	WithComponent(component string) Logger
	WithRun(runID string) Logger
}

// Fields are structured key-value pairs attached to an entry
type Fields map[string]interface{}

// Field keys that scoped loggers set
const (
	ComponentKey = "component"
	RunKey       = "run_id"
)

type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

type Format string

const (
	JSONFormat Format = "json"
	TextFormat Format = "text"
)

type Output string

const (
	StdoutOutput Output = "stdout"
	StderrOutput Output = "stderr"
	FileOutput   Output = "file"
)

// Config describes where and how log entries are written
type Config struct {
	Level            Level  `json:"level" yaml:"level" mapstructure:"level"`
	Format           Format `json:"format" yaml:"format" mapstructure:"format"`
	Output           Output `json:"output" yaml:"output" mapstructure:"output"`
	File             string `json:"file,omitempty" yaml:"file,omitempty" mapstructure:"file"`
	DisableTimestamp bool   `json:"disable_timestamp,omitempty" yaml:"disable_timestamp,omitempty" mapstructure:"disable_timestamp"`
	CallerInfo       bool   `json:"caller_info,omitempty" yaml:"caller_info,omitempty" mapstructure:"caller_info"`

	// Writer takes precedence over Output
	Writer io.Writer `json:"-" yaml:"-" mapstructure:"-"`
}

// DefaultConfig logs warnings and errors as text on stderr, so that
// stdout stays free for summaries.
func DefaultConfig() *Config {
	return &Config{
		Level:  WarnLevel,
		Format: TextFormat,
		Output: StderrOutput,
	}
}

func DebugConfig() *Config {
	config := DefaultConfig()
	config.Level = DebugLevel
	config.CallerInfo = true
	return config
}

// ParseLevel reads a level name, accepting "warning" for WarnLevel
func ParseLevel(name string) (Level, error) {
	switch level := Level(strings.ToLower(strings.TrimSpace(name))); level {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return level, nil
	case "warning":
		return WarnLevel, nil
	default:
		return "", fmt.Errorf("invalid log level: %s", name)
	}
}

func (c *Config) Validate() error {
	if _, err := ParseLevel(string(c.Level)); err != nil {
		return err
	}

	switch c.Format {
	case JSONFormat, TextFormat:
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}

	switch c.Output {
	case StdoutOutput, StderrOutput:
	case FileOutput:
		if strings.TrimSpace(c.File) == "" {
			return fmt.Errorf("log file path is required for file output")
		}
	default:
		return fmt.Errorf("invalid log output: %s", c.Output)
	}

	return nil
}

// entryLogger scopes a logrus entry. The embedded entry provides the
// leveled methods; the With* methods are redefined to return Logger.
type entryLogger struct {
	*logrus.Entry
}

// NewLogger builds a logger from config. A nil config means DefaultConfig.
func NewLogger(config *Config) (Logger, error) {
	l, _, err := newLogger(config)
	return l, err
}

func newLogger(config *Config) (Logger, io.Closer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid logger configuration: %w", err)
	}

	level, _ := ParseLevel(string(config.Level))
	logrusLevel, err := logrus.ParseLevel(string(level))
	if err != nil {
		return nil, nil, err
	}

	w, closer, err := openWriter(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set log output: %w", err)
	}

	base := logrus.New()
	base.SetLevel(logrusLevel)
	base.SetOutput(w)
	base.SetFormatter(newFormatter(config))
	base.SetReportCaller(config.CallerInfo)

	return &entryLogger{Entry: logrus.NewEntry(base)}, closer, nil
}

func openWriter(config *Config) (io.Writer, io.Closer, error) {
	if config.Writer != nil {
		return config.Writer, nil, nil
	}

	switch config.Output {
	case StdoutOutput:
		return os.Stdout, nil, nil
	case FileOutput:
		if err := os.MkdirAll(filepath.Dir(config.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return f, f, nil
	}
	return os.Stderr, nil, nil
}

func callerLocation(f *runtime.Frame) string {
	return fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}

func newFormatter(config *Config) logrus.Formatter {
	if config.Format == JSONFormat {
		return &logrus.JSONFormatter{
			DisableTimestamp: config.DisableTimestamp,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return f.Function + "()", callerLocation(f)
			},
		}
	}

	return &logrus.TextFormatter{
		DisableTimestamp: config.DisableTimestamp,
		FullTimestamp:    !config.DisableTimestamp,
		TimestampFormat:  "2006-01-02 15:04:05",
		SortingFunc:      sortTextKeys,
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return "", callerLocation(f)
		},
	}
}

// keyRank orders the leading keys of a text entry; all other keys follow
// alphabetically.
var keyRank = map[string]int{
	logrus.FieldKeyTime:  0,
	logrus.FieldKeyLevel: 1,
	logrus.FieldKeyMsg:   2,
	ComponentKey:         3,
	RunKey:               4,
}

func sortTextKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		ri, iok := keyRank[keys[i]]
		rj, jok := keyRank[keys[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
}

func (l *entryLogger) WithField(key string, value interface{}) Logger {
	return &entryLogger{Entry: l.Entry.WithField(key, value)}
}

func (l *entryLogger) WithFields(fields Fields) Logger {
	return &entryLogger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

func (l *entryLogger) WithError(err error) Logger {
	return &entryLogger{Entry: l.Entry.WithError(err)}
}

func (l *entryLogger) WithComponent(component string) Logger {
	return l.WithField(ComponentKey, component)
}

func (l *entryLogger) WithRun(runID string) Logger {
	return l.WithField(RunKey, runID)
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = mustDefault()
	globalCloser io.Closer
)

func mustDefault() Logger {
	l, err := NewLogger(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return l
}

func SetGlobalLogger(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Configure installs a logger built from config as the global logger. A
// log file opened by a previous call is closed.
func Configure(config *Config) error {
	l, closer, err := newLogger(config)
	if err != nil {
		return err
	}

	globalMu.Lock()
	previous := globalCloser
	globalLogger, globalCloser = l, closer
	globalMu.Unlock()

	if previous != nil {
		return previous.Close()
	}
	return nil
}

// Close releases the log file of the global logger, if any
func Close() error {
	globalMu.Lock()
	closer := globalCloser
	globalCloser = nil
	globalMu.Unlock()

	if closer == nil {
		return nil
	}
	return closer.Close()
}

func WithComponent(component string) Logger {
	return GetGlobalLogger().WithComponent(component)
}
