// Package logging provides a structured, correlation-id-aware logger built on logrus.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is the minimum severity a Logger emits.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls output format, destination, and rotation.
type Config struct {
	Level      Level
	Format     string // "json" or "text"
	Output     string // "stdout", "stderr", or a file path
	Rotation   bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig matches the defaults used across this codebase's services.
func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		Format:     "json",
		Output:     "stdout",
		Rotation:   false,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	}
}

// Logger wraps logrus with this system's conventions.
type Logger struct {
	*logrus.Logger
	config *Config
}

// New builds a Logger from Config.
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	l := logrus.New()

	switch config.Level {
	case DebugLevel:
		l.SetLevel(logrus.DebugLevel)
	case WarnLevel:
		l.SetLevel(logrus.WarnLevel)
	case ErrorLevel:
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if config.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "function",
				logrus.FieldKeyFile:  "file",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}

	var output io.Writer
	switch config.Output {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		if config.Rotation {
			output = &lumberjack.Logger{
				Filename:   config.Output,
				MaxSize:    config.MaxSizeMB,
				MaxBackups: config.MaxBackups,
				MaxAge:     config.MaxAgeDays,
				Compress:   config.Compress,
			}
		} else {
			f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file: %w", err)
			}
			output = f
		}
	}
	l.SetOutput(output)
	l.SetReportCaller(true)

	return &Logger{Logger: l, config: config}, nil
}

// Contextual carries per-request fields (correlation id, and whatever WithField adds).
type Contextual struct {
	*Logger
	fields logrus.Fields
}

// WithContext pulls the correlation id out of ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Contextual {
	fields := logrus.Fields{}
	if id := CorrelationID(ctx); id != "" {
		fields["correlation_id"] = id
	}
	return &Contextual{Logger: l, fields: fields}
}

func (c *Contextual) WithFields(fields logrus.Fields) *Contextual {
	combined := make(logrus.Fields, len(c.fields)+len(fields))
	for k, v := range c.fields {
		combined[k] = v
	}
	for k, v := range fields {
		combined[k] = v
	}
	return &Contextual{Logger: c.Logger, fields: combined}
}

func (c *Contextual) WithField(key string, value interface{}) *Contextual {
	return c.WithFields(logrus.Fields{key: value})
}

func (c *Contextual) Debug(args ...interface{}) { c.Logger.WithFields(c.fields).Debug(args...) }
func (c *Contextual) Debugf(format string, args ...interface{}) {
	c.Logger.WithFields(c.fields).Debugf(format, args...)
}
func (c *Contextual) Info(args ...interface{}) { c.Logger.WithFields(c.fields).Info(args...) }
func (c *Contextual) Infof(format string, args ...interface{}) {
	c.Logger.WithFields(c.fields).Infof(format, args...)
}
func (c *Contextual) Warn(args ...interface{}) { c.Logger.WithFields(c.fields).Warn(args...) }
func (c *Contextual) Warnf(format string, args ...interface{}) {
	c.Logger.WithFields(c.fields).Warnf(format, args...)
}
func (c *Contextual) Error(args ...interface{}) { c.Logger.WithFields(c.fields).Error(args...) }
func (c *Contextual) Errorf(format string, args ...interface{}) {
	c.Logger.WithFields(c.fields).Errorf(format, args...)
}

// ErrorWithStack logs err along with a short synthetic stack trace, the way panics
// surfaced from a processing loop are reported upstream.
func (c *Contextual) ErrorWithStack(err error) {
	fields := make(logrus.Fields, len(c.fields)+1)
	for k, v := range c.fields {
		fields[k] = v
	}
	stack := make([]string, 0, 8)
	for i := 1; i < 9; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		stack = append(stack, fmt.Sprintf("%s:%d", filepath.Base(file), line))
	}
	fields["stack_trace"] = strings.Join(stack, " -> ")
	c.Logger.WithFields(fields).Error(err)
}

type correlationIDKey struct{}

// WithCorrelationID attaches a request/job correlation id to ctx, generating one if empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID reads the correlation id back out of ctx.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

var global *Logger

// Init sets the process-wide logger.
func Init(config *Config) error {
	l, err := New(config)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// Global returns the process-wide logger, lazily initializing it with defaults.
func Global() *Logger {
	if global == nil {
		l, _ := New(DefaultConfig())
		global = l
	}
	return global
}

// FromContext returns a Contextual logger bound to ctx's correlation id.
func FromContext(ctx context.Context) *Contextual {
	return Global().WithContext(ctx)
}
