// Package logging configures logrus for PhantomBand processes and provides a
// small helper that attaches the standard "package" and "function" fields used
// throughout the codebase.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const defaultLevel = "INFO"

// Config is the logging section shared by the relay and client config files.
type Config struct {
	// Disable discards all log output.
	Disable bool

	// File is the log file path. Stderr is used when empty.
	File string

	// Level is one of ERROR, WARNING, INFO, DEBUG or TRACE.
	Level string
}

// Validate normalizes the level and rejects unknown values.
func (c *Config) Validate() error {
	lvl := strings.ToUpper(c.Level)
	switch lvl {
	case "ERROR", "WARNING", "INFO", "DEBUG", "TRACE":
	case "":
		lvl = defaultLevel
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", c.Level)
	}
	c.Level = lvl
	return nil
}

// ParseLevel maps a config level to a logrus level.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToUpper(level) {
	case "", "INFO":
		return logrus.InfoLevel, nil
	case "ERROR":
		return logrus.ErrorLevel, nil
	case "WARNING", "WARN":
		return logrus.WarnLevel, nil
	case "DEBUG":
		return logrus.DebugLevel, nil
	case "TRACE":
		return logrus.TraceLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup applies cfg to the standard logrus logger. The returned closer
// releases the log file, if one was opened.
func Setup(cfg Config) (io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Disable {
		logrus.SetOutput(io.Discard)
		return nopCloser{}, nil
	}

	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.File == "" {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)
	return f, nil
}

// Helper builds log entries with standardized fields.
type Helper struct {
	fields logrus.Fields
}

// For creates a helper tagged with the package and function name.
func For(pkg, function string) *Helper {
	return &Helper{
		fields: logrus.Fields{
			"package":  pkg,
			"function": function,
		},
	}
}

// WithField adds a custom field.
func (h *Helper) WithField(key string, value interface{}) *Helper {
	h.fields[key] = value
	return h
}

// WithFields adds multiple custom fields.
func (h *Helper) WithFields(fields logrus.Fields) *Helper {
	for k, v := range fields {
		h.fields[k] = v
	}
	return h
}

// WithError records err and the operation that produced it.
func (h *Helper) WithError(err error, operation string) *Helper {
	h.fields["error"] = err.Error()
	h.fields["operation"] = operation
	return h
}

func (h *Helper) entry() *logrus.Entry {
	return logrus.WithFields(h.fields)
}

// Debug logs a debug message
func (h *Helper) Debug(message string) { h.entry().Debug(message) }

// Info logs an info message
func (h *Helper) Info(message string) { h.entry().Info(message) }

// Warn logs a warning message
func (h *Helper) Warn(message string) { h.entry().Warn(message) }

// Error logs an error message
func (h *Helper) Error(message string) { h.entry().Error(message) }

// SecureFieldHash creates a preview of sensitive data for logging.
// Only the first 8 bytes are shown.
func SecureFieldHash(data []byte, name string) logrus.Fields {
	preview := "nil"
	if len(data) > 0 {
		previewLen := 8
		if len(data) < previewLen {
			previewLen = len(data)
		}
		preview = fmt.Sprintf("%x", data[:previewLen])
		if len(data) > previewLen {
			preview += "..."
		}
	}

	return logrus.Fields{
		name + "_preview": preview,
		name + "_size":    len(data),
	}
}
