// Package logging provides structured logging setup for the bot.
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg_loyalty_bot/internal/config"
)

const serviceName = "loyalty-bot"

var baseLogger *logrus.Entry

type entryKey struct{}

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Option adjusts the logger built by Setup.
type Option func(*logrus.Logger)

// WithOutput redirects log output, mostly for tests.
func WithOutput(w io.Writer) Option {
	return func(l *logrus.Logger) {
		l.SetOutput(w)
	}
}

// Setup configures the global logger: JSON in production, text in
// development, the configured level, and service/env on every line.
func Setup(cfg config.Config, opts ...Option) (*logrus.Entry, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	baseLogger = newBase(cfg.AppEnv, level, opts...)
	return baseLogger, nil
}

// Logger returns the configured base logger, or a production default when
// Setup has not run yet.
func Logger() *logrus.Entry {
	if baseLogger == nil {
		baseLogger = newBase(config.DefaultAppEnv, logrus.InfoLevel)
	}
	return baseLogger
}

// ForUpdate derives a request-scoped entry carrying a fresh request_id and
// the sender's user_id, and stores it in the returned context.
func ForUpdate(ctx context.Context, fallback *logrus.Entry, userID string) (context.Context, *logrus.Entry) {
	fields := Fields{"request_id": uuid.NewString()}
	if userID != "" {
		fields["user_id"] = userID
	}

	entry := FromContext(ctx, fallback).WithFields(fields)
	return NewContext(ctx, entry), entry
}

// NewContext stores a request-scoped entry so downstream handlers log with the
// same request_id and user_id.
func NewContext(ctx context.Context, entry *logrus.Entry) context.Context {
	if ctx == nil || entry == nil {
		return ctx
	}
	return context.WithValue(ctx, entryKey{}, entry)
}

// FromContext returns the entry stored by NewContext, or fallback when absent.
// A nil fallback resolves to the base logger.
func FromContext(ctx context.Context, fallback *logrus.Entry) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(entryKey{}).(*logrus.Entry); ok && entry != nil {
			return entry
		}
	}
	if fallback != nil {
		return fallback
	}
	return Logger()
}

// Info logs on the base logger; used before the bot is wired.
func Info(msg string, fields Fields) {
	logAt(logrus.InfoLevel, msg, fields)
}

// Warn logs on the base logger.
func Warn(msg string, fields Fields) {
	logAt(logrus.WarnLevel, msg, fields)
}

// Error logs on the base logger.
func Error(msg string, fields Fields) {
	logAt(logrus.ErrorLevel, msg, fields)
}

func logAt(level logrus.Level, msg string, fields Fields) {
	entry := Logger()
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Log(level, msg)
}

func newBase(appEnv string, level logrus.Level, opts ...Option) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterForEnv(appEnv))
	for _, opt := range opts {
		opt(logger)
	}

	return logger.WithFields(Fields{
		"service": serviceName,
		"env":     appEnv,
	})
}

func formatterForEnv(appEnv string) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if appEnv == config.EnvDevelopment {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func parseLevel(value string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}

	return level, nil
}

// resetLogger clears the cached logger; used in tests.
func resetLogger() {
	baseLogger = nil
}
