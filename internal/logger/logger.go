// Package logger builds the server's logrus logger.
//
// Output goes to stderr because stdout carries the MCP protocol. When a log
// file is configured, entries are also written to it through a rotating
// lumberjack writer.
package logger

import (
	"fmt"
	"io"
	"os"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ironsheep/starfind-mcp/internal/config"
)

// CallIDKey is the field carrying the per-call id.
const CallIDKey = "call_id"

// Fields is an alias so callers need not import logrus for field maps.
type Fields = logrus.Fields

// New returns a logger configured from cfg. It writes to stderr and, when
// cfg.File is set, to a rotating file as well.
func New(cfg config.Log) (*logrus.Logger, error) {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput is New with an explicit console writer.
func NewWithOutput(cfg config.Log, console io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(defaultString(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	log := logrus.New()
	log.SetLevel(level)

	switch defaultString(cfg.Format, "text") {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	case "text":
		log.SetFormatter(&formatter.Formatter{
			NoColors:        true,
			TimestampFormat: "2006-01-02 15:04:05",
			HideKeys:        false,
			FieldsOrder:     []string{CallIDKey, "tool"},
		})
	default:
		return nil, fmt.Errorf("invalid log format: %q", cfg.Format)
	}

	writers := []io.Writer{console}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}
	log.SetOutput(io.MultiWriter(writers...))

	return log, nil
}

// WithCallID returns an entry tagged with a fresh call id, plus the id.
func WithCallID(log logrus.FieldLogger, fields Fields) (*logrus.Entry, string) {
	id := uuid.NewString()
	entry := log.WithField(CallIDKey, id)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	return entry, id
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
