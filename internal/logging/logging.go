// Package logging configures the shared logrus logger. The TUI owns the
// terminal, so the default sink is a file under the data directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/rommsen/budgetbuddy/internal/config"
)

// New builds a logger from config. An empty file path discards output.
func New(cfg config.LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	}

	if cfg.File == "" {
		log.SetOutput(io.Discard)
		return log, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir log dir: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return log, nil
}

// Component returns a logger tagged for one subsystem.
func Component(log logrus.FieldLogger, name string) logrus.FieldLogger {
	if log == nil {
		base := logrus.New()
		base.SetOutput(io.Discard)
		log = base
	}
	return log.WithField("component", name)
}
