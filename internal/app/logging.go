package app

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/config"
)

// SetupLogging configures the global logrus logger: json or text output at the configured level.
func SetupLogging(cfg config.LoggingConfig) error {
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	parsed, errLevel := log.ParseLevel(level)
	if errLevel != nil {
		return fmt.Errorf("app: logging level: %w", errLevel)
	}
	log.SetLevel(parsed)
	log.SetOutput(os.Stdout)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("app: unsupported logging format %q", cfg.Format)
	}
	return nil
}
