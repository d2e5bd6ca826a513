package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aigateway/internal/config"
	log "github.com/sirupsen/logrus"
)

var (
	logMux        sync.Mutex
	logFileHandle *os.File
)

// Setup configures the global logrus logger using runtime configuration.
// It is idempotent and can be called multiple times; the most recent call wins.
func Setup(cfg *config.GatewayConfig) error {
	logMux.Lock()
	defer logMux.Unlock()

	var formatter log.Formatter = &log.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	if cfg != nil && cfg.Debug {
		formatter = &log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		}
	}
	log.SetFormatter(formatter)

	level := parseLevel(cfg)
	log.SetLevel(level)

	var writers []io.Writer
	writers = append(writers, os.Stdout)

	if logFileHandle != nil {
		_ = logFileHandle.Close()
		logFileHandle = nil
	}

	if cfg != nil && cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logFileHandle = file
		writers = append(writers, file)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// parseLevel maps KIRO_LOG_LEVEL (via cfg.LogLevel) onto a logrus level,
// with Debug forcing debug output regardless of the configured level.
func parseLevel(cfg *config.GatewayConfig) log.Level {
	if cfg == nil {
		return log.InfoLevel
	}
	if cfg.Debug {
		return log.DebugLevel
	}
	switch cfg.LogLevel {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
