// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"game-slot-scheduler/internal/config"
)

// Setup installs the global logger described by cfg and returns the
// writer it uses so callers can close a rotating file on shutdown.
func Setup(cfg config.LogConfig) io.Writer {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := newWriter(cfg, os.Stderr)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return out
}

func newWriter(cfg config.LogConfig, stderr io.Writer) io.Writer {
	var console io.Writer = stderr
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}

	if cfg.File == "" {
		return console
	}

	// File output is always JSON.
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return zerolog.MultiLevelWriter(console, file)
}
