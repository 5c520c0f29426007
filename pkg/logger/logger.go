package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console or json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" split_words:"true"`
	MaxBackups int    `mapstructure:"max_backups" split_words:"true"`
	MaxAgeDays int    `mapstructure:"max_age_days" split_words:"true"`
}

// New builds a zerolog logger from cfg and installs it as the global logger.
func New(cfg Config) zerolog.Logger {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput is New with an explicit primary writer.
func NewWithOutput(cfg Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	primary := out
	if cfg.Format != "json" {
		primary = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{primary}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		})
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = zl
	return zl
}

// Nop returns a disabled logger, mostly for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
