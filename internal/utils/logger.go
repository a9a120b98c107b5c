package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level string
	Dir   string
	File  string // empty disables the process log file
}

// NewLogger builds the process logger: console output plus an optional rotated file.
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if cfg.File != "" {
		dir := cfg.Dir
		if dir == "" {
			dir = "logs"
		}
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   filepath.Join(dir, cfg.File),
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// JobLogger writes one log file per analysis run and mirrors it to stdout.
type JobLogger struct {
	file   *lumberjack.Logger
	logger zerolog.Logger
	path   string
}

func NewJobLogger(dir, host string) (*JobLogger, error) {
	// Sanitize host for file system
	sanitized := SanitizeName(host)

	if dir == "" {
		dir = "logs"
	}
	hostDir := filepath.Join(dir, sanitized)
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(hostDir, fmt.Sprintf("analysis_%s_%s.log", sanitized, timestamp))

	file := &lumberjack.Logger{
		Filename: logPath,
		MaxSize:  10,
	}

	// Create multi-writer for both file and stdout
	multiWrite := io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, file)
	logger := zerolog.New(multiWrite).With().Timestamp().Str("sitemap_host", host).Logger()

	return &JobLogger{
		file:   file,
		logger: logger,
		path:   logPath,
	}, nil
}

func (jl *JobLogger) LogInfo(format string, v ...interface{}) {
	jl.logger.Info().Msgf(format, v...)
}

func (jl *JobLogger) LogError(format string, v ...interface{}) {
	jl.logger.Error().Msgf(format, v...)
}

func (jl *JobLogger) LogDebug(format string, v ...interface{}) {
	jl.logger.Debug().Msgf(format, v...)
}

// Logger exposes the underlying zerolog logger so it can be handed to components.
func (jl *JobLogger) Logger() zerolog.Logger {
	return jl.logger
}

func (jl *JobLogger) Path() string {
	return jl.path
}

func (jl *JobLogger) Close() error {
	return jl.file.Close()
}

// SanitizeName lowercases a name and replaces characters unsafe in file names.
func SanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
