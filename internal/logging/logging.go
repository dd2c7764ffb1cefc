// Package logging provides the runtime's structured logging, built on
// zerolog: one global logger, console and/or rotating-by-timestamp file
// output, and level parsing for the config/env layer.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it; everything else in
// this package reads through it.
var Logger zerolog.Logger

var logFile *os.File

// Level is zerolog's level type, re-exported so callers don't import
// zerolog directly just to pass a level into Config.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// defaultFilePrefix names the rotating log file when Config.FilePrefix is
// left empty. Named for this project rather than hard-coded inline so a
// caller can still override it (an embedder with its own product name,
// for instance) without forking the package.
const defaultFilePrefix = "agentvault"

// Config configures Init.
type Config struct {
	// Level is the minimum level that reaches Output/the log file.
	Level Level
	// Output receives console-formatted log lines. Defaults to os.Stderr.
	Output io.Writer
	// Pretty switches Output to zerolog's human-readable console writer.
	Pretty bool
	// TimeFormat formats the timestamp field. Defaults to time.RFC3339.
	TimeFormat string
	// LogToFile additionally writes every record to a timestamped file
	// under LogDir.
	LogToFile bool
	// LogDir is where the timestamped log file is created. Defaults to
	// /tmp.
	LogDir string
	// FilePrefix names the log file as "<FilePrefix>-<timestamp>.log".
	// Defaults to defaultFilePrefix.
	FilePrefix string
}

// DefaultConfig is what a caller gets before any vault- or env-supplied
// overrides apply.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Output:     os.Stderr,
		Pretty:     false,
		TimeFormat: time.RFC3339,
		LogToFile:  false,
		LogDir:     "/tmp",
		FilePrefix: defaultFilePrefix,
	}
}

// Init (re)configures the global Logger, closing any previously opened
// log file first.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "/tmp"
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = defaultFilePrefix
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	console := cfg.Output
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: cfg.TimeFormat}
	}

	writers := []io.Writer{console}
	if cfg.LogToFile {
		if f, err := openRotatingFile(cfg.LogDir, cfg.FilePrefix); err == nil {
			writers = append(writers, f)
		}
	}

	var output io.Writer = writers[0]
	if len(writers) > 1 {
		output = zerolog.MultiLevelWriter(writers...)
	}

	Logger = zerolog.New(output).Level(cfg.Level).With().Timestamp().Logger()
}

// openRotatingFile closes any previously opened log file and opens a
// fresh one named "<prefix>-<timestamp>.log" under dir.
func openRotatingFile(dir, prefix string) (*os.File, error) {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	name := fmt.Sprintf("%s-%s.log", prefix, time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	logFile = f
	return f, nil
}

// GetLogFilePath returns the current log file's path, or "" if Init
// wasn't given LogToFile.
func GetLogFilePath() string {
	if logFile != nil {
		return logFile.Name()
	}
	return ""
}

// Close closes the current log file, if any.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// ParseLevel parses a case-insensitive level name, falling back to
// InfoLevel for anything unrecognized.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event  { return Logger.Info() }
func Warn() *zerolog.Event  { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }
func Fatal() *zerolog.Event { return Logger.Fatal() }

// With starts a child-logger builder carrying extra fields.
func With() zerolog.Context { return Logger.With() }

func init() {
	Init(DefaultConfig())
}
