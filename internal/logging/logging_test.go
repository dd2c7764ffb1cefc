package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != InfoLevel {
		t.Errorf("expected Level to be InfoLevel, got %v", cfg.Level)
	}
	if cfg.Output != os.Stderr {
		t.Error("expected Output to be os.Stderr")
	}
	if cfg.Pretty {
		t.Error("expected Pretty to default to false")
	}
	if cfg.TimeFormat != time.RFC3339 {
		t.Errorf("expected TimeFormat to be RFC3339, got %s", cfg.TimeFormat)
	}
	if cfg.LogToFile {
		t.Error("expected LogToFile to default to false")
	}
	if cfg.LogDir != "/tmp" {
		t.Errorf("expected LogDir to default to /tmp, got %s", cfg.LogDir)
	}
	if cfg.FilePrefix != defaultFilePrefix {
		t.Errorf("expected FilePrefix to default to %q, got %q", defaultFilePrefix, cfg.FilePrefix)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"  DEBUG  ", DebugLevel},
		{"INFO", InfoLevel},
		{"info", InfoLevel},
		{"WARN", WarnLevel},
		{"warn", WarnLevel},
		{"WARNING", WarnLevel},
		{"warning", WarnLevel},
		{"ERROR", ErrorLevel},
		{"error", ErrorLevel},
		{"FATAL", FatalLevel},
		{"fatal", FatalLevel},
		{"unknown", InfoLevel},
		{"", InfoLevel},
		{"INVALID", InfoLevel},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParseLevel(tc.input); got != tc.expected {
				t.Errorf("ParseLevel(%q) = %v, expected %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitWritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})

	Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("expected output to contain 'test message', got %s", output)
	}
	if !strings.Contains(output, "info") {
		t.Errorf("expected output to contain the info level, got %s", output)
	}
}

func TestInitWithPrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf, Pretty: true})

	Info().Msg("pretty test")

	if output := buf.String(); !strings.Contains(output, "pretty test") {
		t.Errorf("expected output to contain 'pretty test', got %s", output)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, Output: &buf})

	Debug().Msg("debug message")
	Info().Msg("info message")
	Warn().Msg("warn message")
	Error().Msg("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("debug message should be filtered out below WarnLevel")
	}
	if strings.Contains(output, "info message") {
		t.Error("info message should be filtered out below WarnLevel")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("warn message should pass the WarnLevel filter")
	}
	if !strings.Contains(output, "error message") {
		t.Error("error message should pass the WarnLevel filter")
	}
}

func TestLogToFileUsesProjectPrefix(t *testing.T) {
	dir := t.TempDir()
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir})
	defer Close()

	Info().Msg("file log test")

	path := GetLogFilePath()
	if path == "" {
		t.Fatal("expected a log file path to be set")
	}
	if !strings.HasPrefix(path, dir) {
		t.Errorf("log file path %s should be under %s", path, dir)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, defaultFilePrefix+"-") || !strings.HasSuffix(name, ".log") {
		t.Errorf("unexpected log file name: %s", name)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(content), "file log test") {
		t.Errorf("log file should contain 'file log test', got %s", content)
	}
}

func TestLogToFileHonorsCustomPrefix(t *testing.T) {
	dir := t.TempDir()
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir, FilePrefix: "myagent"})
	defer Close()

	name := filepath.Base(GetLogFilePath())
	if !strings.HasPrefix(name, "myagent-") {
		t.Errorf("expected the custom prefix to be honored, got %s", name)
	}
}

func TestClose(t *testing.T) {
	dir := t.TempDir()
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir})

	if GetLogFilePath() == "" {
		t.Fatal("expected a log file path before Close")
	}

	Close()

	if GetLogFilePath() != "" {
		t.Error("expected an empty log file path after Close")
	}
}

func TestGetLogFilePathWhenNotLoggingToFile(t *testing.T) {
	Close() // clear state left by a previous test
	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: false})

	if GetLogFilePath() != "" {
		t.Error("expected an empty log file path when LogToFile is false")
	}
}

func TestWithAddsChildLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})

	child := With().Str("component", "test").Logger()
	child.Info().Msg("with context")

	output := buf.String()
	if !strings.Contains(output, "component") {
		t.Errorf("expected output to contain the 'component' field, got %s", output)
	}
	if !strings.Contains(output, "test") {
		t.Errorf("expected output to contain the field value, got %s", output)
	}
}

func TestLogWithStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})

	Info().Str("key", "value").Int("count", 42).Bool("enabled", true).Msg("message with fields")

	output := buf.String()
	if !strings.Contains(output, `"key":"value"`) {
		t.Errorf("expected output to contain the key field, got %s", output)
	}
	if !strings.Contains(output, `"count":42`) {
		t.Errorf("expected output to contain the count field, got %s", output)
	}
	if !strings.Contains(output, `"enabled":true`) {
		t.Errorf("expected output to contain the enabled field, got %s", output)
	}
}

func TestInitWithNilOutputDefaultsToStderr(t *testing.T) {
	Init(Config{Level: InfoLevel, Output: nil}) // must not panic
}

func TestInitWithEmptyTimeFormatDefaultsToRFC3339(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf, TimeFormat: ""})

	Info().Msg("time format test")

	if output := buf.String(); !strings.Contains(output, "time format test") {
		t.Errorf("expected output to contain the message, got %s", output)
	}
}

func TestInitWithEmptyLogDirDefaultsToTmp(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf, LogToFile: true, LogDir: ""})
	defer Close()

	if path := GetLogFilePath(); path != "" && !strings.HasPrefix(path, "/tmp") {
		t.Errorf("expected the log path to default under /tmp, got %s", path)
	}
}

func TestReinitOpensADistinctLogFile(t *testing.T) {
	dir := t.TempDir()

	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir})
	first := GetLogFilePath()

	time.Sleep(time.Second) // force a distinct timestamp in the next file name

	Init(Config{Level: InfoLevel, Output: &bytes.Buffer{}, LogToFile: true, LogDir: dir})
	defer Close()
	second := GetLogFilePath()

	if first == second {
		t.Error("expected reinit to produce a distinct log file path")
	}
	if _, err := os.Stat(first); os.IsNotExist(err) {
		t.Errorf("expected the first log file to still exist: %s", first)
	}
	if _, err := os.Stat(second); os.IsNotExist(err) {
		t.Errorf("expected the second log file to exist: %s", second)
	}
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, Output: &buf})

	Debug().Msg("debug test")

	if output := buf.String(); !strings.Contains(output, "debug test") {
		t.Errorf("expected the debug message in output, got %s", output)
	}
}

func TestErrorLevelIncludesErrDetail(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, Output: &buf})

	Error().Err(os.ErrNotExist).Msg("error test")

	output := buf.String()
	if !strings.Contains(output, "error test") {
		t.Errorf("expected the error message in output, got %s", output)
	}
	if !strings.Contains(output, "file does not exist") {
		t.Errorf("expected the wrapped error detail in output, got %s", output)
	}
}
