package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config falls back to defaults", config: nil},
		{
			name:   "explicit debug config",
			config: &Config{Level: LevelDebug, Output: &bytes.Buffer{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("defrag top-up skipped")
	logger.Info("block written", "block", "block#1")
	if buf.Len() != 0 {
		t.Errorf("expected debug/info to be filtered at LevelWarn, got: %s", buf.String())
	}

	logger.Warn("ready queue growing", "depth", 42)
	if !strings.Contains(buf.String(), "ready queue growing") {
		t.Errorf("expected warn message to pass the filter, got: %s", buf.String())
	}
}

func TestLoggerFormatArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("write completed", "block", "block#7", "bytes", 1024)

	output := buf.String()
	if !strings.Contains(output, "write completed") {
		t.Errorf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, "block=block#7") {
		t.Errorf("expected block=block#7 in output, got: %s", output)
	}
	if !strings.Contains(output, "bytes=1024") {
		t.Errorf("expected bytes=1024 in output, got: %s", output)
	}
}

func TestLoggerPrintfVariants(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Errorf("defrag move failed for %s: %v", "block#3", "checksum mismatch")

	output := buf.String()
	if !strings.Contains(output, "[ERROR]") || !strings.Contains(output, "block#3") {
		t.Errorf("expected formatted error message, got: %s", output)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))

	Debug("debug message", "key", "value")
	if !strings.Contains(buf.String(), "debug message") || !strings.Contains(buf.String(), "key=value") {
		t.Errorf("expected debug message with key=value, got: %s", buf.String())
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("expected info message, got: %s", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("expected error message, got: %s", buf.String())
	}
}

func TestDefaultIsSingleton(t *testing.T) {
	SetDefault(nil)
	a := Default()
	b := Default()
	if a != b {
		t.Error("expected Default() to return the same logger instance once created")
	}
}
