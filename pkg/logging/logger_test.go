package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		enabled zapcore.Level
		off     zapcore.Level
	}{
		{"debug level", "debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn level", "warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"default info", "", zapcore.InfoLevel, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.level, "json", "test")
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}
			if !logger.Core().Enabled(tt.enabled) {
				t.Fatalf("expected level %s to be enabled", tt.enabled)
			}
			if logger.Core().Enabled(tt.off) {
				t.Fatalf("expected level %s to be disabled", tt.off)
			}
		})
	}
}

func TestConsoleFormat(t *testing.T) {
	logger, err := New("info", "console", "")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("console logger works")
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	logger, _ := New("info", "json", "")
	if OrNop(logger) != logger {
		t.Fatal("OrNop should return the given logger")
	}
}
