package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultLevel(t *testing.T) {
	logger, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Sync()
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled without Verbose")
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be enabled")
	}
}

func TestNewVerbose(t *testing.T) {
	logger, err := New(Options{Verbose: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Sync()
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be enabled with Verbose")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	logger := zap.NewNop()
	if OrNop(logger) != logger {
		t.Error("OrNop should pass a non-nil logger through")
	}
}
