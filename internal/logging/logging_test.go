package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_RejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNew_DefaultsToInfo(t *testing.T) {
	log, err := New(Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be disabled at the default level")
	}
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	log, err := New(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	Stage(log, StageCompile).Info("artifact produced")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "artifact produced") {
		t.Fatalf("log file missing entry: %s", data)
	}
	if !strings.Contains(string(data), StageCompile) {
		t.Fatalf("log entry missing stage name: %s", data)
	}
}

func TestStage_NilRootIsNop(t *testing.T) {
	log := Stage(nil, StageBatch)
	// Must not panic.
	log.Info("ignored")
}
