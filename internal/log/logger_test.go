package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func reset() {
	logger = nil
	once = *new(sync.Once)
}

func TestSetupWriterLevels(t *testing.T) {
	reset()
	defer reset()

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "json")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}

	Info("dropped")
	Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info message should be filtered at WARN, got %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn message missing, got %s", out)
	}
}

func TestSetupWriterText(t *testing.T) {
	reset()
	defer reset()

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "text")
	Debug("hello", "k", "v")

	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "k=v") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestParseLevelFallback(t *testing.T) {
	if got := parseLevel("verbose"); got != slog.LevelInfo {
		t.Errorf("parseLevel(verbose) = %v, want INFO", got)
	}
	if got := parseLevel("Error"); got != slog.LevelError {
		t.Errorf("parseLevel(Error) = %v, want ERROR", got)
	}
}

func TestContextHelpers(t *testing.T) {
	defer reset()

	tests := []struct {
		name  string
		build func() *slog.Logger
		key   string
		want  string
	}{
		{name: "component", build: func() *slog.Logger { return WithComponent("test-comp") }, key: "component", want: "test-comp"},
		{name: "entity", build: func() *slog.Logger { return WithEntity("Order") }, key: "entity", want: "Order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger = slog.New(slog.NewJSONHandler(&buf, nil))

			tt.build().Info("hello")

			var out map[string]any
			if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
				t.Fatalf("Failed to decode JSON: %v", err)
			}
			if out[tt.key] != tt.want {
				t.Errorf("Expected %s %q, got %v", tt.key, tt.want, out[tt.key])
			}
			if out["msg"] != "hello" {
				t.Errorf("Expected msg 'hello', got %v", out["msg"])
			}
		})
	}
}
