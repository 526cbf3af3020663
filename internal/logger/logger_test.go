package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBuild_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "replicator", Version: "v1"}, &buf)
	sl := NewSlog(&zl)

	ctx := WithSequence(WithRequestID(context.Background(), "req-1"), 4123456)
	ctx = WithTile(ctx, "17/31675/47149")
	sl.InfoContext(ctx, "diff applied", "tiles", 3, "sleep", 43*time.Second)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":        "diff applied",
		"level":      "info",
		"component":  "replicator",
		"version":    "v1",
		"request_id": "req-1",
		"seq":        float64(4123456),
		"tile":       "17/31675/47149",
		"tiles":      float64(3),
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s=%v want %v", k, line[k], v)
		}
	}
	if _, ok := line["sleep"]; !ok {
		t.Error("duration attr missing")
	}
}

func TestBuild_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	sl := NewSlog(&zl)
	sl.Info("hidden")
	sl.Debug("hidden")
	sl.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("output=%q", out)
	}
	Build(Config{Level: "info"}, &buf)
}

func TestNewID_Unique(t *testing.T) {
	if a, b := NewID(), NewID(); a == b || len(a) != 16 {
		t.Fatalf("ids %q %q", a, b)
	}
}

func TestNewSlog_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	NewSlog(&zl).With("mode", "delete").WithGroup("ignored").Info("applier ready")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %q: %v", buf.String(), err)
	}
	if line["mode"] != "delete" || line["msg"] != "applier ready" {
		t.Fatalf("line=%v", line)
	}
}
