package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat("json"), WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("api").With(String("request_id", "r1")).Info(context.Background(), "scored",
		Float64("final", 87.5),
		Int("words", 9),
		Bool("fallback", false),
		Duration("elapsed", time.Second),
		Error(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "scored" {
		t.Errorf("msg = %v", rec["msg"])
	}
	group, ok := rec["api"].(map[string]any)
	if !ok {
		t.Fatalf("expected api group, got %v", rec)
	}
	if group["request_id"] != "r1" || group["final"] != 87.5 {
		t.Errorf("unexpected fields: %v", group)
	}
	if src, _ := group["source"].(string); !strings.Contains(src, "logger_test.go") {
		t.Errorf("source = %q, want the calling file", src)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	Get().Debug(ctx, "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %q", buf.String())
	}

	if err := SetLevelString("debug"); err != nil {
		t.Fatal(err)
	}
	Get().Debug(ctx, "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug not written at debug level: %q", buf.String())
	}

	buf.Reset()
	if err := SetLevelString("WARNING"); err != nil {
		t.Fatal(err)
	}
	Get().Info(ctx, "quiet")
	Get().Warn(ctx, "loud")
	Get().Error(ctx, "louder")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "louder") {
		t.Fatalf("unexpected output at warn level: %q", buf.String())
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := SetLevelString(""); err != nil {
		t.Fatal(err)
	}
}
