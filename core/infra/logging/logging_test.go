package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return &buf
}

func TestInfoTextFormat(t *testing.T) {
	t.Setenv(envLogFormat, "")
	buf := captureLogs(t)

	Info("layout", "hello", "key", "val")
	got := strings.TrimSpace(buf.String())
	if !strings.Contains(got, "INFO") || !strings.Contains(got, "hello") || !strings.Contains(got, `"key": "val"`) {
		t.Fatalf("unexpected log output: %s", got)
	}
}

func TestErrorJSONFormat(t *testing.T) {
	t.Setenv(envLogFormat, "json")
	buf := captureLogs(t)

	Error("validation", "boom", "code", 500, "err", errors.New("too big"))
	line := strings.TrimSpace(buf.String())
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("expected json output, got: %s", line)
	}
	if payload["level"] != "ERROR" || payload["component"] != "validation" || payload["msg"] != "boom" {
		t.Fatalf("unexpected json payload: %#v", payload)
	}
	if payload["code"] != float64(500) || payload["err"] != "too big" {
		t.Fatalf("unexpected fields: %#v", payload)
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(envLogFormat, "json")
	t.Setenv(envLogLevel, "warn")
	buf := captureLogs(t)

	Debug("entries", "hidden")
	Info("entries", "hidden too")
	Warn("entries", "shown")
	got := buf.String()
	if strings.Contains(got, "hidden") || !strings.Contains(got, "shown") {
		t.Fatalf("unexpected level filtering: %s", got)
	}
}

func TestOddFieldsArePadded(t *testing.T) {
	t.Setenv(envLogFormat, "json")
	buf := captureLogs(t)

	Info("cli", "odd", "dangling")
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["dangling"] != "(missing)" {
		t.Fatalf("expected padded value, got %#v", payload)
	}
}
