package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gatehouse-sso/gatehouse/pkg/contextkeys"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.SplitN(buf.String(), "\n", 2)[0]), &entry); err != nil {
		t.Fatalf("failed to parse log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Info("hello")

	entry := logLine(t, &buf)
	if entry["msg"] != "hello" {
		t.Errorf("expected msg hello, got %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("expected level INFO, got %v", entry["level"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected info to be suppressed at warn level, got %q", buf.String())
	}

	logger.Warn("emitted")
	if buf.Len() == 0 {
		t.Error("expected warn to be emitted at warn level")
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf).
		WithField("component", "token").
		WithError(errors.New("boom"))

	logger.Error("failed")

	entry := logLine(t, &buf)
	if entry["component"] != "token" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error field, got %v", entry["error"])
	}
}

func TestLoggerWithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, nil)
	if logger.WithError(nil) != logger {
		t.Error("expected WithError(nil) to return the same logger")
	}
}

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), base)
	ctx = contextkeys.WithRequestID(ctx, "req-9")

	FromContext(ctx).Info("traced")

	entry := logLine(t, &buf)
	if entry["request_id"] != "req-9" {
		t.Errorf("expected request_id req-9, got %v", entry["request_id"])
	}
}
