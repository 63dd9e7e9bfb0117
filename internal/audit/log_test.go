package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"conselho.org/internal/auth"
	"conselho.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithActor(ctx, "user-42", "admin")

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "audit.test" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", entry["user_id"])
	}
	if entry["role"] != "admin" {
		t.Fatalf("unexpected role: %v", entry["role"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEntryMirror(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	e := &Entry{
		ID:         "e1",
		RecordID:   "rec-1",
		Operation:  "REGISTER",
		ActorID:    "user-9",
		ActorRole:  "supervisor",
		Outcome:    OutcomeSuccess,
		Detail:     "record number AI-20260829-rec-1",
		OccurredAt: time.Now().UTC(),
	}
	if err := LogEntry(context.Background(), e); err != nil {
		t.Fatalf("LogEntry failed: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if line["event"] != "record.register" {
		t.Fatalf("unexpected event: %v", line["event"])
	}
	fields, _ := line["fields"].(map[string]any)
	if fields["record_id"] != "rec-1" || fields["outcome"] != "success" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}
