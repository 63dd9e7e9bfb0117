package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"conselho.org/internal/auth"
	"conselho.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log line enriched with request and actor context.
// This mirror stream complements the persisted entries; the rows in the store
// remain the source of truth.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry["user_id"] = userID
	}
	if role, ok := auth.RoleFromContext(ctx); ok {
		entry["role"] = role
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// LogEntry emits the JSON mirror of a persisted audit entry.
func LogEntry(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is required")
	}
	fields := map[string]any{
		"operation":  entry.Operation,
		"actor_id":   entry.ActorID,
		"actor_role": entry.ActorRole,
		"outcome":    string(entry.Outcome),
	}
	if entry.RecordID != "" {
		fields["record_id"] = entry.RecordID
	}
	if entry.Detail != "" {
		fields["detail"] = entry.Detail
	}
	if entry.Justification != "" {
		fields["justification"] = entry.Justification
	}
	if entry.Reason != "" {
		fields["reason"] = entry.Reason
	}
	return LogEvent(ctx, "record."+strings.ToLower(entry.Operation), fields)
}
