// Package audit defines the append-only ledger of record operations. Entries
// are write-once: the store port exposes no update or delete.
package audit

import (
	"context"
	"time"
)

// Outcome reports whether the audited operation succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry captures one operation attempt and its outcome. RecordID is empty for
// attempts denied before a record exists.
type Entry struct {
	ID            string    `json:"id"`
	RecordID      string    `json:"record_id,omitempty"`
	Operation     string    `json:"operation"`
	ActorID       string    `json:"actor_id"`
	ActorRole     string    `json:"actor_role"`
	Outcome       Outcome   `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	Justification string    `json:"justification,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Store is the append-only persistence port for audit entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Trail(ctx context.Context, recordID string) ([]Entry, error)
}
