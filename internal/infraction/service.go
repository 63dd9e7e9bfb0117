package infraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"conselho.org/internal/audit"
	"conselho.org/internal/ids"
	"conselho.org/internal/obs"
)

// Service orchestrates policy checks, state transitions, persistence and
// audit emission. Each call is one atomic unit: the record write and its
// audit entry commit together or not at all (the Store owns the transaction).
// No retries happen here; failures surface immediately to the caller.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for deterministic tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the lifecycle service over the given store.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("infraction store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateInput carries the initial fields of a draft record.
type CreateInput struct {
	Establishment string
	Description   string
	Attachments   []Attachment
	Minors        []Minor
	Witnesses     []Witness
}

// CreateRecord opens a new record in draft.
func (s *Service) CreateRecord(ctx context.Context, in CreateInput, actor Actor) (*Record, error) {
	if d := Decide(actor.Role, StatusDraft, OpCreate); !d.Allowed {
		return nil, s.denyBeforeRecord(ctx, OpCreate, actor, d.Reason)
	}
	establishment := strings.TrimSpace(in.Establishment)
	if establishment == "" {
		entry := s.newEntry("", OpCreate, actor)
		entry.Outcome = audit.OutcomeFailure
		entry.Reason = "establishment is required"
		if err := s.store.Append(ctx, entry); err != nil {
			return nil, err
		}
		s.observe(ctx, entry)
		return nil, fmt.Errorf("%w: establishment is required", ErrInvalidArgument)
	}

	now := s.now().UTC()
	rec := &Record{
		ID:            ids.New(),
		Status:        StatusDraft,
		Establishment: establishment,
		Description:   strings.TrimSpace(in.Description),
		CreatedBy:     actor.ID,
		CreatedAt:     now,
		UpdatedBy:     actor.ID,
		UpdatedAt:     now,
		Attachments:   append([]Attachment(nil), in.Attachments...),
		Minors:        append([]Minor(nil), in.Minors...),
		Witnesses:     append([]Witness(nil), in.Witnesses...),
	}
	entry := s.newEntry(rec.ID, OpCreate, actor)
	entry.Detail = "record created in draft"
	if err := s.store.Create(ctx, rec, entry); err != nil {
		return nil, err
	}
	s.observe(ctx, entry)
	return rec, nil
}

// EditRecord applies field-level edits under the EDIT policy.
func (s *Service) EditRecord(ctx context.Context, id string, upd Update, actor Actor) (*Record, error) {
	return s.mutate(ctx, id, OpEdit, actor, func(rec *Record, entry *audit.Entry) error {
		changed, err := rec.ApplyEdits(upd, actor, s.now())
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			entry.Detail = "no fields changed"
		} else {
			entry.Detail = "changed: " + strings.Join(changed, ", ")
		}
		return nil
	})
}

// RegisterRecord moves a draft record to registered, assigning its number.
func (s *Service) RegisterRecord(ctx context.Context, id string, actor Actor) (*Record, error) {
	return s.mutate(ctx, id, OpRegister, actor, func(rec *Record, entry *audit.Entry) error {
		if err := rec.Register(s.now()); err != nil {
			return err
		}
		entry.Detail = "assigned number " + rec.Number
		return nil
	})
}

// CancelRecord cancels a registered or concluded record with a mandatory
// justification of at least MinJustificationLen trimmed characters.
func (s *Service) CancelRecord(ctx context.Context, id, justification string, actor Actor) (*Record, error) {
	return s.mutate(ctx, id, OpCancel, actor, func(rec *Record, entry *audit.Entry) error {
		if err := rec.Cancel(actor, justification, s.now()); err != nil {
			return err
		}
		entry.Justification = rec.CancelJustification
		entry.Detail = "record cancelled"
		return nil
	})
}

// ConcludeRecord marks a registered record as concluded.
func (s *Service) ConcludeRecord(ctx context.Context, id string, actor Actor) (*Record, error) {
	return s.mutate(ctx, id, OpConclude, actor, func(rec *Record, entry *audit.Entry) error {
		if err := rec.Conclude(s.now()); err != nil {
			return err
		}
		entry.Detail = "record concluded"
		return nil
	})
}

// DeleteRecord removes a record, allowed only while still in draft.
func (s *Service) DeleteRecord(ctx context.Context, id string, actor Actor) error {
	var observed *audit.Entry
	err := s.store.Delete(ctx, id, func(rec *Record) (*audit.Entry, error) {
		entry := s.newEntry(id, OpDelete, actor)
		observed = entry
		if d := Decide(actor.Role, rec.Status, OpDelete); !d.Allowed {
			entry.Outcome = audit.OutcomeFailure
			entry.Reason = d.Reason
			return entry, fmt.Errorf("%w: %s", ErrAccessDenied, d.Reason)
		}
		if rec.Status != StatusDraft {
			entry.Outcome = audit.OutcomeFailure
			entry.Reason = "registered records are immutable to deletion"
			return entry, fmt.Errorf("%w: only draft records can be deleted", ErrInvalidTransition)
		}
		entry.Detail = "draft record deleted"
		return entry, nil
	})
	if observed != nil && (err == nil || isBusinessError(err)) {
		s.observe(ctx, observed)
	}
	return err
}

// GetRecord loads a record by id. View scoping by jurisdiction is a caller
// concern; reads are not audited.
func (s *Service) GetRecord(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// ListRecords pages through records ordered by id.
func (s *Service) ListRecords(ctx context.Context, limit int, afterID string) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.List(ctx, limit, afterID)
}

// AuditTrail returns the audit entries of a record, newest first.
func (s *Service) AuditTrail(ctx context.Context, recordID string) ([]audit.Entry, error) {
	return s.store.Trail(ctx, recordID)
}

// mutate runs op against a locked record: policy first, then fn. Denials and
// transition failures still persist their audit entry; the record is only
// written on success.
func (s *Service) mutate(ctx context.Context, id string, op Operation, actor Actor, fn func(rec *Record, entry *audit.Entry) error) (*Record, error) {
	var observed *audit.Entry
	rec, err := s.store.Mutate(ctx, id, func(rec *Record) (*audit.Entry, error) {
		entry := s.newEntry(id, op, actor)
		observed = entry
		if d := Decide(actor.Role, rec.Status, op); !d.Allowed {
			entry.Outcome = audit.OutcomeFailure
			entry.Reason = d.Reason
			return entry, fmt.Errorf("%w: %s", ErrAccessDenied, d.Reason)
		}
		if err := fn(rec, entry); err != nil {
			entry.Outcome = audit.OutcomeFailure
			entry.Reason = err.Error()
			return entry, err
		}
		return entry, nil
	})
	if observed != nil && (err == nil || isBusinessError(err)) {
		s.observe(ctx, observed)
	}
	return rec, err
}

func (s *Service) denyBeforeRecord(ctx context.Context, op Operation, actor Actor, reason string) error {
	entry := s.newEntry("", op, actor)
	entry.Outcome = audit.OutcomeFailure
	entry.Reason = reason
	if err := s.store.Append(ctx, entry); err != nil {
		return err
	}
	s.observe(ctx, entry)
	return fmt.Errorf("%w: %s", ErrAccessDenied, reason)
}

func (s *Service) newEntry(recordID string, op Operation, actor Actor) *audit.Entry {
	return &audit.Entry{
		ID:         ids.New(),
		RecordID:   recordID,
		Operation:  string(op),
		ActorID:    actor.ID,
		ActorRole:  string(actor.Role),
		Outcome:    audit.OutcomeSuccess,
		OccurredAt: s.now().UTC(),
	}
}

// observe mirrors a persisted entry to the log stream and counters.
func (s *Service) observe(ctx context.Context, entry *audit.Entry) {
	obs.ObserveRecordOperation(strings.ToLower(entry.Operation), string(entry.Outcome))
	_ = audit.LogEntry(ctx, entry)
}

func isBusinessError(err error) bool {
	return errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidArgument)
}
