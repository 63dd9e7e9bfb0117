package infraction

import (
	"fmt"
	"strings"
	"time"
)

// MinJustificationLen is the inclusive minimum trimmed length required to
// cancel a record.
const MinJustificationLen = 20

// Register moves a draft record to registered and assigns its number exactly
// once. Registering anything but a draft is a hard failure, never a no-op.
func (r *Record) Register(now time.Time) error {
	if r.Status != StatusDraft {
		return fmt.Errorf("%w: cannot register record in status %s", ErrInvalidTransition, r.Status)
	}
	r.Status = StatusRegistered
	if r.Number == "" {
		r.Number = "AI-" + now.UTC().Format("20060102") + "-" + r.ID
	}
	return nil
}

// Cancel moves a registered or concluded record to the terminal cancelled
// state, stamping canceller, time and justification immutably. Cancelling
// twice is a hard failure, never idempotent success.
func (r *Record) Cancel(actor Actor, justification string, now time.Time) error {
	switch r.Status {
	case StatusRegistered, StatusConcluded:
	case StatusCancelled:
		return fmt.Errorf("%w: record is already cancelled", ErrInvalidTransition)
	default:
		return fmt.Errorf("%w: cannot cancel record in status %s", ErrInvalidTransition, r.Status)
	}
	justification = strings.TrimSpace(justification)
	if len([]rune(justification)) < MinJustificationLen {
		return fmt.Errorf("%w: justification must have at least %d characters", ErrInvalidArgument, MinJustificationLen)
	}
	at := now.UTC()
	r.Status = StatusCancelled
	r.CancelledBy = actor.ID
	r.CancelledAt = &at
	r.CancelJustification = justification
	return nil
}

// Conclude marks a registered record as concluded.
func (r *Record) Conclude(now time.Time) error {
	if r.Status != StatusRegistered {
		return fmt.Errorf("%w: cannot conclude record in status %s", ErrInvalidTransition, r.Status)
	}
	r.Status = StatusConcluded
	return nil
}

// Update describes a field-level edit. Nil fields are left untouched;
// non-nil slices replace the owned sub-entities wholesale.
type Update struct {
	Establishment *string
	Description   *string
	Attachments   *[]Attachment
	Minors        *[]Minor
	Witnesses     *[]Witness
}

// ApplyEdits mutates record fields without changing status and stamps the
// last-updating actor and time. It returns the list of changed fields for the
// audit detail. Callers must run the EDIT policy check first.
func (r *Record) ApplyEdits(upd Update, actor Actor, now time.Time) ([]string, error) {
	var changed []string
	if upd.Establishment != nil {
		v := strings.TrimSpace(*upd.Establishment)
		if v == "" {
			return nil, fmt.Errorf("%w: establishment cannot be empty", ErrInvalidArgument)
		}
		if v != r.Establishment {
			r.Establishment = v
			changed = append(changed, "establishment")
		}
	}
	if upd.Description != nil {
		v := strings.TrimSpace(*upd.Description)
		if v != r.Description {
			r.Description = v
			changed = append(changed, "description")
		}
	}
	if upd.Attachments != nil {
		r.Attachments = append([]Attachment(nil), (*upd.Attachments)...)
		changed = append(changed, "attachments")
	}
	if upd.Minors != nil {
		r.Minors = append([]Minor(nil), (*upd.Minors)...)
		changed = append(changed, "minors")
	}
	if upd.Witnesses != nil {
		r.Witnesses = append([]Witness(nil), (*upd.Witnesses)...)
		changed = append(changed, "witnesses")
	}
	r.UpdatedBy = actor.ID
	r.UpdatedAt = now.UTC()
	return changed, nil
}
