// Package infraction implements the lifecycle of infraction records (autos de
// infração): a finite-state record that moves through drafting, registration
// and cancellation under role- and status-dependent permissions, with every
// state-changing and access-denying operation written to an append-only audit
// trail.
package infraction

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a record. Transitions are monotonic:
// draft -> registered -> concluded, with cancelled reachable only from
// registered or concluded and terminal.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusRegistered Status = "registered"
	StatusConcluded  Status = "concluded"
	StatusCancelled  Status = "cancelled"
)

// Role is the enforcement role of an actor.
type Role string

const (
	RoleAgent      Role = "agent"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// Operation identifies a lifecycle intent submitted to the service.
type Operation string

const (
	OpCreate   Operation = "CREATE"
	OpEdit     Operation = "EDIT"
	OpRegister Operation = "REGISTER"
	OpCancel   Operation = "CANCEL"
	OpConclude Operation = "CONCLUDE"
	OpDelete   Operation = "DELETE"
	OpView     Operation = "VIEW"
)

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

var (
	ErrNotFound          = errors.New("record not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Attachment is a document owned by a record.
type Attachment struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Minor is a child or adolescent involved in the reported violation.
type Minor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age,omitempty"`
}

// Witness is a person who attested the reported facts.
type Witness struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
}

// Record is the case record representing a violation notice issued against an
// establishment. CancelledBy/CancelledAt/CancelJustification stay empty until
// cancellation and are immutable afterwards.
type Record struct {
	ID            string `json:"id"`
	Number        string `json:"number,omitempty"`
	Status        Status `json:"status"`
	Establishment string `json:"establishment"`
	Description   string `json:"description,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`

	CancelledBy         string     `json:"cancelled_by,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CancelJustification string     `json:"cancel_justification,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
	Minors      []Minor      `json:"minors,omitempty"`
	Witnesses   []Witness    `json:"witnesses,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.CancelledAt != nil {
		at := *r.CancelledAt
		cp.CancelledAt = &at
	}
	cp.Attachments = append([]Attachment(nil), r.Attachments...)
	cp.Minors = append([]Minor(nil), r.Minors...)
	cp.Witnesses = append([]Witness(nil), r.Witnesses...)
	return &cp
}
