// Package pg implements the persistence ports over PostgreSQL. Each mutating
// call runs in a single transaction: the record write and its audit entry
// share fate, and the record row is locked for the duration of the call.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"conselho.org/internal/audit"
	"conselho.org/internal/ids"
	"conselho.org/internal/infraction"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var _ infraction.Store = (*Store)(nil)

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const recordColumns = `id, number, status, establishment, description,
	created_by, created_at, updated_by, updated_at,
	cancelled_by, cancelled_at, cancel_justification,
	attachments, minors, witnesses`

func (s *Store) Create(ctx context.Context, rec *infraction.Record, entry *audit.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into records (`+recordColumns+`)
		values ($1, nullif($2,''), $3, $4, $5, $6, $7, $8, $9,
			nullif($10,''), $11, nullif($12,''), $13, $14, $15)
	`, recordArgs(rec)...); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("record %s already exists", rec.ID)
		}
		return err
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Get(ctx context.Context, id string) (*infraction.Record, error) {
	row := s.db.QueryRowContext(ctx, `select `+recordColumns+` from records where id=$1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infraction.ErrNotFound
	}
	return rec, err
}

func (s *Store) List(ctx context.Context, limit int, afterID string) ([]infraction.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+recordColumns+` from records
		where id > $1
		order by id asc
		limit $2
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []infraction.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

// Mutate loads the record under `select ... for update` in a serializable
// transaction and applies fn. A failing fn still gets its audit entry
// committed; the record row is only updated on success.
func (s *Store) Mutate(ctx context.Context, id string, fn infraction.MutateFunc) (*infraction.Record, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := lockRecord(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	entry, fnErr := fn(rec)
	if fnErr != nil {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, fnErr
	}

	if _, err := tx.ExecContext(ctx, `
		update records set
			number = nullif($2,''),
			status = $3,
			establishment = $4,
			description = $5,
			updated_by = $6,
			updated_at = $7,
			cancelled_by = nullif($8,''),
			cancelled_at = $9,
			cancel_justification = nullif($10,''),
			attachments = $11,
			minors = $12,
			witnesses = $13
		where id = $1
	`, rec.ID, rec.Number, rec.Status, rec.Establishment, rec.Description,
		rec.UpdatedBy, rec.UpdatedAt, rec.CancelledBy, nullTime(rec.CancelledAt),
		rec.CancelJustification, mustJSON(rec.Attachments), mustJSON(rec.Minors),
		mustJSON(rec.Witnesses)); err != nil {
		return nil, err
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the record row, subject to the same lock and shared-fate
// audit semantics as Mutate.
func (s *Store) Delete(ctx context.Context, id string, fn infraction.MutateFunc) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := lockRecord(ctx, tx, id)
	if err != nil {
		return err
	}

	entry, fnErr := fn(rec)
	if fnErr != nil {
		if err := insertAudit(ctx, tx, entry); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		return fnErr
	}

	if _, err := tx.ExecContext(ctx, `delete from records where id=$1`, id); err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	return insertAudit(ctx, s.db, entry)
}

func (s *Store) Trail(ctx context.Context, recordID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, coalesce(record_id,''), operation, actor_id, actor_role,
			outcome, detail, coalesce(justification,''), coalesce(reason,''), occurred_at
		from audit_entries
		where record_id = $1
		order by occurred_at desc, id desc
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Operation, &e.ActorID, &e.ActorRole,
			&e.Outcome, &e.Detail, &e.Justification, &e.Reason, &e.OccurredAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, ex execer, entry *audit.Entry) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	_, err := ex.ExecContext(ctx, `
		insert into audit_entries (id, record_id, operation, actor_id, actor_role,
			outcome, detail, justification, reason, occurred_at)
		values ($1, nullif($2,''), $3, $4, $5, $6, $7, nullif($8,''), nullif($9,''), $10)
	`, entry.ID, entry.RecordID, entry.Operation, entry.ActorID, entry.ActorRole,
		entry.Outcome, entry.Detail, entry.Justification, entry.Reason, entry.OccurredAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func lockRecord(ctx context.Context, tx *sql.Tx, id string) (*infraction.Record, error) {
	row := tx.QueryRowContext(ctx, `select `+recordColumns+` from records where id=$1 for update`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, infraction.ErrNotFound
	}
	return rec, err
}

func scanRecord(row rowScanner) (*infraction.Record, error) {
	var (
		rec           infraction.Record
		number        sql.NullString
		description   sql.NullString
		cancelledBy   sql.NullString
		cancelledAt   sql.NullTime
		justification sql.NullString
		attachments   []byte
		minors        []byte
		witnesses     []byte
	)
	if err := row.Scan(&rec.ID, &number, &rec.Status, &rec.Establishment, &description,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedBy, &rec.UpdatedAt,
		&cancelledBy, &cancelledAt, &justification,
		&attachments, &minors, &witnesses); err != nil {
		return nil, err
	}
	rec.Number = number.String
	rec.Description = description.String
	rec.CancelledBy = cancelledBy.String
	if cancelledAt.Valid {
		at := cancelledAt.Time
		rec.CancelledAt = &at
	}
	rec.CancelJustification = justification.String
	if err := json.Unmarshal(orEmptyArray(attachments), &rec.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	if err := json.Unmarshal(orEmptyArray(minors), &rec.Minors); err != nil {
		return nil, fmt.Errorf("decode minors: %w", err)
	}
	if err := json.Unmarshal(orEmptyArray(witnesses), &rec.Witnesses); err != nil {
		return nil, fmt.Errorf("decode witnesses: %w", err)
	}
	return &rec, nil
}

func recordArgs(rec *infraction.Record) []any {
	return []any{
		rec.ID, rec.Number, rec.Status, rec.Establishment, rec.Description,
		rec.CreatedBy, rec.CreatedAt, rec.UpdatedBy, rec.UpdatedAt,
		rec.CancelledBy, nullTime(rec.CancelledAt), rec.CancelJustification,
		mustJSON(rec.Attachments), mustJSON(rec.Minors), mustJSON(rec.Witnesses),
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return []byte("[]")
	}
	return data
}

func orEmptyArray(data []byte) []byte {
	if len(data) == 0 {
		return []byte("[]")
	}
	return data
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
