package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/hookd/internal/hook"
	"github.com/mattjoyce/hookd/internal/registry"
)

var _ registry.Source = (*RegistrationStore)(nil)

// RegistrationStore keeps handler registrations in the handler_registration
// table. Rows come back in insertion order so ties on exec_order resolve the
// same way a YAML handlers: list does.
type RegistrationStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewRegistrationStore wraps an opened state database.
func NewRegistrationStore(db *sql.DB) *RegistrationStore {
	return &RegistrationStore{db: db, now: time.Now}
}

// StoredRegistration is a registration row with its bookkeeping columns.
type StoredRegistration struct {
	ID int64 `json:"id"`
	registry.Registration
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Add validates and inserts one registration, returning its row id.
func (s *RegistrationStore) Add(ctx context.Context, r registry.Registration) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO handler_registration(entity, context, exec_order, handler_id, active, created_at)
VALUES(?, ?, ?, ?, 1, ?);
`, r.Entity, r.Context.String(), r.Order, r.HandlerID, s.now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert registration: %w", err)
	}
	return res.LastInsertId()
}

// Replace swaps the whole table for regs in a single transaction. Every
// record is validated before anything is written.
func (s *RegistrationStore) Replace(ctx context.Context, regs []registry.Registration) error {
	for i, r := range regs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("registration %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM handler_registration;`); err != nil {
		return fmt.Errorf("clear registrations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO handler_registration(entity, context, exec_order, handler_id, active, created_at)
VALUES(?, ?, ?, ?, 1, ?);
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	created := s.now().UTC().Format(timeLayout)
	for _, r := range regs {
		if _, err := stmt.ExecContext(ctx, r.Entity, r.Context.String(), r.Order, r.HandlerID, created); err != nil {
			return fmt.Errorf("insert registration %s/%s/%s: %w", r.Entity, r.Context, r.HandlerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registrations: %w", err)
	}
	return nil
}

// Deactivate hides a registration from Registrations without deleting it.
func (s *RegistrationStore) Deactivate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE handler_registration SET active = 0 WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("deactivate registration %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("registration %d not found", id)
	}
	return nil
}

// Registrations returns active rows for entity in insertion order.
func (s *RegistrationStore) Registrations(ctx context.Context, entity string) ([]registry.Registration, error) {
	rows, err := s.query(ctx, `
SELECT id, entity, context, exec_order, handler_id, active, created_at
FROM handler_registration
WHERE entity = ? AND active = 1
ORDER BY id ASC;
`, strings.TrimSpace(entity))
	if err != nil {
		return nil, err
	}
	out := make([]registry.Registration, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Registration)
	}
	return out, nil
}

// All returns every row, active or not, in insertion order.
func (s *RegistrationStore) All(ctx context.Context) ([]StoredRegistration, error) {
	return s.query(ctx, `
SELECT id, entity, context, exec_order, handler_id, active, created_at
FROM handler_registration
ORDER BY id ASC;
`)
}

// Entities lists entities with at least one active registration.
func (s *RegistrationStore) Entities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT entity FROM handler_registration
WHERE active = 1
GROUP BY entity
ORDER BY MIN(id) ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *RegistrationStore) query(ctx context.Context, q string, args ...any) ([]StoredRegistration, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredRegistration
	for rows.Next() {
		var (
			r       StoredRegistration
			kind    string
			active  int
			created string
		)
		if err := rows.Scan(&r.ID, &r.Entity, &kind, &r.Order, &r.HandlerID, &active, &created); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		r.Context, err = hook.ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("registration %d: %w", r.ID, err)
		}
		r.Active = active == 1
		r.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("registration %d created_at %q: %w", r.ID, created, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}
