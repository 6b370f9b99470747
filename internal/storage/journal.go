package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hookd/internal/dispatch"
	"github.com/mattjoyce/hookd/internal/hook"
)

var _ dispatch.Journal = (*Journal)(nil)

// Journal persists handler steps to dispatch_log.
type Journal struct {
	db *sql.DB
}

// NewJournal wraps an opened state database.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record inserts one step under a fresh id.
func (j *Journal) Record(ctx context.Context, e dispatch.JournalEntry) error {
	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO dispatch_log(id, unit_of_work, entity, context, handler_id, position, status, error, started_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		uuid.NewString(),
		e.UnitOfWork,
		e.Entity,
		e.Context.String(),
		e.HandlerID,
		e.Position,
		string(e.Status),
		errText,
		e.StartedAt.UTC().Format(timeLayout),
		e.CompletedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert dispatch_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]dispatch.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT unit_of_work, entity, context, handler_id, position, status, error, started_at, completed_at
FROM dispatch_log
ORDER BY completed_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatch_log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []dispatch.JournalEntry
	for rows.Next() {
		var (
			e                  dispatch.JournalEntry
			kind, status       string
			errText            sql.NullString
			started, completed string
		)
		if err := rows.Scan(&e.UnitOfWork, &e.Entity, &kind, &e.HandlerID, &e.Position, &status, &errText, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan dispatch_log: %w", err)
		}
		e.Context, err = hook.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		e.Status = dispatch.Status(status)
		e.Error = errText.String
		if e.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("dispatch_log started_at %q: %w", started, err)
		}
		if e.CompletedAt, err = time.Parse(time.RFC3339Nano, completed); err != nil {
			return nil, fmt.Errorf("dispatch_log completed_at %q: %w", completed, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch_log: %w", err)
	}
	return out, nil
}
