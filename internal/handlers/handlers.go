// Package handlers provides built-in handlers that configuration can refer
// to by ID. Importing the package registers them in catalog.Default.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/hookd/internal/catalog"
	"github.com/mattjoyce/hookd/internal/hook"
	"github.com/mattjoyce/hookd/internal/log"
)

// Built-in handler IDs.
const (
	AuditLogID        = "AuditLog"
	RequireRecordsID  = "RequireRecords"
	StampTimestampsID = "StampTimestamps"
	BlockDeleteID     = "BlockDelete"
)

// ErrDeleteBlocked is returned by BlockDelete.
var ErrDeleteBlocked = errors.New("delete is not allowed")

// ErrNoRecords is returned by RequireRecords.
var ErrNoRecords = errors.New("event carries no records")

func init() {
	Register(catalog.Default())
}

// Register adds the built-in handlers to c.
func Register(c *catalog.Catalog) {
	c.MustRegister(AuditLogID, func() hook.Handler { return &auditLog{KindSet: hook.AllKinds()} })
	c.MustRegister(RequireRecordsID, func() hook.Handler {
		return &requireRecords{KindSet: hook.BeforeKinds()}
	})
	c.MustRegister(StampTimestampsID, func() hook.Handler {
		return &stampTimestamps{KindSet: hook.On(hook.BeforeCreate, hook.BeforeUpdate), now: time.Now}
	})
	c.MustRegister(BlockDeleteID, func() hook.Handler { return &blockDelete{KindSet: hook.On(hook.BeforeDelete)} })
}

type auditLog struct{ hook.KindSet }

func (h *auditLog) Run(_ context.Context, ev *hook.Event) error {
	log.WithEntity(ev.Entity).Info("audit",
		"unit_of_work", ev.UnitOfWork,
		"context", ev.Context.String(),
		"records", len(ev.Records),
	)
	return nil
}

type requireRecords struct{ hook.KindSet }

func (h *requireRecords) Run(_ context.Context, ev *hook.Event) error {
	if len(ev.Records) == 0 {
		return fmt.Errorf("%s %s: %w", ev.Entity, ev.Context, ErrNoRecords)
	}
	return nil
}

// stampTimestamps sets created_at on create and updated_at on create and update.
type stampTimestamps struct {
	hook.KindSet
	now func() time.Time
}

func (h *stampTimestamps) Run(_ context.Context, ev *hook.Event) error {
	ts := h.now().UTC().Format(time.RFC3339)
	for _, r := range ev.Records {
		if r == nil {
			continue
		}
		if ev.Context == hook.BeforeCreate {
			if _, ok := r["created_at"]; !ok {
				r["created_at"] = ts
			}
		}
		r["updated_at"] = ts
	}
	return nil
}

type blockDelete struct{ hook.KindSet }

func (h *blockDelete) Run(_ context.Context, ev *hook.Event) error {
	return fmt.Errorf("%s: %w", ev.Entity, ErrDeleteBlocked)
}
