package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hookd/internal/hook"
	"github.com/mattjoyce/hookd/internal/log"
	"github.com/mattjoyce/hookd/internal/registry"
)

// Resolver turns a handler ID into a fresh handler instance.
type Resolver interface {
	Resolve(id string) (hook.Handler, error)
}

// Journal receives one entry per handler the dispatcher touched. It is a
// sink: a failing journal is logged and never fails the dispatch.
type Journal interface {
	Record(ctx context.Context, e JournalEntry) error
}

// Status is the outcome of one handler within a dispatch.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"   // Run returned an error
	StatusRejected  Status = "rejected" // resolve or contract check failed; Run never called
)

// JournalEntry describes one handler step.
type JournalEntry struct {
	UnitOfWork  string    `json:"unit_of_work"`
	Entity      string    `json:"entity"`
	Context     hook.Kind `json:"context"`
	HandlerID   string    `json:"handler_id"`
	Position    int       `json:"position"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Dispatcher runs registered handlers for (entity, context) pairs. It holds
// no per-request state and may be shared; per-request state lives in the
// UnitOfWork returned by Begin.
type Dispatcher struct {
	source   registry.Source
	resolver Resolver
	journal  Journal
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithJournal records every handler step to j.
func WithJournal(j Journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher reading registrations from src and resolving
// handlers through res.
func New(src registry.Source, res Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:   src,
		resolver: res,
		logger:   log.WithComponent("dispatch"),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Begin starts a unit of work with an empty registry cache.
func (d *Dispatcher) Begin() *UnitOfWork {
	id := d.newID()
	return &UnitOfWork{
		id:     id,
		d:      d,
		cache:  NewCache(d.source),
		logger: d.logger.With("unit_of_work", id),
	}
}

// Dispatch runs a single event in its own unit of work.
func (d *Dispatcher) Dispatch(ctx context.Context, entity string, kind hook.Kind, records []hook.Record) error {
	return d.Begin().Dispatch(ctx, entity, kind, records)
}

// Execution is one handler that ran to completion (successfully or not).
type Execution struct {
	Entity    string
	Context   hook.Kind
	HandlerID string
	Err       error
}

// UnitOfWork scopes a registry cache to one request or transaction. It must
// not be shared between goroutines.
type UnitOfWork struct {
	id      string
	d       *Dispatcher
	cache   *Cache
	logger  *slog.Logger
	history []Execution
}

// ID returns the unit of work identifier.
func (u *UnitOfWork) ID() string {
	return u.id
}

// Cache exposes the unit's registry cache.
func (u *UnitOfWork) Cache() *Cache {
	return u.cache
}

// History lists the handlers run so far in this unit of work, in order.
func (u *UnitOfWork) History() []Execution {
	out := make([]Execution, len(u.history))
	copy(out, u.history)
	return out
}

// Dispatch runs every handler registered for (entity, kind) in order.
//
// An entity without registrations fails with hook.ErrNoHandlersRegistered.
// A known entity with nothing registered for kind is a successful no-op.
// Resolve and contract failures abort before the failing handler runs;
// a handler's own error is returned unchanged and stops the sequence.
func (u *UnitOfWork) Dispatch(ctx context.Context, entity string, kind hook.Kind, records []hook.Record) error {
	entity = strings.TrimSpace(entity)
	if !kind.Valid() {
		return fmt.Errorf("entity %q: %w: %s", entity, hook.ErrInvalidContext, kind)
	}

	reg, err := u.cache.Registry(ctx, entity)
	if err != nil {
		return err
	}

	logger := u.logger.With("entity", entity, "context", kind.String())

	ids, ok := reg.Handlers(kind)
	if !ok {
		logger.Debug("context skipped, no handlers registered")
		return nil
	}

	ev := &hook.Event{
		UnitOfWork: u.id,
		Entity:     entity,
		Context:    kind,
		Records:    records,
	}

	for pos, id := range ids {
		started := u.d.now()

		h, err := u.d.resolver.Resolve(id)
		if err == nil {
			err = Check(h, id, kind)
		}
		if err != nil {
			u.record(ctx, ev, id, pos, StatusRejected, err, started)
			return fmt.Errorf("entity %q context %s: %w", entity, kind, err)
		}

		logger.Debug("running handler", "handler", id, "position", pos)
		runErr := h.Run(ctx, ev)
		u.history = append(u.history, Execution{Entity: entity, Context: kind, HandlerID: id, Err: runErr})
		if runErr != nil {
			u.record(ctx, ev, id, pos, StatusFailed, runErr, started)
			logger.Info("handler failed, dispatch aborted", "handler", id, "position", pos, "error", runErr)
			return runErr
		}
		u.record(ctx, ev, id, pos, StatusSucceeded, nil, started)
	}

	logger.Info("dispatch completed", "handlers", len(ids))
	return nil
}

func (u *UnitOfWork) record(ctx context.Context, ev *hook.Event, id string, pos int, status Status, err error, started time.Time) {
	if u.d.journal == nil {
		return
	}
	entry := JournalEntry{
		UnitOfWork:  u.id,
		Entity:      ev.Entity,
		Context:     ev.Context,
		HandlerID:   id,
		Position:    pos,
		Status:      status,
		StartedAt:   started,
		CompletedAt: u.d.now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if jerr := u.d.journal.Record(ctx, entry); jerr != nil {
		u.logger.Warn("failed to journal handler step", "handler", id, "error", jerr)
	}
}
