package registry

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/mattjoyce/hookd/internal/hook"
)

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks github.com/mattjoyce/hookd/internal/registry Source

// Registration binds a handler to one (entity, context) pair at an execution order.
type Registration struct {
	Entity    string    `yaml:"entity" json:"entity"`
	Context   hook.Kind `yaml:"context" json:"context"`
	Order     float64   `yaml:"order" json:"order"`
	HandlerID string    `yaml:"handler" json:"handler"`
}

// Source supplies registrations. Implementations return records for the
// given entity in a stable source order; Build relies on that order to
// break ties between equal Order values.
type Source interface {
	Registrations(ctx context.Context, entity string) ([]Registration, error)
}

// Registry is the ordered handler table for one entity. It is immutable
// after Build.
type Registry struct {
	entity    string
	byContext map[hook.Kind][]string
}

// Build reads the entity's registrations from src and groups them by
// context, each group sorted ascending by Order. Equal orders keep source
// order. An entity with no registrations fails with ErrNoHandlersRegistered.
func Build(ctx context.Context, src Source, entity string) (*Registry, error) {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return nil, fmt.Errorf("%w: entity name is empty", hook.ErrInvalidRegistration)
	}

	regs, err := src.Registrations(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("read registrations for %q: %w", entity, err)
	}

	grouped := make(map[hook.Kind][]Registration)
	for i, reg := range regs {
		if reg.Entity != entity {
			continue
		}
		if err := reg.Validate(); err != nil {
			return nil, fmt.Errorf("entity %q registration[%d]: %w", entity, i, err)
		}
		grouped[reg.Context] = append(grouped[reg.Context], reg)
	}
	if len(grouped) == 0 {
		return nil, fmt.Errorf("entity %q: %w", entity, hook.ErrNoHandlersRegistered)
	}

	r := &Registry{
		entity:    entity,
		byContext: make(map[hook.Kind][]string, len(grouped)),
	}
	for kind, group := range grouped {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Order < group[j].Order
		})
		ids := make([]string, len(group))
		for i, reg := range group {
			ids[i] = reg.HandlerID
		}
		r.byContext[kind] = ids
	}
	return r, nil
}

// Validate checks a single registration for structural problems.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.Entity) == "" {
		return fmt.Errorf("%w: entity is required", hook.ErrInvalidRegistration)
	}
	if !r.Context.Valid() {
		return fmt.Errorf("%w: unknown context %s", hook.ErrInvalidRegistration, r.Context)
	}
	if strings.TrimSpace(r.HandlerID) == "" {
		return fmt.Errorf("%w: handler is required", hook.ErrInvalidRegistration)
	}
	if math.IsNaN(r.Order) || math.IsInf(r.Order, 0) {
		return fmt.Errorf("%w: order must be a finite number", hook.ErrInvalidRegistration)
	}
	return nil
}

// Entity returns the entity name the registry was built for.
func (r *Registry) Entity() string {
	return r.entity
}

// Handlers returns a copy of the ordered handler IDs for kind. The boolean
// is false when the entity has nothing registered for kind.
func (r *Registry) Handlers(kind hook.Kind) ([]string, bool) {
	ids, ok := r.byContext[kind]
	if !ok {
		return nil, false
	}
	return slices.Clone(ids), true
}

// Contexts lists the kinds that have handlers, in declaration order.
func (r *Registry) Contexts() []hook.Kind {
	var out []hook.Kind
	for _, k := range hook.Kinds() {
		if _, ok := r.byContext[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Table returns a copy of the full context → handler IDs mapping keyed by
// context name.
func (r *Registry) Table() map[string][]string {
	out := make(map[string][]string, len(r.byContext))
	for k, ids := range r.byContext {
		out[k.String()] = slices.Clone(ids)
	}
	return out
}
