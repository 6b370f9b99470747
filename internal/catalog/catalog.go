package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mattjoyce/hookd/internal/hook"
)

// Factory builds a fresh handler instance.
type Factory func() hook.Handler

// Catalog maps handler IDs to factories. Registration happens at startup;
// Resolve is safe to call from concurrent units of work.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under id. Duplicate IDs are rejected.
func (c *Catalog) Register(id string, f Factory) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("handler id is empty")
	}
	if f == nil {
		return fmt.Errorf("handler %q: factory is nil", id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[id]; exists {
		return fmt.Errorf("handler %q already registered", id)
	}
	c.factories[id] = f
	return nil
}

// MustRegister is Register for init-time use; it panics on error.
func (c *Catalog) MustRegister(id string, f Factory) {
	if err := c.Register(id, f); err != nil {
		panic(err)
	}
}

// Resolve builds a new handler instance for id.
func (c *Catalog) Resolve(id string) (hook.Handler, error) {
	c.mu.RLock()
	f, ok := c.factories[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("handler %q: %w", id, hook.ErrHandlerNotFound)
	}

	h := f()
	if h == nil {
		return nil, fmt.Errorf("handler %q: factory returned nil: %w", id, hook.ErrHandlerNotFound)
	}
	return h, nil
}

// Has reports whether id is registered.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[id]
	return ok
}

// IDs returns the registered handler IDs, sorted.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.factories))
	for id := range c.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered handlers.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.factories)
}

var defaultCatalog = New()

// Default returns the process-wide catalog that handler packages register
// themselves into from init.
func Default() *Catalog {
	return defaultCatalog
}

// MustRegister registers f in the default catalog.
func MustRegister(id string, f Factory) {
	defaultCatalog.MustRegister(id, f)
}
