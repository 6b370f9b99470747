package dispatch

import (
	"context"
	"strings"

	"github.com/mattjoyce/hookd/internal/registry"
)

// Cache memoizes one Registry per entity for the lifetime of a unit of work.
// It is not safe for concurrent use; each unit of work owns its own Cache.
type Cache struct {
	source  registry.Source
	entries map[string]*registry.Registry
}

// NewCache creates an empty cache reading from src.
func NewCache(src registry.Source) *Cache {
	return &Cache{
		source:  src,
		entries: make(map[string]*registry.Registry),
	}
}

// Registry returns the cached registry for entity, building it on first
// use. Build failures are not cached. Surrounding whitespace in entity is
// ignored, matching registry.Build.
func (c *Cache) Registry(ctx context.Context, entity string) (*registry.Registry, error) {
	entity = strings.TrimSpace(entity)
	if reg, ok := c.entries[entity]; ok {
		return reg, nil
	}
	reg, err := registry.Build(ctx, c.source, entity)
	if err != nil {
		return nil, err
	}
	c.entries[entity] = reg
	return reg, nil
}

// Reset drops every cached registry.
func (c *Cache) Reset() {
	clear(c.entries)
}

// Len returns the number of cached entities.
func (c *Cache) Len() int {
	return len(c.entries)
}
