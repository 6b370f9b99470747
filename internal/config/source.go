package config

import (
	"context"

	"github.com/mattjoyce/hookd/internal/registry"
)

var _ registry.Source = (*Config)(nil)

// Registrations returns the handlers: entries for entity in document order.
// Included files contribute their entries after the including file's, in
// include order.
func (c *Config) Registrations(ctx context.Context, entity string) ([]registry.Registration, error) {
	return registry.StaticSource(c.Handlers).Registrations(ctx, entity)
}

// Entities lists the distinct entity names in handlers:, in first-seen order.
func (c *Config) Entities() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, h := range c.Handlers {
		if _, ok := seen[h.Entity]; ok {
			continue
		}
		seen[h.Entity] = struct{}{}
		out = append(out, h.Entity)
	}
	return out
}
