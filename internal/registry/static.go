package registry

import "context"

// StaticSource is an in-memory Source backed by a slice in document order.
type StaticSource []Registration

var _ Source = StaticSource(nil)

// Registrations returns the records for entity, preserving slice order.
func (s StaticSource) Registrations(_ context.Context, entity string) ([]Registration, error) {
	var out []Registration
	for _, reg := range s {
		if reg.Entity == entity {
			out = append(out, reg)
		}
	}
	return out, nil
}
