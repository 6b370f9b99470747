// Package registry turns handler registration records into a per-entity
// lookup table.
//
// A Source supplies records (from YAML config, SQLite, or memory). Build
// filters them to one entity, groups them by lifecycle context and orders
// each group by its execution order. Sorting is stable: two handlers declared
// at the same order run in the order the source listed them.
//
// Build never returns an empty Registry. An entity without any record is a
// configuration error (hook.ErrNoHandlersRegistered); an entity that has
// records but none for a particular context simply reports no handlers for
// that context.
package registry
