// Package dispatch runs the handlers registered for an (entity, context) pair.
//
// A Dispatcher is built once from a registration Source and a Resolver (the
// handler catalog). Each request or transaction calls Begin to get a
// UnitOfWork, which owns a fresh registry Cache; the cache is discarded with
// the unit, so configuration changes are picked up by the next one.
//
// Dispatch flow, per event:
//   - Cache returns or builds the entity's registry (one build per entity per unit)
//   - No handlers for the context → no-op success, logged at debug
//   - For each handler ID in order: resolve → contract check → Run
//
// Error handling:
//   - Entity never configured → hook.ErrNoHandlersRegistered
//   - Unknown handler ID → hook.ErrHandlerNotFound
//   - Handler does not declare the context → hook.ErrUnsupportedContext
//   - Handler Run error → returned as-is
//
// Every error stops the sequence; nothing is retried or skipped. Handlers run
// synchronously and are not interrupted between steps; a hung handler hangs
// the dispatch.
package dispatch
