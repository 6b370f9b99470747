// Package catalog resolves handler IDs to runnable handler instances.
//
// Handler packages register a factory per ID, typically from init:
//
//	func init() {
//		catalog.MustRegister("StampTimestamps", newStampTimestamps)
//	}
//
// Resolve calls the factory every time, so each dispatch gets a fresh
// instance. An unknown ID is a deployment bug and fails with
// hook.ErrHandlerNotFound.
package catalog
