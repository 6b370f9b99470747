// Package hook defines the vocabulary shared by every other hookd package:
// lifecycle kinds, the handler contract, the event passed to handlers, and the
// sentinel errors a dispatch can fail with.
//
// A handler declares the kinds it is valid for once, usually by embedding a
// KindSet:
//
//	type stampTimestamps struct{ hook.KindSet }
//
//	func newStampTimestamps() hook.Handler {
//		return &stampTimestamps{KindSet: hook.On(hook.BeforeCreate, hook.BeforeUpdate)}
//	}
//
// Kind matching is exact. A handler declared for BeforeCreate never
// satisfies AfterCreate and vice versa.
package hook
