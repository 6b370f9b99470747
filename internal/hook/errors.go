package hook

import "errors"

// Dispatch failures. All of them abort the current dispatch; callers match
// them with errors.Is.
var (
	// ErrNoHandlersRegistered means the configuration source has no records
	// for the entity at all.
	ErrNoHandlersRegistered = errors.New("no handlers registered")

	// ErrHandlerNotFound means a configured handler ID has no factory in the catalog.
	ErrHandlerNotFound = errors.New("handler not found")

	// ErrUnsupportedContext means a resolved handler does not declare support
	// for the context it was registered under.
	ErrUnsupportedContext = errors.New("unsupported context")

	// ErrInvalidRegistration means a configuration record is malformed.
	ErrInvalidRegistration = errors.New("invalid registration")

	// ErrInvalidContext means a context name is not a known Kind.
	ErrInvalidContext = errors.New("invalid context")
)
