package dispatch

import (
	"fmt"

	"github.com/mattjoyce/hookd/internal/hook"
)

// Check verifies that h declares support for kind. The registration's
// context lives in configuration and the handler's declaration lives in
// code; a mismatch must stop the dispatch before Run has any effect.
func Check(h hook.Handler, handlerID string, kind hook.Kind) error {
	if !h.Supports(kind) {
		return fmt.Errorf("handler %q does not support context %s: %w", handlerID, kind, hook.ErrUnsupportedContext)
	}
	return nil
}
