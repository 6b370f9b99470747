package hook

import "context"

// Record is one row affected by the lifecycle event.
type Record map[string]any

// Event is what a handler receives when it runs. The same Event value is
// passed to every handler of one dispatch, in order, so earlier handlers may
// modify Records for later ones.
type Event struct {
	UnitOfWork string
	Entity     string
	Context    Kind
	Records    []Record
}

// Handler is a unit of business logic run during dispatch.
type Handler interface {
	// Run performs the side effect. Errors are returned to the dispatch
	// caller unchanged.
	Run(ctx context.Context, ev *Event) error

	// Supports declares whether the handler is valid for k. It must be pure.
	Supports(k Kind) bool
}

// Func adapts a function and a KindSet into a Handler.
func Func(kinds KindSet, fn func(ctx context.Context, ev *Event) error) Handler {
	return &funcHandler{KindSet: kinds, fn: fn}
}

type funcHandler struct {
	KindSet
	fn func(ctx context.Context, ev *Event) error
}

func (h *funcHandler) Run(ctx context.Context, ev *Event) error {
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, ev)
}
