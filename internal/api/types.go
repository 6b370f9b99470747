package api

import "github.com/mattjoyce/hookd/internal/hook"

// DispatchRequest is the JSON body for POST /dispatch and one element of a
// batch. Context accepts the same spellings as configuration files.
type DispatchRequest struct {
	Entity  string        `json:"entity"`
	Context hook.Kind     `json:"context"`
	Records []hook.Record `json:"records,omitempty"`
}

// DispatchResponse is returned when every handler succeeded.
type DispatchResponse struct {
	Status     string        `json:"status"`
	UnitOfWork string        `json:"unit_of_work"`
	Records    []hook.Record `json:"records,omitempty"`
}

// BatchRequest is the JSON body for POST /dispatch/batch.
type BatchRequest struct {
	Events []DispatchRequest `json:"events"`
}

// BatchResponse is returned when the whole batch succeeded.
type BatchResponse struct {
	Status     string `json:"status"`
	UnitOfWork string `json:"unit_of_work"`
	Dispatched int    `json:"dispatched"`
}

// RegistryResponse is returned by GET /registry/{entity}.
type RegistryResponse struct {
	Entity   string              `json:"entity"`
	Contexts map[string][]string `json:"contexts"`
}

// HandlersResponse is returned by GET /handlers.
type HandlersResponse struct {
	Handlers []string `json:"handlers"`
}

// ErrorResponse is returned on errors. Kind names the failure class for
// dispatch errors; UnitOfWork and Dispatched are set when a dispatch began.
type ErrorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind,omitempty"`
	UnitOfWork string `json:"unit_of_work,omitempty"`
	Dispatched *int   `json:"dispatched,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Handlers      int    `json:"handlers"`
}
