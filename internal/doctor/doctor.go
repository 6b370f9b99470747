// Package doctor checks hookd configuration against the handlers compiled
// into the binary.
package doctor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mattjoyce/hookd/internal/config"
	"github.com/mattjoyce/hookd/internal/dispatch"
	"github.com/mattjoyce/hookd/internal/hook"
	"github.com/mattjoyce/hookd/internal/registry"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates registrations against a handler resolver.
type Doctor struct {
	cfg      *config.Config
	regs     []registry.Registration
	resolver dispatch.Resolver
}

// New creates a Doctor. regs are the registrations that will be served,
// whichever source they came from.
func New(cfg *config.Config, regs []registry.Registration, res dispatch.Resolver) *Doctor {
	return &Doctor{cfg: cfg, regs: regs, resolver: res}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServiceConfig(r)
	d.validateRegistrations(r)
	d.validateAPIConfig(r)
	d.warnDuplicates(r)
	d.warnOrderTies(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServiceConfig(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "service", "state.path", "state.path is required")
	}
	if d.cfg.Source != config.SourceConfig && d.cfg.Source != config.SourceSQLite {
		d.addError(r, "service", "source", fmt.Sprintf("unknown registration source %q", d.cfg.Source))
	}
	if d.cfg.Source == config.SourceSQLite && len(d.cfg.Handlers) > 0 {
		d.addWarning(r, "service", "handlers",
			"source is sqlite; handlers: entries are ignored until imported with 'hookd registry import'")
	}
}

// validateRegistrations resolves every handler and checks it declares support
// for the context it is registered under. Either failure would otherwise only
// surface when a matching event is dispatched.
func (d *Doctor) validateRegistrations(r *Result) {
	for i, reg := range d.regs {
		field := fmt.Sprintf("handlers[%d]", i)
		if err := reg.Validate(); err != nil {
			d.addError(r, "registration", field, err.Error())
			continue
		}

		h, err := d.resolver.Resolve(reg.HandlerID)
		if err != nil {
			d.addError(r, "handler_refs", field,
				fmt.Sprintf("handler %q for %s/%s is not compiled into this binary", reg.HandlerID, reg.Entity, reg.Context))
			continue
		}
		if err := dispatch.Check(h, reg.HandlerID, reg.Context); err != nil {
			d.addError(r, "context", field,
				fmt.Sprintf("handler %q does not support %s (registered for %s)", reg.HandlerID, reg.Context, reg.Entity))
		}
	}
}

func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured")
	}
}

type slot struct {
	entity  string
	context hook.Kind
}

// warnDuplicates flags a handler registered twice for the same slot; it will
// run twice per event.
func (d *Doctor) warnDuplicates(r *Result) {
	type key struct {
		slot
		handler string
	}
	seen := make(map[key]int)
	for i, reg := range d.regs {
		k := key{slot{reg.Entity, reg.Context}, reg.HandlerID}
		if first, ok := seen[k]; ok {
			d.addWarning(r, "duplicate", fmt.Sprintf("handlers[%d]", i),
				fmt.Sprintf("handler %q already registered for %s/%s at handlers[%d]; it will run twice", reg.HandlerID, reg.Entity, reg.Context, first))
			continue
		}
		seen[k] = i
	}
}

// warnOrderTies flags distinct handlers sharing an order value. Ties run in
// declaration order, which is easy to disturb when files are reshuffled.
func (d *Doctor) warnOrderTies(r *Result) {
	type key struct {
		slot
		order float64
	}
	first := make(map[key]registry.Registration)
	for _, reg := range d.regs {
		k := key{slot{reg.Entity, reg.Context}, reg.Order}
		prev, ok := first[k]
		if !ok {
			first[k] = reg
			continue
		}
		if prev.HandlerID != reg.HandlerID {
			d.addWarning(r, "order", "",
				fmt.Sprintf("%s/%s: %q and %q share order %g; declaration order decides", reg.Entity, reg.Context, prev.HandlerID, reg.HandlerID, reg.Order))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		return "Configuration valid.\n"
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	writeIssues(&b, "ERROR", r.Errors)
	writeIssues(&b, "WARN ", r.Warnings)
	return b.String()
}

func writeIssues(b *strings.Builder, label string, issues []Issue) {
	for _, is := range issues {
		if is.Field != "" {
			fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, is.Category, is.Field, is.Message)
		} else {
			fmt.Fprintf(b, "  %s [%s] %s\n", label, is.Category, is.Message)
		}
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
