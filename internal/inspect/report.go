package inspect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/hookd/internal/dispatch"
	"github.com/mattjoyce/hookd/internal/hook"
	"github.com/mattjoyce/hookd/internal/registry"
)

// Handler states reported by BuildRegistryReport.
const (
	StateOK          = "ok"
	StateMissing     = "missing"
	StateUnsupported = "unsupported"
)

// RegistryReport is the structured form of a built registry.
type RegistryReport struct {
	Entity   string          `json:"entity"`
	Contexts []ContextReport `json:"contexts"`
}

// ContextReport lists the handlers for one lifecycle context in run order.
type ContextReport struct {
	Context  string       `json:"context"`
	Handlers []HandlerRef `json:"handlers"`
}

// HandlerRef is one handler slot. State is only filled when a resolver was
// supplied.
type HandlerRef struct {
	Position int    `json:"position"`
	ID       string `json:"id"`
	State    string `json:"state,omitempty"`
}

// BuildRegistryReport describes reg. With a non-nil resolver every handler is
// resolved and checked against its context so wiring problems show up before
// any event is dispatched.
func BuildRegistryReport(reg *registry.Registry, res dispatch.Resolver) RegistryReport {
	report := RegistryReport{Entity: reg.Entity(), Contexts: make([]ContextReport, 0)}
	for _, kind := range reg.Contexts() {
		ids, _ := reg.Handlers(kind)
		cr := ContextReport{Context: kind.String(), Handlers: make([]HandlerRef, 0, len(ids))}
		for pos, id := range ids {
			ref := HandlerRef{Position: pos, ID: id}
			if res != nil {
				ref.State = handlerState(res, id, kind)
			}
			cr.Handlers = append(cr.Handlers, ref)
		}
		report.Contexts = append(report.Contexts, cr)
	}
	return report
}

func handlerState(res dispatch.Resolver, id string, kind hook.Kind) string {
	h, err := res.Resolve(id)
	if err != nil {
		return StateMissing
	}
	if err := dispatch.Check(h, id, kind); errors.Is(err, hook.ErrUnsupportedContext) {
		return StateUnsupported
	}
	return StateOK
}

// RenderRegistry renders a registry report for the terminal.
func RenderRegistry(r RegistryReport, theme Theme) string {
	var out strings.Builder
	fmt.Fprintf(&out, "%s %s\n", theme.Title.Render("Registry"), theme.Highlight.Render(r.Entity))

	for _, c := range r.Contexts {
		out.WriteString("\n" + theme.Header.Render(c.Context) + "\n")
		for _, h := range c.Handlers {
			line := fmt.Sprintf("  %d. %s", h.Position+1, h.ID)
			if h.State != "" {
				line += "  " + renderState(h.State, theme)
			}
			out.WriteString(line + "\n")
		}
	}
	if len(r.Contexts) == 0 {
		out.WriteString(theme.Dim.Render("  <no contexts>") + "\n")
	}

	return theme.Border.Render(strings.TrimRight(out.String(), "\n")) + "\n"
}

func renderState(state string, theme Theme) string {
	switch state {
	case StateOK:
		return theme.StatusOK.Render("✓ " + state)
	case StateMissing:
		return theme.StatusFailed.Render("✗ " + state)
	default:
		return theme.StatusWarn.Render("! " + state)
	}
}

// RenderJournal renders journal entries one per line, newest first as given.
func RenderJournal(entries []dispatch.JournalEntry, theme Theme) string {
	if len(entries) == 0 {
		return theme.Dim.Render("no dispatches recorded") + "\n"
	}

	var out strings.Builder
	for _, e := range entries {
		uow := e.UnitOfWork
		if len(uow) > 8 {
			uow = uow[:8]
		}
		fmt.Fprintf(&out, "%s  %s  %s/%s #%d %s  %s",
			theme.Dim.Render(e.CompletedAt.Local().Format(time.DateTime)),
			theme.Highlight.Render(uow),
			e.Entity,
			e.Context,
			e.Position,
			e.HandlerID,
			renderStatus(e.Status, theme),
		)
		if e.Error != "" {
			fmt.Fprintf(&out, "  %s", theme.Dim.Render(e.Error))
		}
		out.WriteString("\n")
	}
	return out.String()
}

func renderStatus(s dispatch.Status, theme Theme) string {
	switch s {
	case dispatch.StatusSucceeded:
		return theme.StatusOK.Render(string(s))
	case dispatch.StatusFailed:
		return theme.StatusFailed.Render(string(s))
	default:
		return theme.StatusWarn.Render(string(s))
	}
}

// JSON returns v as indented JSON.
func JSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}
