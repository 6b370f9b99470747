package api

import (
	"github.com/mattjoyce/hookd/internal/hook"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the dispatch routes.
// The context enum lists every lifecycle kind; handlerIDs are advertised as
// an x- extension for tooling.
func buildOpenAPIDoc(handlerIDs []string) map[string]any {
	kinds := make([]string, 0, len(hook.Kinds()))
	for _, k := range hook.Kinds() {
		kinds = append(kinds, k.String())
	}

	event := map[string]any{
		"type":     "object",
		"required": []string{"entity", "context"},
		"properties": map[string]any{
			"entity":  map[string]any{"type": "string"},
			"context": map[string]any{"type": "string", "enum": kinds},
			"records": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object"},
			},
		},
	}

	errorResponses := map[string]any{
		"400": map[string]any{"description": "Malformed request or unknown context"},
		"401": map[string]any{"description": "Missing or invalid API key"},
		"404": map[string]any{"description": "Entity has no registered handlers"},
		"422": map[string]any{"description": "A handler rejected the event"},
		"500": map[string]any{"description": "Registration or handler wiring error"},
	}

	op := func(id, summary string, schema map[string]any) map[string]any {
		responses := map[string]any{"200": map[string]any{"description": "All handlers succeeded"}}
		for code, r := range errorResponses {
			responses[code] = r
		}
		return map[string]any{
			"operationId": id,
			"summary":     summary,
			"requestBody": map[string]any{
				"required": true,
				"content": map[string]any{
					"application/json": map[string]any{"schema": schema},
				},
			},
			"responses": responses,
			"security":  []any{map[string]any{"BearerAuth": []string{}}},
		}
	}

	batch := map[string]any{
		"type":       "object",
		"required":   []string{"events"},
		"properties": map[string]any{"events": map[string]any{"type": "array", "items": event}},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "hookd",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/dispatch":       map[string]any{"post": op("dispatch", "Run the handlers registered for one event", event)},
			"/dispatch/batch": map[string]any{"post": op("dispatchBatch", "Run several events in one unit of work", batch)},
		},
		"x-handlers": handlerIDs,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
