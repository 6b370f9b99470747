package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattjoyce/hookd/internal/auth"
)

func TestScopedTokens(t *testing.T) {
	s := newTestServer(t, testKey)
	s.config.Tokens = []auth.TokenConfig{
		{Token: "reader", Scopes: []string{auth.ScopeRegistryRead}},
		{Token: "writer", Scopes: []string{auth.ScopeDispatch}},
	}

	body := `{"entity":"Order","context":"after_update"}`

	tests := []struct {
		name     string
		method   string
		path     string
		key      string
		wantCode int
	}{
		{name: "reader lists handlers", method: http.MethodGet, path: "/handlers", key: "reader", wantCode: http.StatusOK},
		{name: "reader cannot dispatch", method: http.MethodPost, path: "/dispatch", key: "reader", wantCode: http.StatusForbidden},
		{name: "writer dispatches", method: http.MethodPost, path: "/dispatch", key: "writer", wantCode: http.StatusOK},
		{name: "writer reads registry", method: http.MethodGet, path: "/registry/Order", key: "writer", wantCode: http.StatusOK},
		{name: "admin key dispatches", method: http.MethodPost, path: "/dispatch", key: testKey, wantCode: http.StatusOK},
		{name: "unknown token", method: http.MethodGet, path: "/handlers", key: "stranger", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqBody := ""
			if tt.method == http.MethodPost {
				reqBody = body
			}
			rr := do(t, s, tt.method, tt.path, reqBody, tt.key)
			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
		})
	}
}

func TestTokensAloneEnableAuth(t *testing.T) {
	s := newTestServer(t, "")
	s.config.Tokens = []auth.TokenConfig{{Token: "reader", Scopes: []string{auth.ScopeRegistryRead}}}

	rr := do(t, s, http.MethodGet, "/handlers", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, s, http.MethodGet, "/handlers", "", "reader")
	assert.Equal(t, http.StatusOK, rr.Code)
}
