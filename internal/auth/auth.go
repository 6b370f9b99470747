// Package auth authenticates API callers and carries their scopes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Scopes understood by the API. ScopeDispatch implies ScopeRegistryRead.
const (
	ScopeAll          = "*"
	ScopeDispatch     = "dispatch:rw"
	ScopeRegistryRead = "registry:ro"
)

var knownScopes = map[string]bool{
	ScopeAll:          true,
	ScopeDispatch:     true,
	ScopeRegistryRead: true,
}

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is an authenticated caller.
type Principal struct {
	Scopes map[string]struct{}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ValidateScope rejects scope names the API does not know.
func ValidateScope(scope string) error {
	if !knownScopes[strings.TrimSpace(scope)] {
		return fmt.Errorf("unknown scope %q (want %s, %s or %s)", scope, ScopeDispatch, ScopeRegistryRead, ScopeAll)
	}
	return nil
}

// ExtractBearerToken reads the token from an Authorization: Bearer header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("invalid Authorization header format")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticate matches a presented bearer token. The single api_key grants
// every scope; scoped tokens grant what they list.
func Authenticate(presented, apiKey string, tokens []TokenConfig) (Principal, bool) {
	if constantTimeEqual(presented, apiKey) {
		return Principal{Scopes: map[string]struct{}{ScopeAll: {}}}, true
	}
	for _, t := range tokens {
		if constantTimeEqual(presented, t.Token) {
			return Principal{Scopes: normalizeScopes(t.Scopes)}, true
		}
	}
	return Principal{}, false
}

func normalizeScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes)+1)
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			out[s] = struct{}{}
		}
	}
	if _, ok := out[ScopeDispatch]; ok {
		out[ScopeRegistryRead] = struct{}{}
	}
	return out
}

// HasAnyScope reports whether p holds "*" or any of required.
func HasAnyScope(p Principal, required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}
