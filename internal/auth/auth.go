package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Scopes understood by the API. A ":rw" scope implies its ":ro" counterpart.
const (
	ScopeAdmin     = "*"
	ScopeSearchRO  = "search:ro"
	ScopeCatalogRO = "catalog:ro"
	ScopeCatalogRW = "catalog:rw"
	ScopeEventsRO  = "events:ro"
)

// Known lists every scope a token may be granted.
var Known = []string{ScopeAdmin, ScopeSearchRO, ScopeCatalogRO, ScopeCatalogRW, ScopeEventsRO}

// Route is a protected API endpoint and the scope it requires.
type Route struct {
	Method  string
	Pattern string
	Scope   string
}

// Routes is the access table of the lookout API.
var Routes = []Route{
	{Method: http.MethodGet, Pattern: "/search", Scope: ScopeSearchRO},
	{Method: http.MethodGet, Pattern: "/catalog/sources", Scope: ScopeCatalogRO},
	{Method: http.MethodPost, Pattern: "/catalog/entries", Scope: ScopeCatalogRW},
	{Method: http.MethodGet, Pattern: "/events", Scope: ScopeEventsRO},
}

// ValidateScopes rejects empty lists and scopes outside Known.
func ValidateScopes(scopes []string) error {
	if len(scopes) == 0 {
		return errors.New("at least one scope is required")
	}
	for _, s := range scopes {
		if !slices.Contains(Known, strings.TrimSpace(s)) {
			return fmt.Errorf("unknown scope %q (known: %s)", s, strings.Join(Known, ", "))
		}
	}
	return nil
}

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Principal is the caller a request was authenticated as.
type Principal struct {
	Token  string
	Scopes map[string]struct{}
}

// Admin holds every scope.
var Admin = Principal{Scopes: map[string]struct{}{ScopeAdmin: {}}}

// Allows reports whether p may use an endpoint guarded by scope.
func (p Principal) Allows(scope string) bool {
	if _, ok := p.Scopes[ScopeAdmin]; ok {
		return true
	}
	_, ok := p.Scopes[scope]
	return ok
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ExtractBearerToken returns the token of an "Authorization: Bearer" header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("invalid Authorization header format")
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

type grant struct {
	token  []byte
	scopes map[string]struct{}
}

// Keyring resolves presented bearer tokens into principals.
type Keyring struct {
	grants []grant
}

// NewKeyring builds a keyring from the admin key and scoped tokens. Empty
// tokens are dropped so they can never match.
func NewKeyring(adminKey string, tokens []TokenConfig) *Keyring {
	k := &Keyring{}
	if adminKey != "" {
		k.grants = append(k.grants, grant{token: []byte(adminKey), scopes: Admin.Scopes})
	}
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		k.grants = append(k.grants, grant{token: []byte(t.Token), scopes: expandScopes(t.Scopes)})
	}
	return k
}

// Authenticate compares presented against every grant in constant time.
func (k *Keyring) Authenticate(presented string) (Principal, bool) {
	if presented == "" {
		return Principal{}, false
	}
	p := []byte(presented)
	for _, g := range k.grants {
		if subtle.ConstantTimeCompare(p, g.token) == 1 {
			return Principal{Token: presented, Scopes: g.scopes}, true
		}
	}
	return Principal{}, false
}

func expandScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
		if resource, ok := strings.CutSuffix(s, ":rw"); ok {
			out[resource+":ro"] = struct{}{}
		}
	}
	return out
}
