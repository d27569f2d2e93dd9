// Package http provides net/http middleware that authenticates requests
// from the session cookie or a bearer token.
package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/mihaimyh/gotier/pkg/auth"
)

// SessionParser validates a session token
type SessionParser interface {
	Parse(token string) (auth.Identity, error)
}

// Config holds middleware configuration
type Config struct {
	// Sessions validates tokens (required)
	Sessions SessionParser

	// CookieName is the session cookie, auth.DefaultSessionCookie by default
	CookieName string

	// OnUnauthorized is called when Required rejects a request
	// If nil, returns 401 with a JSON body
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)
}

// Auth carries the configured middlewares
type Auth struct {
	config Config
}

// Middleware creates the authentication middlewares
func Middleware(config Config) *Auth {
	if config.CookieName == "" {
		config.CookieName = auth.DefaultSessionCookie
	}
	if config.OnUnauthorized == nil {
		config.OnUnauthorized = defaultUnauthorized
	}
	return &Auth{config: config}
}

// Required rejects requests without a valid session
func (a *Auth) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := a.identify(r)
		if !ok {
			a.config.OnUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Optional attaches the identity when present and passes every request through
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := a.identify(r); ok {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) identify(r *http.Request) (auth.Identity, bool) {
	token := tokenFromRequest(r, a.config.CookieName)
	if token == "" || a.config.Sessions == nil {
		return auth.Identity{}, false
	}
	id, err := a.config.Sessions.Parse(token)
	if err != nil {
		return auth.Identity{}, false
	}
	return id, true
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func defaultUnauthorized(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Authentication required","code":"auth_required"}` + "\n"))
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// IdentityKey is the context key for the authenticated identity
	IdentityKey ContextKey = "gotier:identity"
)

// WithIdentity adds the identity to ctx
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFromContext returns the identity stored by Required or Optional
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(auth.Identity)
	return id, ok
}
