// Package identity verifies bearer credentials and carries the resulting
// caller identity through request contexts.
package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	// AnonymousUserID is the sentinel subject of unauthenticated callers.
	AnonymousUserID = "anonymous"

	RoleAnonymous = "anonymous"
	RoleUser      = "user"
	RoleAdmin     = "admin"
)

// Identity is the caller a request acts on behalf of.
type Identity struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Anonymous bool   `json:"anonymous"`
}

// Anonymous returns the sentinel identity.
func Anonymous() Identity {
	return Identity{UserID: AnonymousUserID, Role: RoleAnonymous, Anonymous: true}
}

func (i Identity) IsAdmin() bool {
	return !i.Anonymous && i.Role == RoleAdmin
}

type contextKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity attached to ctx, or the anonymous sentinel.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Anonymous(), false
	}
	if id, ok := ctx.Value(contextKey{}).(Identity); ok {
		return id, true
	}
	return Anonymous(), false
}

// BearerToken extracts the credential from the Authorization header. Browser
// websocket clients cannot set headers, so upgrades may pass access_token.
func BearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	if websocket.IsWebSocketUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	return ""
}
