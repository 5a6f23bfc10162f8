package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newVerifier(t *testing.T, now time.Time) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier("test-secret")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	return v.WithClock(func() time.Time { return now })
}

func TestVerifyIssuedToken(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	v := newVerifier(t, now)
	token, err := v.Issue("user-1", RoleAdmin, 10*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "user-1" || id.Role != RoleAdmin || id.Anonymous || !id.IsAdmin() {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestVerifyDefaultsRole(t *testing.T) {
	v := newVerifier(t, time.Now())
	token, _ := v.Issue("user-2", "", time.Minute)
	id, err := v.Verify(context.Background(), token)
	if err != nil || id.Role != RoleUser {
		t.Fatalf("expected user role, got %+v %v", id, err)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	v := newVerifier(t, now)

	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := v.Verify(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	expired, _ := v.Issue("user-1", RoleUser, time.Minute)
	later := newVerifier(t, now.Add(time.Hour))
	if _, err := later.Verify(context.Background(), expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	other, _ := NewJWTVerifier("other-secret")
	forged, _ := other.WithClock(func() time.Time { return now }).Issue("user-1", RoleAdmin, time.Minute)
	if _, err := v.Verify(context.Background(), forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong signature rejected, got %v", err)
	}

	noSubject, _ := v.Issue("", RoleUser, time.Minute)
	if _, err := v.Verify(context.Background(), noSubject); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected missing subject rejected, got %v", err)
	}

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user-1", Issuer: defaultIssuer, ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := v.Verify(context.Background(), unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg none rejected, got %v", err)
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier("  "); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestContextRoundTrip(t *testing.T) {
	if id, ok := FromContext(context.Background()); ok || !id.Anonymous {
		t.Fatalf("expected anonymous default, got %+v", id)
	}
	ctx := WithIdentity(context.Background(), Identity{UserID: "u", Role: RoleUser})
	id, ok := FromContext(ctx)
	if !ok || id.UserID != "u" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files", nil)
	if BearerToken(req) != "" {
		t.Fatalf("expected empty token")
	}
	req.Header.Set("Authorization", "Bearer abc.def")
	if got := BearerToken(req); got != "abc.def" {
		t.Fatalf("unexpected token %q", got)
	}
	req.Header.Set("Authorization", "Basic Zm9v")
	if BearerToken(req) != "" {
		t.Fatalf("basic credentials should be ignored")
	}

	ws := httptest.NewRequest(http.MethodGet, "/api/v1/security/events/stream?access_token=tok", nil)
	ws.Header.Set("Connection", "Upgrade")
	ws.Header.Set("Upgrade", "websocket")
	if got := BearerToken(ws); got != "tok" {
		t.Fatalf("expected websocket query token, got %q", got)
	}
	plain := httptest.NewRequest(http.MethodGet, "/api/v1/files?access_token=tok", nil)
	if BearerToken(plain) != "" {
		t.Fatalf("query token accepted outside websocket upgrade")
	}
}
