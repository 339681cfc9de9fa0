package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"server/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func mintToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "someone",
		ExpiresAt: jwt.NewNumericDate(expiry),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestResolverExchangesCredential(t *testing.T) {
	userID := uuid.New()
	token := mintToken(t, time.Now().Add(time.Hour))

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+token {
			t.Fatalf("credential not forwarded: %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": userID.String()})
	}))
	defer ts.Close()

	r := NewResolver(Options{VerifyURL: ts.URL})
	ident, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if ident.UserID != userID {
		t.Fatalf("user id mismatch: %s", ident.UserID)
	}
	if ident.TokenExpiry.IsZero() {
		t.Fatal("token expiry not captured")
	}
}

func TestResolverRejectsExpiredWithoutNetworkCall(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	r := NewResolver(Options{VerifyURL: ts.URL})
	_, err := r.Resolve(context.Background(), mintToken(t, time.Now().Add(-time.Minute)))
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if called {
		t.Fatal("expired credential must not reach the identity provider")
	}
}

func TestResolverRejectsMissingAndMalformed(t *testing.T) {
	r := NewResolver(Options{VerifyURL: "http://localhost:0"})
	for _, cred := range []string{"", "   ", "not-a-jwt"} {
		if _, err := r.Resolve(context.Background(), cred); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("credential %q: expected unauthenticated, got %v", cred, err)
		}
	}
}

func TestResolverRejectsProviderDenial(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	r := NewResolver(Options{VerifyURL: ts.URL})
	_, err := r.Resolve(context.Background(), mintToken(t, time.Now().Add(time.Hour)))
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestResolverProviderOutageIsNotUnauthenticated(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	r := NewResolver(Options{VerifyURL: ts.URL})
	_, err := r.Resolve(context.Background(), mintToken(t, time.Now().Add(time.Hour)))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("provider outage must not blame the caller: %v", err)
	}
}
