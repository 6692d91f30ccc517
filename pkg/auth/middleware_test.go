package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bruecke-dev/bruecke/pkg/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMiddlewareRejectsUnauthenticated(t *testing.T) {
	chain := &Chain{AllowAnonymous: false}
	h := Middleware(chain, nil, discard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without authentication")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareBypassSkipsAuth(t *testing.T) {
	chain := &Chain{AllowAnonymous: false}
	reached := false
	h := Middleware(chain, nil, discard, DefaultBypassEndpoints)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !reached {
		t.Fatal("bypass endpoint did not reach handler")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMiddlewareInjectsIdentityAndTenant(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{staticAuthenticator{Result{
		Decision: Allow,
		Identity: &Identity{
			Subject:  "alice",
			Metadata: map[string]string{"tenant_id": "org-1"},
		},
	}}}}

	var gotSubject, gotTenant string
	h := Middleware(chain, nil, discard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := IdentityFromContext(r.Context()); id != nil {
			gotSubject = id.Subject
		}
		gotTenant = storage.GetTenant(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))

	if gotSubject != "alice" {
		t.Errorf("subject in context = %q, want alice", gotSubject)
	}
	if gotTenant != "org-1" {
		t.Errorf("tenant in context = %q, want org-1", gotTenant)
	}
}

func TestMiddlewareEmptySubjectIsServerError(t *testing.T) {
	chain := &Chain{Authenticators: []Authenticator{staticAuthenticator{Result{
		Decision: Allow,
		Identity: &Identity{Subject: ""},
	}}}}
	h := Middleware(chain, nil, discard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with empty subject")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(_ context.Context, _ *Identity) error { return ErrTooManyRequests }

func TestMiddlewareRateLimit(t *testing.T) {
	chain := &Chain{AllowAnonymous: true}
	h := Middleware(chain, denyAllLimiter{}, discard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached past rate limiter")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}
