package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticAuthenticator struct {
	result Result
}

func (s staticAuthenticator) Authenticate(_ context.Context, _ *http.Request) Result {
	return s.result
}

func TestChainVoting(t *testing.T) {
	allow := staticAuthenticator{Result{Decision: Allow, Identity: &Identity{Subject: "alice"}}}
	deny := staticAuthenticator{Result{Decision: Deny, Err: ErrUnauthenticated}}
	abstain := staticAuthenticator{Result{Decision: Abstain}}

	tests := []struct {
		name           string
		authenticators []Authenticator
		allowAnonymous bool
		wantDecision   Decision
		wantSubject    string
	}{
		{"first allow wins", []Authenticator{allow, deny}, false, Allow, "alice"},
		{"first deny stops chain", []Authenticator{deny, allow}, false, Deny, ""},
		{"abstain continues to allow", []Authenticator{abstain, allow}, false, Allow, "alice"},
		{"all abstain rejects by default", []Authenticator{abstain, abstain}, false, Deny, ""},
		{"all abstain allows anonymous", []Authenticator{abstain}, true, Allow, "anonymous"},
		{"empty chain allows anonymous", nil, true, Allow, "anonymous"},
		{"empty chain rejects", nil, false, Deny, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &Chain{Authenticators: tt.authenticators, AllowAnonymous: tt.allowAnonymous}
			got := chain.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))

			if got.Decision != tt.wantDecision {
				t.Fatalf("decision = %d, want %d", got.Decision, tt.wantDecision)
			}
			if tt.wantSubject != "" && (got.Identity == nil || got.Identity.Subject != tt.wantSubject) {
				t.Errorf("identity = %+v, want subject %q", got.Identity, tt.wantSubject)
			}
		})
	}
}

func TestTenantID(t *testing.T) {
	var nilID *Identity
	if got := nilID.TenantID(); got != "" {
		t.Errorf("nil identity TenantID() = %q", got)
	}
	id := &Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "org-1"}}
	if got := id.TenantID(); got != "org-1" {
		t.Errorf("TenantID() = %q, want org-1", got)
	}
}

func TestInProcessLimiter(t *testing.T) {
	limiter := NewInProcessLimiter(map[string]TierConfig{
		"premium": {RequestsPerMinute: 3},
	}, 1)
	ctx := context.Background()

	premium := &Identity{Subject: "bob", ServiceTier: "premium"}
	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, premium); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, premium); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("request over limit: err = %v, want ErrTooManyRequests", err)
	}

	// Default tier uses defaultRPM.
	basic := &Identity{Subject: "carol"}
	if err := limiter.Allow(ctx, basic); err != nil {
		t.Fatalf("first default-tier request rejected: %v", err)
	}
	if err := limiter.Allow(ctx, basic); !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("second default-tier request: err = %v, want ErrTooManyRequests", err)
	}

	// Subjects are counted independently.
	other := &Identity{Subject: "dave"}
	if err := limiter.Allow(ctx, other); err != nil {
		t.Errorf("independent subject rejected: %v", err)
	}
}

func TestInProcessLimiterUnlimitedTier(t *testing.T) {
	limiter := NewInProcessLimiter(map[string]TierConfig{
		"internal": {RequestsPerMinute: 0},
	}, 1)
	id := &Identity{Subject: "svc", ServiceTier: "internal"}
	for i := 0; i < 10; i++ {
		if err := limiter.Allow(context.Background(), id); err != nil {
			t.Fatalf("unlimited tier rejected at request %d: %v", i+1, err)
		}
	}
}
