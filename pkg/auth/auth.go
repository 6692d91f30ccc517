package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision is the outcome of one authentication attempt.
type Decision int

const (
	// Allow means the credentials are valid and an identity was
	// established. The chain stops here.
	Allow Decision = iota

	// Deny means credentials were presented but are invalid. The chain
	// stops and the request is rejected.
	Deny

	// Abstain means this authenticator does not handle the presented
	// credential type. The chain continues.
	Abstain
)

// Result carries the outcome of an authentication attempt. Identity is
// set only for Allow, Err only for Deny.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject uniquely identifies the caller. Required.
	Subject string

	// ServiceTier selects the rate limit bucket.
	ServiceTier string

	// Scopes lists granted authorization scopes.
	Scopes []string

	// Metadata carries provider-specific attributes. The key
	// "tenant_id" scopes session storage.
	Metadata map[string]string
}

// TenantID returns the tenant identifier from metadata, or empty.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Authenticator inspects request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain evaluates authenticators left to right, stopping at the first
// Allow or Deny vote.
type Chain struct {
	Authenticators []Authenticator

	// AllowAnonymous controls the fallback when every authenticator
	// abstains: true grants an anonymous identity (development mode),
	// false rejects the request.
	AllowAnonymous bool
}

// Authenticate runs the chain.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		result := a.Authenticate(ctx, r)
		if result.Decision != Abstain {
			return result
		}
	}

	if c.AllowAnonymous {
		return Result{
			Decision: Allow,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}
	return Result{Decision: Deny, Err: ErrUnauthenticated}
}
