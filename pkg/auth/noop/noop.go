// Package noop provides an authenticator that admits every request
// with an anonymous identity. Development use only.
package noop

import (
	"context"
	"net/http"

	"github.com/bruecke-dev/bruecke/pkg/auth"
)

// Authenticator always allows with a default anonymous identity.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.Result {
	return auth.Result{
		Decision: auth.Allow,
		Identity: &auth.Identity{Subject: "anonymous", ServiceTier: "default"},
	}
}
