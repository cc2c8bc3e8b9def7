// Package noop admits every request under one fixed identity. It is meant
// for development setups without credentials.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/odin/pkg/auth"
)

// Authenticator votes Yes for every request.
type Authenticator struct {
	// Tenant, when set, scopes all requests to one tenant.
	Tenant string
}

// Authenticate implements auth.Authenticator.
func (a *Authenticator) Authenticate(context.Context, *http.Request) auth.Result {
	id := auth.Anonymous()
	id.Tenant = a.Tenant
	return auth.Result{Decision: auth.Yes, Identity: id}
}
