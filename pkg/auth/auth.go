package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
)

// Decision is the vote of one Authenticator.
type Decision int

const (
	// Yes means the credentials are valid. The chain stops and the
	// identity is used.
	Yes Decision = iota

	// No means credentials are present but invalid. The chain stops and
	// the request is rejected.
	No

	// Abstain means the authenticator does not handle the presented
	// credentials. The chain continues.
	Abstain
)

// Result is the outcome of an authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set when Decision == Yes
	Err      error     // set when Decision == No
}

// Scopes understood by the service. An identity without any scopes is
// granted both.
const (
	ScopeRead  = "odata.read"
	ScopeWrite = "odata.write"
)

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller and must not be empty.
	Subject string

	// Tier selects the rate limit bucket.
	Tier string

	Scopes []string

	// Tenant scopes the caller's view of the record store. Empty means
	// the shared default tenant.
	Tenant string
}

// Permits reports whether the identity may issue a request with method.
// GET and HEAD need ScopeRead; everything else needs ScopeWrite.
func (id *Identity) Permits(method string) bool {
	if id == nil {
		return false
	}
	if len(id.Scopes) == 0 {
		return true
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return slices.Contains(id.Scopes, ScopeRead) || slices.Contains(id.Scopes, ScopeWrite)
	}
	return slices.Contains(id.Scopes, ScopeWrite)
}

// Authenticator examines the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Anonymous is the identity granted when every authenticator abstains and
// the chain defaults to Yes.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", Tier: DefaultTier}
}

// Chain evaluates authenticators in order. The first Yes or No wins.
type Chain struct {
	Authenticators []Authenticator

	// Default decides when all authenticators abstain: Yes admits the
	// request as Anonymous, anything else rejects it.
	Default Decision
}

// Authenticate runs the chain.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.Default == Yes {
		return Result{Decision: Yes, Identity: Anonymous()}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}
