// Package auth authenticates and rate limits requests before they reach
// the dispatcher.
//
// Authentication is a chain of Authenticators, each voting Yes (identity
// found), No (credentials invalid) or Abstain. A default decision applies
// when every authenticator abstains. The HTTP middleware runs the chain,
// checks the caller's scopes against the request method, applies the
// per-tier rate limit and stores the identity and its tenant in the
// request context. Rejections are written as OData error documents.
package auth
