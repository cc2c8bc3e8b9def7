// Package apikey authenticates callers by static API keys, presented
// either as a bearer token or in the X-API-Key header. Only SHA-256
// hashes of the keys are kept in memory.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/odin/pkg/auth"
)

// HeaderAPIKey is the alternative header carrying a key.
const HeaderAPIKey = "X-API-Key"

// Key binds a raw API key to the identity it grants.
type Key struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	hash     [sha256.Size]byte
	identity auth.Identity
}

// Authenticator validates API keys.
type Authenticator struct {
	entries []entry
}

// New creates an authenticator for keys. Empty keys are ignored.
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		a.entries = append(a.entries, entry{hash: sha256.Sum256([]byte(k.Key)), identity: k.Identity})
	}
	return a
}

// credential returns the presented key and whether any was presented.
func credential(r *http.Request) (string, bool) {
	if v := r.Header.Get(HeaderAPIKey); v != "" {
		return strings.TrimSpace(v), true
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Authenticate implements auth.Authenticator. It abstains when no key is
// presented and votes No for an unknown key. All entries are compared so
// the time taken does not depend on which one matches.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key, ok := credential(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	sum := sha256.Sum256([]byte(key))
	match := -1
	for i := range a.entries {
		if subtle.ConstantTimeCompare(sum[:], a.entries[i].hash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}
	id := a.entries[match].identity
	id.Scopes = append([]string(nil), id.Scopes...)
	return auth.Result{Decision: auth.Yes, Identity: &id}
}
