// Package jwt authenticates bearer tokens that are JSON Web Tokens.
//
// Tokens are verified either with RSA keys published at a JWKS endpoint or
// with a shared HMAC secret. Subject, tenant, tier and scopes are read from
// configurable claims.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/odin/pkg/auth"
	"github.com/rhuss/odin/pkg/debug"
)

// Config configures the authenticator. At least one of JWKSURL and Secret
// must be set.
type Config struct {
	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string

	// JWKSURL serves the RSA verification keys.
	JWKSURL string

	// Secret verifies HS256/384/512 tokens.
	Secret []byte

	SubjectClaim string // default "sub"
	TenantClaim  string // default "tenant_id"
	TierClaim    string // default "tier"
	ScopesClaim  string // default "scope"; space separated string or array

	// CacheTTL bounds how long fetched JWKS keys are trusted. Default 1h.
	CacheTTL time.Duration

	HTTPClient *http.Client
}

func (c *Config) setDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// ErrNoVerificationKey is returned by New when neither a JWKS URL nor a
// secret is configured.
var ErrNoVerificationKey = errors.New("jwt: JWKS URL or secret required")

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	cfg    Config
	keys   *keySet
	parser *jwtlib.Parser
}

// New creates an Authenticator.
func New(cfg Config) (*Authenticator, error) {
	cfg.setDefaults()
	if cfg.JWKSURL == "" && len(cfg.Secret) == 0 {
		return nil, ErrNoVerificationKey
	}

	var methods []string
	if cfg.JWKSURL != "" {
		methods = append(methods, "RS256", "RS384", "RS512")
	}
	if len(cfg.Secret) > 0 {
		methods = append(methods, "HS256", "HS384", "HS512")
	}
	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods(methods), jwtlib.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	a := &Authenticator{cfg: cfg, parser: jwtlib.NewParser(opts...)}
	if cfg.JWKSURL != "" {
		a.keys = newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL)
	}
	return a, nil
}

// Authenticate implements auth.Authenticator. Requests without a bearer
// token abstain; tokens that fail verification vote No.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return auth.Result{Decision: auth.Abstain}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return auth.Result{Decision: auth.No, Err: errors.New("empty bearer token")}
	}
	// Opaque tokens are left to other authenticators.
	if strings.Count(raw, ".") != 2 {
		return auth.Result{Decision: auth.Abstain}
	}

	claims := jwtlib.MapClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, a.keyFunc(ctx)); err != nil {
		debug.Log(debug.Auth, "JWT rejected", "error", err)
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject := stringClaim(claims, a.cfg.SubjectClaim)
	if subject == "" {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("JWT missing %q claim", a.cfg.SubjectClaim)}
	}
	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject: subject,
			Tenant:  stringClaim(claims, a.cfg.TenantClaim),
			Tier:    stringClaim(claims, a.cfg.TierClaim),
			Scopes:  scopes(claims[a.cfg.ScopesClaim]),
		},
	}
}

func (a *Authenticator) keyFunc(ctx context.Context) jwtlib.Keyfunc {
	return func(t *jwtlib.Token) (any, error) {
		switch t.Method.(type) {
		case *jwtlib.SigningMethodHMAC:
			if len(a.cfg.Secret) == 0 {
				return nil, errors.New("HMAC tokens are not accepted")
			}
			return a.cfg.Secret, nil
		case *jwtlib.SigningMethodRSA:
			if a.keys == nil {
				return nil, errors.New("RSA tokens are not accepted")
			}
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("token has no kid header")
			}
			return a.keys.key(ctx, kid)
		}
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopes reads a scope claim given as "a b c" or ["a","b","c"].
func scopes(v any) []string {
	var out []string
	switch v := v.(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
