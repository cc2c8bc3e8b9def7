package noop

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/odin/pkg/auth"
)

func TestAuthenticate(t *testing.T) {
	res := (&Authenticator{Tenant: "dev"}).Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	if res.Decision != auth.Yes {
		t.Fatalf("decision = %d", res.Decision)
	}
	if res.Identity.Subject != "anonymous" || res.Identity.Tenant != "dev" || res.Identity.Tier != auth.DefaultTier {
		t.Errorf("identity = %+v", res.Identity)
	}
}
