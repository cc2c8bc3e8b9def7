package storage

import "context"

type tenantCtxKey struct{}

// WithTenant returns a context whose store operations are scoped to
// tenant. The auth middleware calls it with the tenant of the
// authenticated identity.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenant)
}

// TenantFromContext returns the tenant stores partition records by. The
// empty string is the shared default partition.
func TenantFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantCtxKey{}).(string)
	return tenant
}
