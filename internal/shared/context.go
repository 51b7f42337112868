package shared

import "context"

type tenantContextKey struct{}

type actorContextKey struct{}

// ContextWithTenant stores the tenant identifier in context.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext extracts the tenant identifier from context.
func TenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantContextKey{}).(string)
	return tenantID
}

// ContextWithActor stores the acting user identifier in context.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user identifier from context.
func ActorFromContext(ctx context.Context) string {
	actorID, _ := ctx.Value(actorContextKey{}).(string)
	return actorID
}
