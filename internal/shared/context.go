package shared

import "context"

type callerContextKey struct{}

// ContextWithCaller stores the authenticated caller address in context.
func ContextWithCaller(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, callerContextKey{}, address)
}

// CallerFromContext extracts the caller address from context.
func CallerFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(callerContextKey{}).(string)
	return addr
}
