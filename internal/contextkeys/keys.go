package contextkeys

import "context"

type ownerIDKey struct{}
type connectionIDKey struct{}

func WithOwnerID(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerIDKey{}, ownerID)
}

// GetOwnerID returns the user who owns the business connection of the update.
func GetOwnerID(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(ownerIDKey{}).(int64)
	return v, ok
}

func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, connectionIDKey{}, connectionID)
}

func GetConnectionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(connectionIDKey{}).(string)
	return v, ok && v != ""
}
