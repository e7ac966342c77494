package access

import "context"

type permissionsContextKey struct{}

// WithPermissions stores the session's permission set in ctx.
func WithPermissions(ctx context.Context, set PermissionSet) context.Context {
	return context.WithValue(ctx, permissionsContextKey{}, set)
}

// PermissionsFromContext returns the permission set stored in ctx, or an empty
// set when none was attached.
func PermissionsFromContext(ctx context.Context) PermissionSet {
	set, _ := ctx.Value(permissionsContextKey{}).(PermissionSet)
	return set
}
