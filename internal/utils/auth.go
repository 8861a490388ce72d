package utils

import "context"

// SetUserContext sets user info into context (called by middleware)
func SetUserContext(ctx context.Context, id uint, username string, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id)
	ctx = context.WithValue(ctx, UsernameKey, username)
	ctx = context.WithValue(ctx, UserRoleKey, role)
	return ctx
}

// GetUserIDFromContext retrieves userID safely
func GetUserIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(UserIDKey).(uint)
	return id, ok
}

func GetUsernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(UsernameKey).(string)
	return username
}

func GetUserRoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}
