package auth

import (
	"context"
	"strings"
)

type ctxKey string

const (
	userIDKey ctxKey = "auth_user_id"
	roleKey   ctxKey = "auth_role"
)

// ContextWithActor stores the authenticated actor identity in the context.
func ContextWithActor(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
	if role = NormalizeRole(role); role != "" {
		ctx = context.WithValue(ctx, roleKey, role)
	}
	return ctx
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// RoleFromContext extracts the authenticated role from context.
func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
