package auth

import (
	"context"

	"github.com/doxen-app/doxen/pkg/types"
)

type ctxKey int

const authInfoKey ctxKey = iota

// --- Context get/set ---

func WithAuthInfo(ctx context.Context, info *types.AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey, info)
}

func AuthInfoFromContext(ctx context.Context) *types.AuthInfo {
	info, _ := ctx.Value(authInfoKey).(*types.AuthInfo)
	return info
}

// --- Authorization checks ---

func RequireAuth(ctx context.Context) error {
	if !AuthInfoFromContext(ctx).IsAuthenticated() {
		return types.NewIntegrationError(types.KindUnauthorized, "", "Unauthorized")
	}
	return nil
}

// RequireOwner rejects access to resources owned by another user.
func RequireOwner(ctx context.Context, ownerId string) error {
	i := AuthInfoFromContext(ctx)
	if !i.IsAuthenticated() {
		return types.NewIntegrationError(types.KindUnauthorized, "", "Unauthorized")
	}
	if !i.Owns(ownerId) {
		return types.NewIntegrationError(types.KindForbidden, "", "Access denied")
	}
	return nil
}

// --- Field accessors ---

func IsAuthenticated(ctx context.Context) bool { return AuthInfoFromContext(ctx).IsAuthenticated() }

func UserId(ctx context.Context) string {
	if i := AuthInfoFromContext(ctx); i != nil {
		return i.UserId
	}
	return ""
}

func Email(ctx context.Context) string {
	if i := AuthInfoFromContext(ctx); i != nil {
		return i.Email
	}
	return ""
}
