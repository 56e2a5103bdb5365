package auth

import (
	"context"

	"github.com/dukerupert/shoplist/internal/model"
)

type contextKey struct{}

// Identity is the resolved caller of an operation.
type Identity struct {
	UserID   int64
	UserName string
	Role     string
}

type AuthContext struct {
	Identity
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// IdentityFrom returns the caller identity, or the zero Identity for an
// anonymous context. The zero Identity is neither admin nor owner of anything.
func IdentityFrom(ctx context.Context) Identity {
	ac, ok := FromContext(ctx)
	if !ok {
		return Identity{}
	}
	return ac.Identity
}

func UserName(ctx context.Context) string {
	return IdentityFrom(ctx).UserName
}

func IsAdmin(ctx context.Context) bool {
	return IdentityFrom(ctx).Role == model.RoleAdmin
}
