package auth

import (
	"strings"

	"github.com/dukerupert/shoplist/internal/model"
)

// Policy decides which identity may invoke which mutation. Both methods
// are pure predicates; callers must check them before any side effect.
type Policy interface {
	// IsAdmin gates catalog writes.
	IsAdmin(id Identity) bool
	// IsOwner gates every read and write of a shopping list.
	IsOwner(id Identity, list *model.ShoppingList) bool
}

// RolePolicy grants catalog writes to the admin role and list access to
// the user whose name matches the list owner, ignoring case.
type RolePolicy struct{}

func (RolePolicy) IsAdmin(id Identity) bool {
	return id.UserName != "" && id.Role == model.RoleAdmin
}

func (RolePolicy) IsOwner(id Identity, list *model.ShoppingList) bool {
	if id.UserName == "" || list == nil {
		return false
	}
	return strings.EqualFold(id.UserName, list.OwnerUserName)
}
