package auth

import (
	"errors"
	"fmt"

	"github.com/spec-kit/event-auth/internal/domain"
)

// RoleAllowList is the set of roles permitted on a protected operation.
// It is fixed when the route is registered.
type RoleAllowList struct {
	roles []domain.Role
	set   map[domain.Role]struct{}
}

// NewAllowList validates roles and builds an allow-list. An empty list can
// never be satisfied and is rejected as a configuration error.
func NewAllowList(roles ...domain.Role) (RoleAllowList, error) {
	if len(roles) == 0 {
		return RoleAllowList{}, newError(KindConfiguration, errors.New("allow-list has no roles"))
	}

	list := RoleAllowList{set: make(map[domain.Role]struct{}, len(roles))}
	for _, r := range roles {
		if !r.Valid() {
			return RoleAllowList{}, newError(KindConfiguration, fmt.Errorf("allow-list names unknown role %q", r))
		}
		if _, dup := list.set[r]; dup {
			continue
		}
		list.set[r] = struct{}{}
		list.roles = append(list.roles, r)
	}
	return list, nil
}

// MustAllowList is NewAllowList for static route tables.
func MustAllowList(roles ...domain.Role) RoleAllowList {
	list, err := NewAllowList(roles...)
	if err != nil {
		panic(err)
	}
	return list
}

// Contains reports whether role is permitted.
func (l RoleAllowList) Contains(role domain.Role) bool {
	_, ok := l.set[role]
	return ok
}

// Roles returns the permitted roles in registration order.
func (l RoleAllowList) Roles() []domain.Role {
	return append([]domain.Role(nil), l.roles...)
}

// Empty reports whether the list was built without NewAllowList.
func (l RoleAllowList) Empty() bool {
	return len(l.set) == 0
}
