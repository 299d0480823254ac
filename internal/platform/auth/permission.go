package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is one value of the closed permission enumeration. Role
// validation and the access guard both use this type, so a string that
// is not listed here can never be granted or required.
type Permission string

const (
	UserRead   Permission = "user:read"
	UserCreate Permission = "user:create"
	UserUpdate Permission = "user:update"
	UserDelete Permission = "user:delete"

	CareUnitRead   Permission = "care-unit:read"
	CareUnitCreate Permission = "care-unit:create"
	CareUnitUpdate Permission = "care-unit:update"
	CareUnitDelete Permission = "care-unit:delete"

	RoleRead   Permission = "role:read"
	RoleCreate Permission = "role:create"
	RoleUpdate Permission = "role:update"
	RoleDelete Permission = "role:delete"

	AdminAll Permission = "admin:all"
)

var allPermissions = []Permission{
	UserRead, UserCreate, UserUpdate, UserDelete,
	CareUnitRead, CareUnitCreate, CareUnitUpdate, CareUnitDelete,
	RoleRead, RoleCreate, RoleUpdate, RoleDelete,
	AdminAll,
}

var knownPermissions = func() map[Permission]bool {
	m := make(map[Permission]bool, len(allPermissions))
	for _, p := range allPermissions {
		m[p] = true
	}
	return m
}()

// AllPermissions returns the full enumeration in declaration order.
func AllPermissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

func (p Permission) Valid() bool { return knownPermissions[p] }

// ParsePermissions validates raw values at the request boundary. Duplicates
// are collapsed; the first unknown value is reported.
func ParsePermissions(raw []string) ([]Permission, error) {
	seen := make(map[Permission]bool, len(raw))
	out := make([]Permission, 0, len(raw))
	for _, r := range raw {
		p := Permission(strings.TrimSpace(r))
		if !p.Valid() {
			return nil, fmt.Errorf("unknown permission %q", r)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// PermissionSet is the effective permission set of an identity.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Slice returns the set sorted, for stable JSON output.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
