// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"slices"
	"strings"
)

// # User Roles

// Role represents the authorization level granted to an account.
//
// The set is closed. Anything read from storage, a request or a token is
// normalized through [ParseRole] before use.
type Role string

const (
	// Unrestricted system access
	RoleAdmin Role = "admin"

	// Manages all content, media and taxonomy; moderates comments
	RoleEditor Role = "editor"

	// Writes and manages their own content
	RoleAuthor Role = "author"

	// Default role for self-registered accounts
	RoleViewer Role = "viewer"
)

// Roles lists every role in descending order of reach.
var Roles = []Role{RoleAdmin, RoleEditor, RoleAuthor, RoleViewer}

// ParseRole normalizes raw into one of the known roles.
func ParseRole(raw string) (Role, bool) {
	candidate := Role(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(Roles, candidate) {
		return candidate, true
	}
	return "", false
}

// Valid reports whether the role belongs to the closed set.
func (role Role) Valid() bool {
	return slices.Contains(Roles, role)
}

// # Permissions

// Permission is a colon-delimited capability ("resource:action"), or one of the
// wildcard forms "*" and "resource:*".
type Permission string

// PermissionAll grants everything.
const PermissionAll Permission = "*"

const wildcardSuffix = ":*"

// rolePermissions is an explicit table, not a hierarchy. Editor and author
// share reads but hold otherwise disjoint grants.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionAll,
	},
	RoleEditor: {
		"content:*",
		"media:*",
		"categories:*",
		"tags:*",
		"comments:read",
		"comments:moderate",
		"users:read",
		"analytics:read",
	},
	RoleAuthor: {
		"content:read",
		"content:create",
		"content:update:own",
		"content:delete:own",
		"media:read",
		"media:upload",
		"comments:read",
		"comments:create",
	},
	RoleViewer: {
		"content:read",
		"media:read",
		"comments:read",
		"comments:create",
	},
}

// PermissionsFor returns a sorted copy of the grants for role. Unknown roles
// receive the viewer set.
func PermissionsFor(role Role) []Permission {
	grants, ok := rolePermissions[role]
	if !ok {
		grants = rolePermissions[RoleViewer]
	}
	out := slices.Clone(grants)
	slices.Sort(out)
	return out
}

// Can reports whether role holds the required permission.
func (role Role) Can(required Permission) bool {
	return Grants(PermissionsFor(role), required)
}

// Grants reports whether any permission in granted covers required.
//
// "resource:*" matches only permissions that start with "resource:" and name
// an action, so "content:*" covers "content:create" but neither the bare
// "content" nor "contentx:read".
func Grants(granted []Permission, required Permission) bool {
	for _, grant := range granted {
		if grant.covers(required) {
			return true
		}
	}
	return false
}

func (grant Permission) covers(required Permission) bool {
	if grant == PermissionAll || grant == required {
		return true
	}
	if !strings.HasSuffix(string(grant), wildcardSuffix) {
		return false
	}
	prefix := strings.TrimSuffix(string(grant), "*")
	return strings.HasPrefix(string(required), prefix) && len(required) > len(prefix)
}
