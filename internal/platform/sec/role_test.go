// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/yomira-cms/internal/platform/sec"
)

/*
TestPermissionsFor_Total verifies every role maps to a non-empty set.
*/
func TestPermissionsFor_Total(t *testing.T) {
	for _, role := range sec.Roles {
		t.Run(string(role), func(t *testing.T) {
			assert.NotEmpty(t, sec.PermissionsFor(role))
		})
	}

	assert.Equal(t, sec.PermissionsFor(sec.RoleViewer), sec.PermissionsFor(sec.Role("ghost")))
}

/*
TestPermissionsFor_ReturnsCopy makes sure callers cannot mutate the table.
*/
func TestPermissionsFor_ReturnsCopy(t *testing.T) {
	grants := sec.PermissionsFor(sec.RoleEditor)
	grants[0] = "*"

	assert.False(t, sec.RoleEditor.Can("system:shutdown"))
}

/*
TestRole_Can exercises the table and the wildcard rules.
*/
func TestRole_Can(t *testing.T) {
	tests := []struct {
		name     string
		role     sec.Role
		required sec.Permission
		want     bool
	}{
		{"editor_wildcard_create", sec.RoleEditor, "content:create", true},
		{"editor_wildcard_nested", sec.RoleEditor, "content:update:own", true},
		{"editor_no_moderate_all", sec.RoleEditor, "comments:moderateAll", false},
		{"editor_moderate", sec.RoleEditor, "comments:moderate", true},
		{"editor_wildcard_delimiter", sec.RoleEditor, "contentx:read", false},
		{"editor_bare_resource", sec.RoleEditor, "content", false},
		{"admin_anything", sec.RoleAdmin, "comments:moderateAll", true},
		{"author_create", sec.RoleAuthor, "content:create", true},
		{"author_no_publish", sec.RoleAuthor, "content:publish", false},
		{"author_no_moderate", sec.RoleAuthor, "comments:moderate", false},
		{"viewer_read", sec.RoleViewer, "content:read", true},
		{"viewer_no_create", sec.RoleViewer, "content:create", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.Can(tt.required))
		})
	}
}

/*
TestGrants_ExplicitSets covers matching against an arbitrary granted set.
*/
func TestGrants_ExplicitSets(t *testing.T) {
	assert.True(t, sec.Grants([]sec.Permission{"*"}, "anything:at:all"))
	assert.True(t, sec.Grants([]sec.Permission{"media:*"}, "media:upload"))
	assert.False(t, sec.Grants([]sec.Permission{"media:*"}, "mediakit:upload"))
	assert.False(t, sec.Grants([]sec.Permission{"media:*"}, "media:"))
	assert.False(t, sec.Grants([]sec.Permission{"media:*"}, "media"))
	assert.False(t, sec.Grants(nil, "content:read"))
}

/*
TestParseRole normalizes case and whitespace and rejects unknown values.
*/
func TestParseRole(t *testing.T) {
	role, ok := sec.ParseRole("  Editor ")
	assert.True(t, ok)
	assert.Equal(t, sec.RoleEditor, role)

	_, ok = sec.ParseRole("moderator")
	assert.False(t, ok)

	_, ok = sec.ParseRole("")
	assert.False(t, ok)
}
