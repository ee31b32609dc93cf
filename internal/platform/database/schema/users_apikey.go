// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

import "strings"

// UserAPIKeyTable represents the 'users.apikey' table
type UserAPIKeyTable struct {
	Table     string
	KeyHash   string
	Prefix    string
	CreatedAt string
}

// UserAPIKey is the schema definition for users.apikey
var UserAPIKey = UserAPIKeyTable{
	Table:     "users.apikey",
	KeyHash:   "keyhash",
	Prefix:    "prefix",
	CreatedAt: "createdat",
}

// Columns returns all standard column names
func (t UserAPIKeyTable) Columns() []string {
	return []string{t.KeyHash, t.Prefix, t.CreatedAt}
}

// SelectList joins Columns for a SELECT clause.
func (t UserAPIKeyTable) SelectList() string {
	return strings.Join(t.Columns(), ", ")
}
