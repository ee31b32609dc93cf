// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

import "strings"

// UserRefreshTokenTable represents the 'users.refreshtoken' table
type UserRefreshTokenTable struct {
	Table     string
	TokenHash string
	UserID    string
	IssuedAt  string
	ExpiresAt string
}

// UserRefreshToken is the schema definition for users.refreshtoken
var UserRefreshToken = UserRefreshTokenTable{
	Table:     "users.refreshtoken",
	TokenHash: "tokenhash",
	UserID:    "userid",
	IssuedAt:  "issuedat",
	ExpiresAt: "expiresat",
}

// Columns returns all standard column names
func (t UserRefreshTokenTable) Columns() []string {
	return []string{t.TokenHash, t.UserID, t.IssuedAt, t.ExpiresAt}
}

// SelectList joins Columns for a SELECT clause.
func (t UserRefreshTokenTable) SelectList() string {
	return strings.Join(t.Columns(), ", ")
}
