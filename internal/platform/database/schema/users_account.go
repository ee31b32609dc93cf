// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema holds table and column identifiers for SQL builders.
package schema

import "strings"

// UserAccountTable represents the 'users.account' table
type UserAccountTable struct {
	Table       string
	ID          string
	Email       string
	Password    string
	DisplayName string
	Role        string
	CreatedAt   string
}

// UserAccount is the schema definition for users.account
var UserAccount = UserAccountTable{
	Table:       "users.account",
	ID:          "id",
	Email:       "email",
	Password:    "passwordhash",
	DisplayName: "displayname",
	Role:        "role",
	CreatedAt:   "createdat",
}

// Columns returns all standard column names
func (t UserAccountTable) Columns() []string {
	return []string{t.ID, t.Email, t.Password, t.DisplayName, t.Role, t.CreatedAt}
}

// SelectList joins Columns for a SELECT clause.
func (t UserAccountTable) SelectList() string {
	return strings.Join(t.Columns(), ", ")
}
