// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// # Input Constraints

const (
	// PasswordMinLength is the minimum number of characters in a password.
	PasswordMinLength = 8

	// DisplayNameMinLength is the minimum number of characters in a display name.
	DisplayNameMinLength = 2

	// DisplayNameMaxLength caps display names.
	DisplayNameMaxLength = 100

	// EmailMaxLength caps email addresses (RFC 5321 path limit).
	EmailMaxLength = 254

	// APIKeyMinLength is the shortest raw API key accepted for registration.
	APIKeyMinLength = 24

	// apiKeyPrefixLength is how much of a raw key is kept for identification.
	apiKeyPrefixLength = 6
)

// # Metric Labels

const (
	operationRegister = "register"
	operationLogin    = "login"
	operationRefresh  = "refresh"
	operationLogout   = "logout"
)
