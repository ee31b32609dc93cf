// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// the sentinel errors repositories return.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a queried row doesn't exist.
	ErrNotFound = errors.New("dberr: not found")

	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("dberr: unique violation")
)

// Wrap classifies a database error. Missing rows and unique violations become
// [ErrNotFound] and [ErrConflict]; everything else is wrapped with action.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. Unique constraint violation (SQLSTATE 23505)
	if IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", action, ErrConflict)
	}

	return fmt.Errorf("%s: %w", action, err)
}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// ConstraintName returns the violated constraint, or "" if err is not a Postgres error.
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
