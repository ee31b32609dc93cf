// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dberr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/yomira-cms/internal/platform/dberr"
)

/*
TestWrap classifies driver errors.
*/
func TestWrap(t *testing.T) {
	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "account_email_key"}
	other := errors.New("connection reset")

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"No rows", pgx.ErrNoRows, dberr.ErrNotFound},
		{"Wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), dberr.ErrNotFound},
		{"Unique violation", unique, dberr.ErrConflict},
		{"Other", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, dberr.Wrap(tt.err, "insert_account"), tt.target)
		})
	}

	assert.NoError(t, dberr.Wrap(nil, "noop"))
	assert.Equal(t, "account_email_key", dberr.ConstraintName(fmt.Errorf("x: %w", unique)))
	assert.False(t, dberr.IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
}
