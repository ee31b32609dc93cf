// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/yomira-cms/internal/platform/database/schema"
	"github.com/taibuivan/yomira-cms/internal/platform/dberr"
	"github.com/taibuivan/yomira-cms/internal/platform/postgres"
	"github.com/taibuivan/yomira-cms/internal/platform/sec"
)

// # Queries

var (
	accountTable = schema.UserAccount
	refreshTable = schema.UserRefreshToken
	apiKeyTable  = schema.UserAPIKey

	queryUserByID = fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s = $1`,
		accountTable.SelectList(), accountTable.Table, accountTable.ID,
	)

	queryUserByEmail = fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s = $1`,
		accountTable.SelectList(), accountTable.Table, accountTable.Email,
	)

	queryInsertUser = fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		accountTable.Table, accountTable.SelectList(),
	)

	queryInsertRefreshToken = fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4)`,
		refreshTable.Table, refreshTable.SelectList(),
	)

	queryRefreshTokenByHash = fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s = $1`,
		refreshTable.SelectList(), refreshTable.Table, refreshTable.TokenHash,
	)

	// The DELETE takes the row lock; a concurrent rotation of the same hash
	// re-evaluates after commit, deletes nothing and so inserts nothing.
	queryRotateRefreshToken = fmt.Sprintf(`
		WITH consumed AS (
			DELETE FROM %[1]s
			WHERE %[2]s = $1 AND %[5]s > $5
			RETURNING %[3]s
		)
		INSERT INTO %[1]s (%[2]s, %[3]s, %[4]s, %[5]s)
		SELECT $2::text, consumed.%[3]s, $3::timestamptz, $4::timestamptz FROM consumed`,
		refreshTable.Table, refreshTable.TokenHash, refreshTable.UserID, refreshTable.IssuedAt, refreshTable.ExpiresAt,
	)

	queryRevokeRefreshToken = fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`,
		refreshTable.Table, refreshTable.TokenHash,
	)

	queryDeleteExpiredRefreshTokens = fmt.Sprintf(`DELETE FROM %s WHERE %s <= $1`,
		refreshTable.Table, refreshTable.ExpiresAt,
	)

	queryAPIKeyByHash = fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s = $1`,
		apiKeyTable.SelectList(), apiKeyTable.Table, apiKeyTable.KeyHash,
	)

	queryUpsertAPIKey = fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s, %[4]s)
		VALUES ($1, $2, $3)
		ON CONFLICT (%[2]s) DO UPDATE SET %[3]s = EXCLUDED.%[3]s`,
		apiKeyTable.Table, apiKeyTable.KeyHash, apiKeyTable.Prefix, apiKeyTable.CreatedAt,
	)

	queryDeleteAPIKeysExcept = fmt.Sprintf(`DELETE FROM %s WHERE NOT (%s = ANY($1))`,
		apiKeyTable.Table, apiKeyTable.KeyHash,
	)
)

// # User Repository

// PostgresUserRepository implements [UserRepository] using pgx.
type PostgresUserRepository struct {
	db postgres.DB
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(db postgres.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

/*
FindByID retrieves an identity by primary key.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated entity
  - error: ErrUserNotFound or execution errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	return repository.findOne(context, queryUserByID, id, "postgres_user_repo_find_by_id_failed")
}

/*
FindByEmail retrieves an identity by its unique email address.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *User: Hydrated entity
  - error: ErrUserNotFound or execution errors
*/
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	return repository.findOne(context, queryUserByEmail, email, "postgres_user_repo_find_by_email_failed")
}

func (repository *PostgresUserRepository) findOne(context context.Context, query, arg, action string) (*User, error) {
	var role string
	user := &User{}

	err := repository.db.QueryRow(context, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&role,
		&user.CreatedAt,
	)

	if err != nil {
		err = dberr.Wrap(err, action)
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	user.Role = sec.Role(role)
	return user, nil
}

/*
Create persists a new identity into the users.account table.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: ErrEmailTaken on the unique email constraint, or connectivity errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	_, err := repository.db.Exec(context, queryInsertUser,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		string(user.Role),
		user.CreatedAt,
	)

	if err != nil {
		err = dberr.Wrap(err, "postgres_user_repo_create_failed")
		if errors.Is(err, dberr.ErrConflict) {
			return ErrEmailTaken
		}
		return err
	}

	return nil
}

// # Refresh Token Store

// PostgresRefreshTokenStore implements [RefreshTokenStore] over users.refreshtoken.
type PostgresRefreshTokenStore struct {
	db  postgres.DB
	now func() time.Time
}

// NewRefreshTokenStore creates a new PostgreSQL implementation of RefreshTokenStore.
// A nil now uses time.Now.
func NewRefreshTokenStore(db postgres.DB, now func() time.Time) *PostgresRefreshTokenStore {
	if now == nil {
		now = time.Now
	}
	return &PostgresRefreshTokenStore{db: db, now: now}
}

// Issue implements [RefreshTokenStore].
func (store *PostgresRefreshTokenStore) Issue(context context.Context, token *RefreshToken) error {
	_, err := store.db.Exec(context, queryInsertRefreshToken,
		token.TokenHash,
		token.UserID,
		token.IssuedAt,
		token.ExpiresAt,
	)

	if err != nil {
		err = dberr.Wrap(err, "postgres_refresh_token_issue_failed")
		if errors.Is(err, dberr.ErrConflict) {
			return ErrTokenConflict
		}
		return err
	}

	return nil
}

// ConsumeForRotation implements [RefreshTokenStore].
func (store *PostgresRefreshTokenStore) ConsumeForRotation(context context.Context, tokenHash string) (*RefreshToken, error) {
	record := &RefreshToken{}

	err := store.db.QueryRow(context, queryRefreshTokenByHash, tokenHash).Scan(
		&record.TokenHash,
		&record.UserID,
		&record.IssuedAt,
		&record.ExpiresAt,
	)

	if err != nil {
		err = dberr.Wrap(err, "postgres_refresh_token_lookup_failed")
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	if record.Expired(store.now()) {
		return nil, ErrTokenExpired
	}

	return record, nil
}

/*
Rotate replaces the record for oldHash with next in a single statement.

Description: A data-modifying CTE deletes the live old record and inserts the
replacement only if the delete matched, so the pair commits or fails as one.

Returns:
  - error: ErrTokenNotFound (already rotated, revoked or expired),
    ErrTokenConflict, or execution errors
*/
func (store *PostgresRefreshTokenStore) Rotate(context context.Context, oldHash string, next *RefreshToken) error {
	tag, err := store.db.Exec(context, queryRotateRefreshToken,
		oldHash,
		next.TokenHash,
		next.IssuedAt,
		next.ExpiresAt,
		store.now(),
	)

	if err != nil {
		err = dberr.Wrap(err, "postgres_refresh_token_rotate_failed")
		if errors.Is(err, dberr.ErrConflict) {
			return ErrTokenConflict
		}
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}

	return nil
}

// Revoke implements [RefreshTokenStore].
func (store *PostgresRefreshTokenStore) Revoke(context context.Context, tokenHash string) error {
	if _, err := store.db.Exec(context, queryRevokeRefreshToken, tokenHash); err != nil {
		return fmt.Errorf("postgres_refresh_token_revoke_failed: %w", err)
	}
	return nil
}

// DeleteExpired implements [RefreshTokenStore].
func (store *PostgresRefreshTokenStore) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	tag, err := store.db.Exec(context, queryDeleteExpiredRefreshTokens, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_token_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// # API Key Store

// PostgresAPIKeyStore implements [APIKeyStore] over users.apikey.
type PostgresAPIKeyStore struct {
	db postgres.DB
}

// NewAPIKeyStore creates a new PostgreSQL implementation of APIKeyStore.
func NewAPIKeyStore(db postgres.DB) *PostgresAPIKeyStore {
	return &PostgresAPIKeyStore{db: db}
}

// Find implements [APIKeyStore].
func (store *PostgresAPIKeyStore) Find(context context.Context, keyHash string) (*APIKey, error) {
	key := &APIKey{}

	err := store.db.QueryRow(context, queryAPIKeyByHash, keyHash).Scan(
		&key.KeyHash,
		&key.Prefix,
		&key.CreatedAt,
	)

	if err != nil {
		err = dberr.Wrap(err, "postgres_api_key_lookup_failed")
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, err
	}

	return key, nil
}

// Save implements [APIKeyStore].
func (store *PostgresAPIKeyStore) Save(context context.Context, key *APIKey) error {
	if _, err := store.db.Exec(context, queryUpsertAPIKey, key.KeyHash, key.Prefix, key.CreatedAt); err != nil {
		return fmt.Errorf("postgres_api_key_save_failed: %w", err)
	}
	return nil
}

// DeleteExcept implements [APIKeyStore].
func (store *PostgresAPIKeyStore) DeleteExcept(context context.Context, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	tag, err := store.db.Exec(context, queryDeleteAPIKeysExcept, keep)
	if err != nil {
		return 0, fmt.Errorf("postgres_api_key_delete_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
