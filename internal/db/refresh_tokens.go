package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plantstation/internal/models"
)

type RefreshTokenRepository struct {
	db *DB
}

func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(userID int64, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	now := time.Now().UTC()

	result, err := r.db.Exec(
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		userID, tokenHash, expiresAt.UTC(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading new refresh token id: %w", err)
	}

	return &models.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

func (r *RefreshTokenRepository) FindByHash(tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	var revokedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, user_id, token_hash, expires_at, created_at, revoked_at FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}

	t.RevokedAt = nullTimeToPtr(revokedAt)

	return &t, nil
}

// Revoke marks a token revoked only if it has not been revoked already, so
// concurrent rotations of the same token cannot both succeed.
func (r *RefreshTokenRepository) Revoke(id int64) error {
	result, err := r.db.Exec(
		`UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *RefreshTokenRepository) RevokeAllForUser(userID int64) error {
	_, err := r.db.Exec(
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("revoking refresh tokens: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM refresh_tokens WHERE expires_at < ? OR revoked_at IS NOT NULL`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}

	return result.RowsAffected()
}
