package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/travelhub/booking-backend/internal/models"
)

// RefreshTokenRepository handles refresh token database operations.
// Only SHA-256 hashes of tokens are stored.
type RefreshTokenRepository struct {
	db DB
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		db: db,
	}
}

// hashToken creates a SHA-256 hash of the token for storage
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Store saves a refresh token
func (r *RefreshTokenRepository) Store(
	ctx context.Context,
	userID uuid.UUID,
	token string,
	ipAddress, userAgent string,
	expiresAt time.Time,
) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	var ipVal, userAgentVal interface{}
	if ipAddress != "" {
		ipVal = ipAddress
	}
	if userAgent != "" {
		userAgentVal = userAgent
	}

	_, err := r.db.ExecContext(ctx, query, uuid.New(), userID, hashToken(token), ipVal, userAgentVal, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// Get returns a stored refresh token, or nil when it is unknown
func (r *RefreshTokenRepository) Get(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken

	query := `
		SELECT id, user_id, token_hash, ip_address, user_agent, created_at, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	err := r.db.GetContext(ctx, &refreshToken, query, hashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &refreshToken, nil
}

// Revoke revokes a single refresh token. Revoking an unknown or already
// revoked token is not an error.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	query := `UPDATE refresh_tokens SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, time.Now(), hashToken(token)); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active refresh token of a user
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, time.Now(), userID); err != nil {
		return fmt.Errorf("failed to revoke all user tokens: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens that expired before the cutoff
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}
