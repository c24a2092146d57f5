package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"go-openclaw-autoapply/internal/models"
)

// ---------------- SESSION OPERATIONS ----------------
// Never log session_encrypted.

// ValidCredential returns nil, nil when the user has no session for platform.
func (r *Repository) ValidCredential(ctx context.Context, userID string, platform models.Platform) (*models.EncryptedCredential, error) {
	c := models.EncryptedCredential{UserID: userID, Platform: platform}
	err := r.db.QueryRow(ctx, `
		SELECT session_encrypted, is_valid, created_at, expires_at
		FROM platform_sessions WHERE user_id = $1 AND platform = $2`,
		userID, string(platform)).Scan(&c.Blob, &c.Valid, &c.CreatedAt, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s session: %w", platform, err)
	}
	return &c, nil
}

// CredentialCreatedAt returns ErrNotFound when there is no session.
func (r *Repository) CredentialCreatedAt(ctx context.Context, userID string, platform models.Platform) (time.Time, error) {
	var created time.Time
	err := r.db.QueryRow(ctx,
		"SELECT created_at FROM platform_sessions WHERE user_id = $1 AND platform = $2",
		userID, string(platform)).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read session age: %w", err)
	}
	return created, nil
}

// SaveCredential stores an already encrypted blob.
func (r *Repository) SaveCredential(ctx context.Context, c models.EncryptedCredential) error {
	query := `
		INSERT INTO platform_sessions (user_id, platform, session_encrypted, is_valid, created_at, expires_at)
		VALUES ($1, $2, $3, TRUE, NOW(), $4)
		ON CONFLICT (user_id, platform) DO UPDATE SET
			session_encrypted = EXCLUDED.session_encrypted,
			is_valid = TRUE,
			created_at = NOW(),
			expires_at = EXCLUDED.expires_at`
	if _, err := r.db.Exec(ctx, query, c.UserID, string(c.Platform), c.Blob, c.ExpiresAt); err != nil {
		return fmt.Errorf("failed to save %s session: %w", c.Platform, err)
	}
	return nil
}
