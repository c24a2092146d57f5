package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"go-openclaw-autoapply/internal/models"
)

// ---------------- PROFILE OPERATIONS ----------------

// GetUserAutomationProfile returns ErrNotFound when the user has no profile.
func (r *Repository) GetUserAutomationProfile(ctx context.Context, userID string) (*models.UserAutomationProfile, error) {
	var p models.UserAutomationProfile
	var chatID *int64
	query := `
		SELECT user_id, subscription_tier, auto_apply_enabled, auto_apply_paused, consent,
		       daily_apply_limit, auto_apply_activated_at, telegram_chat_id
		FROM user_automation_profiles WHERE user_id = $1`

	err := r.db.QueryRow(ctx, query, userID).
		Scan(&p.UserID, &p.Tier, &p.AutomationEnabled, &p.Paused, &p.Consent, &p.DailyApplyLimit, &p.ActivatedAt, &chatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get automation profile: %w", err)
	}
	if chatID != nil {
		p.TelegramChatID = *chatID
	}
	return &p, nil
}

// UpsertUserAutomationProfile creates or replaces a user's automation settings.
func (r *Repository) UpsertUserAutomationProfile(ctx context.Context, p models.UserAutomationProfile) error {
	query := `
		INSERT INTO user_automation_profiles
			(user_id, subscription_tier, auto_apply_enabled, auto_apply_paused, consent, daily_apply_limit, auto_apply_activated_at, telegram_chat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, 0))
		ON CONFLICT (user_id) DO UPDATE SET
			subscription_tier = EXCLUDED.subscription_tier,
			auto_apply_enabled = EXCLUDED.auto_apply_enabled,
			auto_apply_paused = EXCLUDED.auto_apply_paused,
			consent = EXCLUDED.consent,
			daily_apply_limit = EXCLUDED.daily_apply_limit,
			auto_apply_activated_at = EXCLUDED.auto_apply_activated_at,
			telegram_chat_id = EXCLUDED.telegram_chat_id`

	_, err := r.db.Exec(ctx, query, p.UserID, p.Tier, p.AutomationEnabled, p.Paused, p.Consent, p.DailyApplyLimit, p.ActivatedAt, p.TelegramChatID)
	if err != nil {
		return fmt.Errorf("failed to upsert automation profile: %w", err)
	}
	return nil
}

// TelegramChatID resolves where a user's notifications go.
func (r *Repository) TelegramChatID(ctx context.Context, userID string) (int64, error) {
	var chatID *int64
	err := r.db.QueryRow(ctx, "SELECT telegram_chat_id FROM user_automation_profiles WHERE user_id = $1", userID).Scan(&chatID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && chatID == nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get telegram chat id: %w", err)
	}
	return *chatID, nil
}

// IsCompanyBlacklisted compares canonical company names.
func (r *Repository) IsCompanyBlacklisted(ctx context.Context, userID, companyCanonical string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM user_blacklisted_companies WHERE user_id = $1 AND company_canonical = $2)",
		userID, companyCanonical).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists, nil
}
