package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"go-openclaw-autoapply/internal/models"
)

// ---------------- COUNTER OPERATIONS ----------------
// Every increment is a single upsert so concurrent runs never lose updates.

func (r *Repository) userCount(ctx context.Context, userID, periodType, key string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		"SELECT count FROM user_action_counters WHERE user_id = $1 AND period_type = $2 AND period_key = $3",
		userID, periodType, key).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s counter: %w", periodType, err)
	}
	return n, nil
}

func (r *Repository) UserDailyCount(ctx context.Context, userID, day string) (int, error) {
	return r.userCount(ctx, userID, "day", day)
}

func (r *Repository) UserMonthlyCount(ctx context.Context, userID, month string) (int, error) {
	return r.userCount(ctx, userID, "month", month)
}

func (r *Repository) IncrementUserCounters(ctx context.Context, userID, day, month string) error {
	query := `
		INSERT INTO user_action_counters (user_id, period_type, period_key, count)
		VALUES ($1, 'day', $2, 1), ($1, 'month', $3, 1)
		ON CONFLICT (user_id, period_type, period_key)
		DO UPDATE SET count = user_action_counters.count + 1`

	if _, err := r.db.Exec(ctx, query, userID, day, month); err != nil {
		return fmt.Errorf("failed to increment user counters: %w", err)
	}
	return nil
}

func (r *Repository) PlatformCount(ctx context.Context, platform models.Platform, day string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		"SELECT count FROM platform_action_counters WHERE platform = $1 AND day = $2",
		string(platform), day).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read platform counter: %w", err)
	}
	return n, nil
}

func (r *Repository) IncrementPlatformCounter(ctx context.Context, platform models.Platform, day string) (int, error) {
	query := `
		INSERT INTO platform_action_counters (platform, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (platform, day)
		DO UPDATE SET count = platform_action_counters.count + 1
		RETURNING count`

	var n int
	if err := r.db.QueryRow(ctx, query, string(platform), day).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to increment platform counter: %w", err)
	}
	return n, nil
}
