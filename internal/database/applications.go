package database

import (
	"context"
	"fmt"
	"time"

	"go-openclaw-autoapply/internal/models"
)

// ---------------- APPLICATION OPERATIONS ----------------

func (r *Repository) ExistsApplicationRecord(ctx context.Context, userID, jobID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM applications WHERE user_id = $1 AND job_id = $2::uuid)",
		userID, jobID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check application: %w", err)
	}
	return exists, nil
}

// InsertApplicationRecord is append-only; a second insert for the same
// (user, job) returns ErrDuplicate.
func (r *Repository) InsertApplicationRecord(ctx context.Context, rec models.ApplicationRecord) error {
	query := `
		INSERT INTO applications
			(id, user_id, job_id, status, auto_status, review_mode, apply_method, platform, fit_score_at_apply, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.UserID, rec.JobID, string(rec.Status), string(rec.AutoStatus), rec.ReviewMode,
		string(rec.Method), string(rec.Platform), rec.FitScore, rec.AppliedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("application %s/%s: %w", rec.UserID, rec.JobID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// CountApplicationsSince feeds the risk gate's velocity signal.
func (r *Repository) CountApplicationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM applications WHERE user_id = $1 AND applied_at >= $2",
		userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}
	return n, nil
}

func (r *Repository) InsertLearningSignal(ctx context.Context, sig models.LearningSignal) error {
	_, err := r.db.Exec(ctx,
		"INSERT INTO learning_signals (user_id, signal_type, context, created_at) VALUES ($1, $2, $3, $4)",
		sig.UserID, sig.SignalType, sig.Context, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert learning signal: %w", err)
	}
	return nil
}

func (r *Repository) InsertRunLog(ctx context.Context, e models.RunLogEntry) error {
	query := `
		INSERT INTO agent_run_logs (run_id, agent, user_id, status, processed, duration_ms, message, at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query, e.RunID, e.Agent, e.UserID, string(e.Status), e.Processed, e.DurationMS, e.Message, e.At)
	if err != nil {
		return fmt.Errorf("failed to insert run log: %w", err)
	}
	return nil
}
