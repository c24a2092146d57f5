package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"go-openclaw-autoapply/internal/dedup"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/selector"
)

// ---------------- JOB OPERATIONS ----------------

// UpsertJob inserts a new posting or, when the fingerprint already exists,
// only refreshes last_seen_at. It reports whether a row was inserted.
func (r *Repository) UpsertJob(ctx context.Context, job *models.Job) (bool, error) {
	query := `
		INSERT INTO jobs (fingerprint, source, title, company, company_canonical, location, url, description_raw, posted_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fingerprint)
		DO UPDATE SET last_seen_at = NOW()
		RETURNING id::text, created_at, last_seen_at, (xmax = 0) AS inserted`

	var inserted bool
	err := r.db.QueryRow(ctx, query,
		job.Fingerprint, job.Source, job.Title, job.Company, dedup.Canonical(job.Company),
		job.Location, job.URL, job.DescriptionRaw, job.PostedDate).
		Scan(&job.ID, &job.CreatedAt, &job.LastSeenAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert job: %w", err)
	}
	return inserted, nil
}

// SaveJobScore records a scorer's fit score for a user.
func (r *Repository) SaveJobScore(ctx context.Context, userID, jobID string, fit float64, skills []string) error {
	if skills == nil {
		skills = []string{}
	}
	query := `
		INSERT INTO job_scores (user_id, job_id, fit_score, required_skills)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, job_id) DO UPDATE SET fit_score = EXCLUDED.fit_score, required_skills = EXCLUDED.required_skills`
	if _, err := r.db.Exec(ctx, query, userID, jobID, fit, skills); err != nil {
		return fmt.Errorf("failed to save job score: %w", err)
	}
	return nil
}

// SelectEligibleJobs returns the user's scored jobs ordered by fit, then recency.
func (r *Repository) SelectEligibleJobs(ctx context.Context, q selector.JobQuery) ([]models.JobCandidate, error) {
	query := `
		SELECT j.id::text, j.title, j.company, j.company_canonical, j.location, j.source, j.url,
		       s.required_skills, s.fit_score::float8, j.created_at
		FROM job_scores s
		JOIN jobs j ON j.id = s.job_id
		WHERE s.user_id = $1
		  AND s.fit_score >= $2
		  AND (NOT $3::boolean OR NOT EXISTS (
		        SELECT 1 FROM applications a WHERE a.user_id = s.user_id AND a.job_id = j.id))
		  AND (NOT $4::boolean OR NOT EXISTS (
		        SELECT 1 FROM user_blacklisted_companies b
		        WHERE b.user_id = s.user_id AND b.company_canonical = j.company_canonical))
		ORDER BY s.fit_score DESC, j.created_at DESC, j.id
		LIMIT $5`

	rows, err := r.db.Query(ctx, query, q.UserID, q.MinFitScore, q.ExcludeApplied, q.ExcludeBlacklisted, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible jobs: %w", err)
	}

	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.JobCandidate, error) {
		var j models.JobCandidate
		var posted time.Time
		err := row.Scan(&j.JobID, &j.Title, &j.Company, &j.CompanyCanonical, &j.Location, &j.Source, &j.ApplyURL,
			&j.RequiredSkills, &j.FitScore, &posted)
		j.PostedAt = posted
		return j, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan eligible jobs: %w", err)
	}
	return jobs, nil
}
