package models

import (
	"strings"
	"time"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformIndeed   Platform = "indeed"
)

type ActionType string

const (
	ActionApply  ActionType = "apply"
	ActionScrape ActionType = "scrape"
)

type ApplyMethod string

const (
	MethodLinkedInEasy ApplyMethod = "linkedin_easy"
	MethodIndeedEasy   ApplyMethod = "indeed_easy"
)

// MethodFor returns the Easy Apply flow used on a platform, or "" if the
// platform has none.
func MethodFor(p Platform) ApplyMethod {
	switch p {
	case PlatformLinkedIn:
		return MethodLinkedInEasy
	case PlatformIndeed:
		return MethodIndeedEasy
	}
	return ""
}

type ApplicationStatus string

const (
	StatusApplied ApplicationStatus = "applied"
)

// AutoStatus is the downstream-facing label of an automated application.
type AutoStatus string

const (
	AutoStatusQueued    AutoStatus = "queued"
	AutoStatusSubmitted AutoStatus = "submitted"
)

const DefaultDailyApplyLimit = 10

// UserAutomationProfile is owned by the account/billing services and read-only here.
type UserAutomationProfile struct {
	UserID            string     `json:"user_id"`
	Tier              Tier       `json:"subscription_tier"`
	AutomationEnabled bool       `json:"auto_apply_enabled"`
	Paused            bool       `json:"auto_apply_paused"`
	Consent           bool       `json:"consent"`
	DailyApplyLimit   int        `json:"daily_apply_limit"`
	ActivatedAt       *time.Time `json:"auto_apply_activated_at,omitempty"`
	TelegramChatID    int64      `json:"telegram_chat_id,omitempty"`
}

// DailyLimit falls back to fallback (or DefaultDailyApplyLimit) when unset.
func (p UserAutomationProfile) DailyLimit(fallback int) int {
	if p.DailyApplyLimit > 0 {
		return p.DailyApplyLimit
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultDailyApplyLimit
}

// AutomationPermitted holds only when tier=paid, enabled, not paused and consented.
func (p UserAutomationProfile) AutomationPermitted() bool {
	return p.Tier == TierPaid && p.AutomationEnabled && !p.Paused && p.Consent
}

// InReviewMode is true for period after activation. A profile that was never
// activated is treated as in review.
func (p UserAutomationProfile) InReviewMode(now time.Time, period time.Duration) bool {
	if p.ActivatedAt == nil {
		return true
	}
	return now.Sub(*p.ActivatedAt) < period
}

// ApplicationRecord is append-only: one row per (user, job), never updated here.
type ApplicationRecord struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	JobID      string            `json:"job_id"`
	Status     ApplicationStatus `json:"status"`
	AutoStatus AutoStatus        `json:"auto_status"`
	ReviewMode bool              `json:"review_mode"`
	Method     ApplyMethod       `json:"apply_method"`
	Platform   Platform          `json:"platform"`
	FitScore   float64           `json:"fit_score_at_apply"`
	AppliedAt  time.Time         `json:"applied_at"`
}

// JobCandidate is the read-only projection of a scored catalog job.
type JobCandidate struct {
	JobID            string    `json:"job_id"`
	Title            string    `json:"title"`
	Company          string    `json:"company"`
	CompanyCanonical string    `json:"company_canonical,omitempty"`
	Location         string    `json:"location,omitempty"`
	Source           string    `json:"source"`
	ApplyURL         string    `json:"apply_url"`
	RequiredSkills   []string  `json:"required_skills,omitempty"`
	FitScore         float64   `json:"fit_score"`
	PostedAt         time.Time `json:"posted_at"`
}

// Platform derives the apply platform from the source name or the apply URL.
func (j JobCandidate) Platform() Platform {
	source := strings.ToLower(j.Source)
	url := strings.ToLower(j.ApplyURL)
	switch {
	case strings.Contains(source, "linkedin") || strings.Contains(url, "linkedin.com"):
		return PlatformLinkedIn
	case strings.Contains(source, "indeed") || strings.Contains(url, "indeed."):
		return PlatformIndeed
	}
	return Platform(source)
}

// CompanyKey is the name used for blacklist comparison.
func (j JobCandidate) CompanyKey() string {
	if j.CompanyCanonical != "" {
		return j.CompanyCanonical
	}
	return j.Company
}

// Job is a catalog row produced by the scraper, unique by fingerprint.
type Job struct {
	ID             string    `json:"id"`
	Fingerprint    string    `json:"fingerprint"`
	Source         string    `json:"source"`
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	URL            string    `json:"url"`
	DescriptionRaw string    `json:"description_raw"`
	PostedDate     string    `json:"posted_date,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// LearningSignal feeds the scoring collaborators.
type LearningSignal struct {
	UserID     string         `json:"user_id"`
	SignalType string         `json:"signal_type"`
	Context    map[string]any `json:"context"`
	CreatedAt  time.Time      `json:"created_at"`
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunSkipped   RunStatus = "skipped"
	RunFailed    RunStatus = "failed"
)

// RunLogEntry is one row of the structured agent run log.
type RunLogEntry struct {
	RunID      string    `json:"run_id"`
	Agent      string    `json:"agent"`
	UserID     string    `json:"user_id,omitempty"`
	Status     RunStatus `json:"status"`
	Processed  int       `json:"processed"`
	DurationMS int64     `json:"duration_ms"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// EncryptedCredential is a platform session at rest. Blob is opaque here and
// must never be logged.
type EncryptedCredential struct {
	UserID    string     `json:"user_id"`
	Platform  Platform   `json:"platform"`
	Blob      string     `json:"-"`
	Valid     bool       `json:"is_valid"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Usable reports whether the credential is flagged valid and unexpired at now.
func (c EncryptedCredential) Usable(now time.Time) bool {
	if !c.Valid || c.Blob == "" {
		return false
	}
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}
