// Package applier runs one auto-apply pass for one user: gate checks, job
// selection, then a strictly sequential risk-check/execute/record loop.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/credential"
	"go-openclaw-autoapply/internal/database"
	"go-openclaw-autoapply/internal/executor"
	"go-openclaw-autoapply/internal/ledger"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/risk"
	"go-openclaw-autoapply/internal/runlog"
)

// Run-level skip reasons.
const (
	ReasonOutsideWindow  = "outside_apply_window"
	ReasonUserNotFound   = "user_not_found"
	ReasonFreeTier       = "free_tier"
	ReasonNotEnabled     = "auto_apply_not_enabled"
	ReasonPaused         = "auto_apply_paused"
	ReasonConsentMissing = "consent_missing"
	ReasonDailyCap       = "daily_cap_hit"
	ReasonMonthlyCap     = "monthly_cap_hit"
	ReasonNoEligibleJobs = "no_eligible_jobs"
	ReasonRiskBlocked    = "risk_blocked"
)

// Per-candidate reasons.
const (
	ReasonAlreadyApplied     = "already_applied"
	ReasonCompanyBlacklisted = "company_blacklisted"
	ReasonNoValidSession     = "no_valid_session"
	ReasonApplyFailed        = "apply_failed"
	ReasonCandidateError     = "candidate_error"
	riskReasonPrefix         = "anti_ban:"
)

type ProfileStore interface {
	GetUserAutomationProfile(ctx context.Context, userID string) (*models.UserAutomationProfile, error)
}

// RecordStore is the append-only application store plus the lookups the
// per-candidate checks need.
type RecordStore interface {
	ExistsApplicationRecord(ctx context.Context, userID, jobID string) (bool, error)
	InsertApplicationRecord(ctx context.Context, rec models.ApplicationRecord) error
	IsCompanyBlacklisted(ctx context.Context, userID, companyCanonical string) (bool, error)
	InsertLearningSignal(ctx context.Context, sig models.LearningSignal) error
}

type Quota interface {
	DailyCount(ctx context.Context, userID string) (int, error)
	MonthlyCount(ctx context.Context, userID string) (int, error)
	RecordUserAction(ctx context.Context, userID string) error
	RecordPlatformAction(ctx context.Context, platform models.Platform) (int, error)
}

type JobSelector interface {
	Select(ctx context.Context, userID string, remaining int) ([]models.JobCandidate, error)
}

type RiskGate interface {
	Assess(ctx context.Context, actor risk.ActorContext, action models.ActionType, pc risk.PlatformContext) risk.Assessment
}

type Credentials interface {
	HasUsable(ctx context.Context, userID string, platform models.Platform) (bool, error)
	Open(ctx context.Context, userID string, platform models.Platform) (*credential.Session, error)
}

type ActionExecutor interface {
	Execute(ctx context.Context, actx executor.ActionContext, job models.JobCandidate, open executor.CredentialOpener) (executor.Result, error)
}

// Notifier is best-effort; its errors are logged and dropped.
type Notifier interface {
	NotifyApplied(ctx context.Context, userID string, job models.JobCandidate, reviewMode bool) error
}

type Deps struct {
	Profiles    ProfileStore
	Records     RecordStore
	Quota       Quota
	Selector    JobSelector
	Risk        RiskGate
	Credentials Credentials
	Executor    ActionExecutor
	Notifier    Notifier
	RunLog      *runlog.Logger
}

type Options struct {
	WindowStartHour      int
	WindowEndHour        int
	Location             *time.Location
	MonthlyCap           int
	DefaultDailyLimit    int
	MaxAppliesPerRun     int
	ReviewPeriod         time.Duration
	RateLimitedPlatforms []models.Platform

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	NewID func() string
}

type Applier struct {
	deps        Deps
	opts        Options
	rateLimited map[models.Platform]bool
}

func New(deps Deps, opts Options) *Applier {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = browser.Sleep
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if deps.RunLog == nil {
		deps.RunLog = runlog.New("applier", nil)
	}

	rl := make(map[models.Platform]bool, len(opts.RateLimitedPlatforms))
	for _, p := range opts.RateLimitedPlatforms {
		rl[p] = true
	}
	return &Applier{deps: deps, opts: opts, rateLimited: rl}
}

// InWindow reports whether hour falls in [start, end), wrapping past
// midnight when start > end. start == end means always open.
func InWindow(hour, start, end int) bool {
	switch {
	case start == end:
		return true
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

// Run performs one auto-apply pass. maxApplies <= 0 uses the configured
// per-run maximum. The returned error is non-nil only when the run failed on
// an unexpected error; the result is always populated.
func (a *Applier) Run(ctx context.Context, userID string, maxApplies int) (res *RunResult, err error) {
	if maxApplies <= 0 {
		maxApplies = a.opts.MaxAppliesPerRun
	}
	run := a.deps.RunLog.Start(ctx, a.opts.NewID(), userID)
	res = &RunResult{RunID: run.ID(), UserID: userID, Outcomes: []Outcome{}}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("applier panic: %v", r)
			run.Fail(ctx, res.Applied, err)
			res.Status, res.Reason = models.RunFailed, runlog.Truncate(err.Error(), runlog.MaxReasonLen)
		}
		res.Duration = run.Elapsed()
		res.DurationMS = res.Duration.Milliseconds()
	}()

	fail := func(stage string, cause error) (*RunResult, error) {
		err := fmt.Errorf("%s: %w", stage, cause)
		run.Fail(ctx, res.Applied, err)
		res.Status, res.Reason = models.RunFailed, runlog.Truncate(err.Error(), runlog.MaxReasonLen)
		return res, err
	}
	skip := func(reason, detail string) (*RunResult, error) {
		msg := reason
		if detail != "" {
			msg = reason + ":" + detail
		}
		run.Skip(ctx, msg)
		res.Status, res.Reason = models.RunSkipped, reason
		return res, nil
	}

	// ── GATE_CHECK ──────────────────────────────────────────────
	now := a.opts.Now()
	if !InWindow(now.In(a.opts.Location).Hour(), a.opts.WindowStartHour, a.opts.WindowEndHour) {
		return skip(ReasonOutsideWindow, "")
	}

	profile, err := a.deps.Profiles.GetUserAutomationProfile(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return skip(ReasonUserNotFound, "")
	}
	if err != nil {
		return fail("load profile", err)
	}

	if !profile.AutomationPermitted() {
		return skip(refusalReason(profile), "")
	}

	budget, reason, detail, err := a.remaining(ctx, userID, profile, maxApplies)
	if err != nil {
		return fail("read quota", err)
	}
	if reason != "" {
		return skip(reason, detail)
	}

	// ── JOB_SELECTION ───────────────────────────────────────────
	jobs, err := a.deps.Selector.Select(ctx, userID, budget)
	if err != nil {
		return fail("select jobs", err)
	}
	if len(jobs) == 0 {
		return skip(ReasonNoEligibleJobs, "")
	}

	reviewMode := profile.InReviewMode(now, a.opts.ReviewPeriod)
	log.Printf("🎯 Run %s: %d candidates for user %s (budget=%d, review=%v)", run.ID(), len(jobs), userID, budget, reviewMode)

	// ── per-candidate loop, strictly sequential ─────────────────
	riskBlocked := 0
	for _, job := range jobs {
		if res.Applied >= budget {
			break
		}
		if err := ctx.Err(); err != nil {
			return fail("run interrupted", err)
		}

		left, reason, _, err := a.remaining(ctx, userID, profile, maxApplies-res.Applied)
		if err != nil {
			log.Printf("⚠️ Run %s: quota re-read failed, stopping: %v", run.ID(), err)
			break
		}
		if reason != "" || left <= 0 {
			log.Printf("🛑 Run %s: quota exhausted mid-run (%s)", run.ID(), reason)
			break
		}

		out := a.attempt(ctx, run.ID(), profile, job, reviewMode)
		res.add(out)
		if out.riskBlocked {
			riskBlocked++
		}
	}

	if res.Applied == 0 && res.Failed == 0 && riskBlocked > 0 {
		return skip(ReasonRiskBlocked, fmt.Sprintf("%d candidates blocked", riskBlocked))
	}

	res.Status = models.RunCompleted
	run.End(ctx, res.Applied, fmt.Sprintf("applied=%d failed=%d skipped=%d", res.Applied, res.Failed, res.Skipped))
	return res, nil
}

// remaining re-reads the user's counters. A non-empty reason means a cap is
// already reached.
func (a *Applier) remaining(ctx context.Context, userID string, p *models.UserAutomationProfile, runMax int) (int, string, string, error) {
	daily, err := a.deps.Quota.DailyCount(ctx, userID)
	if err != nil {
		return 0, "", "", err
	}
	limit := p.DailyLimit(a.opts.DefaultDailyLimit)
	if daily >= limit {
		return 0, ReasonDailyCap, fmt.Sprintf("%d/%d", daily, limit), nil
	}

	monthly, err := a.deps.Quota.MonthlyCount(ctx, userID)
	if err != nil {
		return 0, "", "", err
	}
	if a.opts.MonthlyCap > 0 && monthly >= a.opts.MonthlyCap {
		return 0, ReasonMonthlyCap, fmt.Sprintf("%d/%d", monthly, a.opts.MonthlyCap), nil
	}

	monthlyLeft := limit
	if a.opts.MonthlyCap > 0 {
		monthlyLeft = a.opts.MonthlyCap - monthly
	}
	return ledger.Remaining{Daily: limit - daily, Monthly: monthlyLeft}.Min(runMax), "", "", nil
}

// refusalReason names the first permission a profile is missing.
func refusalReason(p *models.UserAutomationProfile) string {
	switch {
	case p.Tier != models.TierPaid:
		return ReasonFreeTier
	case !p.AutomationEnabled:
		return ReasonNotEnabled
	case p.Paused:
		return ReasonPaused
	default:
		return ReasonConsentMissing
	}
}
