package applier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go-openclaw-autoapply/internal/credential"
	"go-openclaw-autoapply/internal/dedup"
	"go-openclaw-autoapply/internal/executor"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/risk"
	"go-openclaw-autoapply/internal/runlog"
)

type OutcomeStatus string

const (
	OutcomeApplied OutcomeStatus = "applied"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome is the result of one candidate.
type Outcome struct {
	JobID         string          `json:"job_id"`
	Platform      models.Platform `json:"platform"`
	Status        OutcomeStatus   `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	EvidencePath  string          `json:"screenshot_path,omitempty"`
	ApplicationID string          `json:"app_id,omitempty"`

	riskBlocked bool
}

type RunResult struct {
	RunID    string           `json:"run_id"`
	UserID   string           `json:"user_id"`
	Status   models.RunStatus `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Applied  int              `json:"applied"`
	Failed   int              `json:"failed"`
	Skipped  int              `json:"skipped"`
	Outcomes []Outcome        `json:"applications"`
	Duration time.Duration    `json:"-"`
	// DurationMS mirrors Duration for JSON callers.
	DurationMS int64 `json:"duration_ms"`
}

func (r *RunResult) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case OutcomeApplied:
		r.Applied++
	case OutcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// attempt is the per-candidate error boundary: it always yields an Outcome.
func (a *Applier) attempt(ctx context.Context, runID string, p *models.UserAutomationProfile, job models.JobCandidate, reviewMode bool) (out Outcome) {
	out = Outcome{JobID: job.JobID, Platform: job.Platform()}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🚨 Run %s: candidate %s panicked: %v", runID, job.JobID, r)
			if out.Status == OutcomeApplied {
				// the external action is confirmed and already counted
				return
			}
			out.Status = OutcomeFailed
			out.Reason = ReasonCandidateError
			out.Detail = runlog.Truncate(fmt.Sprint(r), runlog.MaxReasonLen)
		}
	}()

	if err := a.process(ctx, runID, p, job, reviewMode, &out); err != nil {
		log.Printf("⚠️ Run %s: candidate %s: %v", runID, job.JobID, err)
		out.Status = OutcomeFailed
		out.Reason = ReasonCandidateError
		out.Detail = runlog.Truncate(err.Error(), runlog.MaxReasonLen)
	}
	return out
}

func skipped(out *Outcome, reason, detail string) error {
	out.Status = OutcomeSkipped
	out.Reason = reason
	out.Detail = runlog.Truncate(detail, runlog.MaxReasonLen)
	return nil
}

// process fills out for one candidate. A returned error is an unexpected
// fault that attempt turns into a failed outcome.
func (a *Applier) process(ctx context.Context, runID string, p *models.UserAutomationProfile, job models.JobCandidate, reviewMode bool, out *Outcome) error {
	userID := p.UserID
	platform := out.Platform

	// RISK_CHECK preconditions
	exists, err := a.deps.Records.ExistsApplicationRecord(ctx, userID, job.JobID)
	if err != nil {
		return fmt.Errorf("check existing application: %w", err)
	}
	if exists {
		return skipped(out, ReasonAlreadyApplied, "")
	}

	blacklisted, err := a.deps.Records.IsCompanyBlacklisted(ctx, userID, dedup.Canonical(job.CompanyKey()))
	if err != nil {
		return fmt.Errorf("check blacklist: %w", err)
	}
	if blacklisted {
		return skipped(out, ReasonCompanyBlacklisted, job.Company)
	}

	method := models.MethodFor(platform)
	if method == "" {
		return skipped(out, ReasonNoValidSession, fmt.Sprintf("no apply flow for %q", platform))
	}
	usable, err := a.deps.Credentials.HasUsable(ctx, userID, platform)
	if err != nil {
		log.Printf("⚠️ Run %s: session lookup for %s failed: %v", runID, platform, err)
	}
	if err != nil || !usable {
		return skipped(out, ReasonNoValidSession, "")
	}

	// RISK_CHECK
	assessment := a.deps.Risk.Assess(ctx, risk.ActorContext{UserID: userID}, models.ActionApply, risk.PlatformContext{Platform: platform})
	if !assessment.Proceed {
		out.riskBlocked = true
		return skipped(out, riskReasonPrefix+assessment.Level.String(), assessment.Reason)
	}
	if assessment.Delay > 0 {
		log.Printf("⏳ Run %s: waiting %s before %s (%s)", runID, assessment.Delay, job.JobID, assessment.Level)
		if err := a.opts.Sleep(ctx, assessment.Delay); err != nil {
			return fmt.Errorf("risk delay: %w", err)
		}
	}

	// EXECUTE
	actx := executor.ActionContext{RunID: runID, UserID: userID, Platform: platform, Method: method}
	open := func(ctx context.Context) (*credential.Session, error) {
		return a.deps.Credentials.Open(ctx, userID, platform)
	}
	result, err := a.deps.Executor.Execute(ctx, actx, job, open)
	if errors.Is(err, credential.ErrUnusable) {
		return skipped(out, ReasonNoValidSession, "")
	}
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if result.Status != executor.StatusApplied {
		out.Status = OutcomeFailed
		out.Reason = ReasonApplyFailed
		out.Detail = runlog.Truncate(result.Note, runlog.MaxReasonLen)
		out.EvidencePath = result.EvidencePath
		return nil
	}

	// RECORD
	a.record(ctx, runID, p, job, method, reviewMode, out)
	return nil
}

// record runs after a confirmed external action. The action already
// happened, so bookkeeping failures are logged and never undo the outcome.
func (a *Applier) record(ctx context.Context, runID string, p *models.UserAutomationProfile, job models.JobCandidate, method models.ApplyMethod, reviewMode bool, out *Outcome) {
	userID := p.UserID
	out.Status = OutcomeApplied

	autoStatus := models.AutoStatusSubmitted
	if reviewMode {
		autoStatus = models.AutoStatusQueued
	}
	rec := models.ApplicationRecord{
		ID:         a.opts.NewID(),
		UserID:     userID,
		JobID:      job.JobID,
		Status:     models.StatusApplied,
		AutoStatus: autoStatus,
		ReviewMode: reviewMode,
		Method:     method,
		Platform:   out.Platform,
		FitScore:   job.FitScore,
		AppliedAt:  a.opts.Now(),
	}
	afterSubmit(runID, "record", func() {
		if err := a.deps.Records.InsertApplicationRecord(ctx, rec); err != nil {
			log.Printf("❌ Run %s: application for job %s not recorded: %v", runID, job.JobID, err)
			out.Detail = runlog.Truncate("record not persisted: "+err.Error(), runlog.MaxReasonLen)
		} else {
			out.ApplicationID = rec.ID
		}
	})

	afterSubmit(runID, "user counters", func() {
		if err := a.deps.Quota.RecordUserAction(ctx, userID); err != nil {
			log.Printf("❌ Run %s: user counters not incremented: %v", runID, err)
		}
	})
	if a.rateLimited[out.Platform] {
		afterSubmit(runID, "platform counter", func() {
			if n, err := a.deps.Quota.RecordPlatformAction(ctx, out.Platform); err != nil {
				log.Printf("❌ Run %s: %s counter not incremented: %v", runID, out.Platform, err)
			} else {
				log.Printf("📊 %s actions today: %d", out.Platform, n)
			}
		})
	}

	if a.deps.Notifier != nil {
		afterSubmit(runID, "notification", func() {
			if err := a.deps.Notifier.NotifyApplied(ctx, userID, job, reviewMode); err != nil {
				log.Printf("⚠️ Run %s: notification for job %s dropped: %v", runID, job.JobID, err)
			}
		})
	}

	sig := models.LearningSignal{
		UserID:     userID,
		SignalType: "application_submitted",
		Context: map[string]any{
			"platform":    string(out.Platform),
			"fit_score":   job.FitScore,
			"method":      string(method),
			"review_mode": reviewMode,
		},
		CreatedAt: a.opts.Now(),
	}
	afterSubmit(runID, "learning signal", func() {
		if err := a.deps.Records.InsertLearningSignal(ctx, sig); err != nil {
			log.Printf("⚠️ Run %s: learning signal dropped: %v", runID, err)
		}
	})

	log.Printf("✅ Run %s: applied to %s at %s via %s (%s)", runID, job.JobID, job.Company, out.Platform, autoStatus)
}

// afterSubmit runs one bookkeeping step once the action is confirmed. A
// panic is logged and the remaining steps still run.
func afterSubmit(runID, step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🚨 Run %s: %s panicked after submit: %v", runID, step, r)
		}
	}()
	fn()
}
