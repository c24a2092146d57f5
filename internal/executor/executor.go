// Package executor performs one platform-facing action inside a disposable
// automation session.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/credential"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/runlog"
)

type Status string

const (
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
)

type ActionContext struct {
	RunID    string
	UserID   string
	Platform models.Platform
	Method   models.ApplyMethod
}

type Result struct {
	Status       Status
	EvidencePath string
	Note         string
}

// Session is one isolated automation context.
type Session interface {
	InjectCredential(ctx context.Context, cookies []browser.Cookie) error
	Submit(ctx context.Context, job models.JobCandidate) (string, error)
	CaptureEvidence(runID, jobID string) (string, error)
}

// Surface hands out isolated sessions and tears each one down when fn
// returns, whatever the outcome. Teardown failures are logged, not returned.
type Surface interface {
	WithIsolatedSession(ctx context.Context, platform models.Platform, fn func(Session) error) error
}

// CredentialOpener decrypts the credential at the point of use.
type CredentialOpener func(ctx context.Context) (*credential.Session, error)

type Executor struct {
	surface Surface
}

func New(surface Surface) *Executor {
	return &Executor{surface: surface}
}

// Execute opens the credential, injects it, destroys it, then submits.
// Only an unusable credential is returned as an error; every other problem
// becomes a failed Result with evidence when a page was available.
func (e *Executor) Execute(ctx context.Context, actx ActionContext, job models.JobCandidate, open CredentialOpener) (res Result, err error) {
	res = Result{Status: StatusFailed}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("🚨 Executor panicked on job %s: %v", job.JobID, r)
			res = Result{Status: StatusFailed, EvidencePath: res.EvidencePath, Note: fmt.Sprintf("executor panic: %v", r)}
			err = nil
		}
	}()

	sessErr := e.surface.WithIsolatedSession(ctx, actx.Platform, func(s Session) (stepErr error) {
		defer func() {
			if r := recover(); r != nil {
				stepErr = fmt.Errorf("panic during %s action: %v", actx.Platform, r)
			}
			if stepErr != nil && !errors.Is(stepErr, credential.ErrUnusable) {
				if path, cerr := s.CaptureEvidence(actx.RunID, job.JobID); cerr == nil {
					res.EvidencePath = path
				}
			}
		}()

		cred, err := open(ctx)
		if err != nil {
			return err
		}
		injectErr := s.InjectCredential(ctx, cred.Cookies())
		cred.Destroy()
		cred = nil
		if injectErr != nil {
			return fmt.Errorf("inject session: %w", injectErr)
		}

		note, err := s.Submit(ctx, job)
		if err != nil {
			return err
		}
		res.Status = StatusApplied
		res.Note = note
		return nil
	})

	if sessErr == nil {
		return res, nil
	}
	if errors.Is(sessErr, credential.ErrUnusable) {
		return Result{Status: StatusFailed, Note: "no_valid_session"}, sessErr
	}
	log.Printf("⚠️ %s action on job %s failed: %v", actx.Platform, job.JobID, sessErr)
	res.Status = StatusFailed
	res.Note = runlog.Truncate(sessErr.Error(), runlog.MaxReasonLen)
	return res, nil
}
