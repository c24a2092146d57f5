package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/playwright-community/playwright-go"

	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/credential"
	"go-openclaw-autoapply/internal/models"
)

const linkedInMaxSteps = 8

const (
	liEasyApplyButton = "button.jobs-apply-button:has-text('Easy Apply')"
	liModal           = "div.jobs-easy-apply-modal, div[role='dialog']"
	liSubmit          = "button[aria-label='Submit application']"
	liReview          = "button[aria-label='Review your application']"
	liNext            = "button[aria-label='Continue to next step']"
	liFieldError      = ".artdeco-inline-feedback--error"
	liConfirmation    = "h3:has-text('Application sent'), h2:has-text('Application sent'), .artdeco-inline-feedback--success"
	liAnyControl      = liSubmit + ", " + liReview + ", " + liNext
)

type LinkedInFlow struct {
	Timeout time.Duration
}

func (f *LinkedInFlow) Origin() string { return "https://www.linkedin.com" }

func (f *LinkedInFlow) Apply(ctx context.Context, page playwright.Page, job models.JobCandidate) (string, error) {
	log.Printf("💼 LinkedIn Easy Apply: %s @ %s", job.Title, job.Company)
	if err := gotoJob(page, job.ApplyURL, f.Timeout); err != nil {
		return "", err
	}
	if sessionExpired(page, "/login", "/authwall", "/checkpoint", "/uas/") {
		return "", fmt.Errorf("%w: linkedin session expired", credential.ErrUnusable)
	}

	button := page.Locator(liEasyApplyButton).First()
	if err := waitVisible(button, f.Timeout); err != nil {
		return "", errors.New("easy apply button not found")
	}
	if err := browser.RandomDelay(ctx, 600, 1500); err != nil {
		return "", err
	}
	if err := button.Click(); err != nil {
		return "", fmt.Errorf("click easy apply: %w", err)
	}

	modal := page.Locator(liModal).First()
	if err := waitVisible(modal, f.Timeout); err != nil {
		return "", errors.New("easy apply modal did not open")
	}

	for step := 1; step <= linkedInMaxSteps; step++ {
		if err := waitVisible(modal.Locator(liAnyControl).First(), f.Timeout); err != nil {
			return "", fmt.Errorf("step %d: no wizard control appeared", step)
		}
		if err := browser.RandomDelay(ctx, 400, 1200); err != nil {
			return "", err
		}

		if submit := modal.Locator(liSubmit).First(); visible(submit) {
			if err := submit.Click(); err != nil {
				return "", fmt.Errorf("click submit: %w", err)
			}
			if err := waitVisible(page.Locator(liConfirmation).First(), f.Timeout); err != nil {
				return "", errors.New("no confirmation after submit")
			}
			return fmt.Sprintf("submitted in %d steps", step), nil
		}

		if visible(modal.Locator(liFieldError).First()) {
			return "", fmt.Errorf("step %d: form requires input", step)
		}

		advance := modal.Locator(liReview).First()
		if !visible(advance) {
			advance = modal.Locator(liNext).First()
		}
		if err := advance.Click(); err != nil {
			return "", fmt.Errorf("step %d: advance: %w", step, err)
		}
	}
	return "", fmt.Errorf("wizard exceeded %d steps", linkedInMaxSteps)
}
