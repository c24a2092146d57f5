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

const indeedMaxSteps = 5

const (
	inApplyButton  = "#indeedApplyButton, button:has-text('Apply now')"
	inSubmit       = "button:has-text('Submit your application')"
	inContinue     = "button:has-text('Continue'), button:has-text('Review your application')"
	inFieldError   = "[data-testid='input-error'], .ia-Questions-error"
	inConfirmation = "h1:has-text('Your application has been submitted'), [data-testid='ia-PostApply']"
	inAnyControl   = inSubmit + ", " + inContinue
)

type IndeedFlow struct {
	Timeout time.Duration
}

func (f *IndeedFlow) Origin() string { return "https://www.indeed.com" }

func (f *IndeedFlow) Apply(ctx context.Context, page playwright.Page, job models.JobCandidate) (string, error) {
	log.Printf("💼 Indeed Easy Apply: %s @ %s", job.Title, job.Company)
	if err := gotoJob(page, job.ApplyURL, f.Timeout); err != nil {
		return "", err
	}
	if sessionExpired(page, "secure.indeed.com/auth", "/account/login") {
		return "", fmt.Errorf("%w: indeed session expired", credential.ErrUnusable)
	}

	button := page.Locator(inApplyButton).First()
	if err := waitVisible(button, f.Timeout); err != nil {
		return "", errors.New("indeed apply button not found")
	}
	if err := browser.RandomDelay(ctx, 600, 1500); err != nil {
		return "", err
	}
	if err := button.Click(); err != nil {
		return "", fmt.Errorf("click apply: %w", err)
	}

	for step := 1; step <= indeedMaxSteps; step++ {
		if err := waitVisible(page.Locator(inAnyControl).First(), f.Timeout); err != nil {
			return "", fmt.Errorf("step %d: no wizard control appeared", step)
		}
		if err := browser.RandomDelay(ctx, 400, 1200); err != nil {
			return "", err
		}

		if submit := page.Locator(inSubmit).First(); visible(submit) {
			if err := submit.Click(); err != nil {
				return "", fmt.Errorf("click submit: %w", err)
			}
			if err := waitVisible(page.Locator(inConfirmation).First(), f.Timeout); err != nil {
				return "", errors.New("no confirmation after submit")
			}
			return fmt.Sprintf("submitted in %d steps", step), nil
		}

		if visible(page.Locator(inFieldError).First()) {
			return "", fmt.Errorf("step %d: form requires input", step)
		}
		if err := page.Locator(inContinue).First().Click(); err != nil {
			return "", fmt.Errorf("step %d: continue: %w", step, err)
		}
	}
	return "", fmt.Errorf("wizard exceeded %d steps", indeedMaxSteps)
}
