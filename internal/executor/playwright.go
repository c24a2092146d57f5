package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/credential"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/utils"
)

var errUnsupportedPlatform = errors.New("unsupported platform")

// Flow drives one platform's Easy Apply wizard on an already authenticated page.
type Flow interface {
	Origin() string
	Apply(ctx context.Context, page playwright.Page, job models.JobCandidate) (string, error)
}

type PlaywrightSurface struct {
	manager  *browser.PlaywrightManager
	evidence *utils.EvidenceRecorder
	timeout  time.Duration
	flows    map[models.Platform]Flow
}

func NewPlaywrightSurface(manager *browser.PlaywrightManager, evidence *utils.EvidenceRecorder, timeout time.Duration) *PlaywrightSurface {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PlaywrightSurface{
		manager:  manager,
		evidence: evidence,
		timeout:  timeout,
		flows: map[models.Platform]Flow{
			models.PlatformLinkedIn: &LinkedInFlow{Timeout: timeout},
			models.PlatformIndeed:   &IndeedFlow{Timeout: timeout},
		},
	}
}

// WithIsolatedSession opens a fresh browser context that shares nothing with
// other attempts and always closes it.
func (p *PlaywrightSurface) WithIsolatedSession(ctx context.Context, platform models.Platform, fn func(Session) error) error {
	flow, ok := p.flows[platform]
	if !ok {
		return fmt.Errorf("%w: %s", errUnsupportedPlatform, platform)
	}

	bctx, err := p.manager.NewContext()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := bctx.Close(); cerr != nil {
			log.Printf("⚠️ Failed to close browser context: %v", cerr)
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(p.timeout.Milliseconds()))

	return fn(&pwSession{bctx: bctx, page: page, flow: flow, evidence: p.evidence})
}

type pwSession struct {
	bctx     playwright.BrowserContext
	page     playwright.Page
	flow     Flow
	evidence *utils.EvidenceRecorder
}

func (s *pwSession) InjectCredential(ctx context.Context, cookies []browser.Cookie) error {
	if len(cookies) == 0 {
		return fmt.Errorf("%w: empty cookie set", credential.ErrUnusable)
	}
	return s.bctx.AddCookies(browser.ToOptional(cookies, s.flow.Origin()))
}

func (s *pwSession) Submit(ctx context.Context, job models.JobCandidate) (string, error) {
	return s.flow.Apply(ctx, s.page, job)
}

func (s *pwSession) CaptureEvidence(runID, jobID string) (string, error) {
	if s.evidence == nil {
		return "", errors.New("evidence recorder not configured")
	}
	return s.evidence.Capture(s.page, runID, jobID)
}

// waitVisible blocks until loc is visible or timeout elapses.
func waitVisible(loc playwright.Locator, timeout time.Duration) error {
	return loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func visible(loc playwright.Locator) bool {
	ok, err := loc.IsVisible()
	return err == nil && ok
}

// sessionExpired reports whether the platform bounced us to a login wall.
func sessionExpired(page playwright.Page, markers ...string) bool {
	url := strings.ToLower(page.URL())
	for _, m := range markers {
		if strings.Contains(url, m) {
			return true
		}
	}
	return false
}

func gotoJob(page playwright.Page, url string, timeout time.Duration) error {
	if url == "" {
		return errors.New("job has no apply url")
	}
	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(3 * timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to load job page: %w", err)
	}
	return nil
}
