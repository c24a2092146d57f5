package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/playwright-community/playwright-go"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

type PlaywrightManager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

type LaunchOptions struct {
	Headless bool
}

// NewPlaywright starts the driver and a Chromium instance.
func NewPlaywright(ctx context.Context, opts LaunchOptions) (*PlaywrightManager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch chromium: %w", err)
	}

	return &PlaywrightManager{pw: pw, browser: browser}, nil
}

// NewContext opens a fresh isolated context with a randomised fingerprint.
// Cookies are injected separately so callers control when they are released.
func (pm *PlaywrightManager) NewContext() (playwright.BrowserContext, error) {
	width := 1280 + rand.Intn(161)
	height := 720 + rand.Intn(181)

	bctx, err := pm.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(userAgents[rand.Intn(len(userAgents))]),
		Viewport: &playwright.Size{
			Width:  width,
			Height: height,
		},
		Locale:     playwright.String("en-IN"),
		TimezoneId: playwright.String("Asia/Kolkata"),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}

	// hide the webdriver flag before any page script runs
	if err := bctx.AddInitScript(playwright.Script{
		Content: playwright.String("Object.defineProperty(navigator, 'webdriver', {get: () => undefined})"),
	}); err != nil {
		log.Printf("⚠️ Failed to add stealth init script: %v", err)
	}
	return bctx, nil
}

func (pm *PlaywrightManager) Close() error {
	var errs []error
	if pm.browser != nil {
		if err := pm.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if pm.pw != nil {
		if err := pm.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}
