// Package app assembles the agents from configuration.
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"go-openclaw-autoapply/internal/ai"
	"go-openclaw-autoapply/internal/applier"
	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/credential"
	"go-openclaw-autoapply/internal/database"
	"go-openclaw-autoapply/internal/dedup"
	"go-openclaw-autoapply/internal/executor"
	"go-openclaw-autoapply/internal/filter"
	"go-openclaw-autoapply/internal/ledger"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/risk"
	"go-openclaw-autoapply/internal/runlog"
	"go-openclaw-autoapply/internal/scraper"
	"go-openclaw-autoapply/internal/scraper/linkedin"
	"go-openclaw-autoapply/internal/selector"
	"go-openclaw-autoapply/internal/telegram"
	"go-openclaw-autoapply/utils"
)

// Store is everything the agents persist. Both *database.Repository and
// *database.Memory satisfy it.
type Store interface {
	applier.ProfileStore
	applier.RecordStore
	ledger.Store
	selector.Catalog
	credential.Store
	risk.SignalStore
	runlog.Sink
	telegram.ChatResolver
	scraper.Catalog
	Seeder
}

// Seeder writes the rows the account and scoring services own. The CLI uses
// it to provision users without them.
type Seeder interface {
	UpsertUserAutomationProfile(ctx context.Context, p models.UserAutomationProfile) error
	SaveCredential(ctx context.Context, c models.EncryptedCredential) error
	SaveJobScore(ctx context.Context, userID, jobID string, fit float64, skills []string) error
}

var (
	_ Store = (*database.Repository)(nil)
	_ Store = (*database.Memory)(nil)
)

// App owns the shared collaborators. The browser is launched lazily since
// only the applier and the scraper need it.
type App struct {
	Config *config.Config
	Store  Store
	Ledger *ledger.Ledger
	Guard  *risk.Guard

	browser  *browser.PlaywrightManager
	bot      *telegram.Bot
	botReady bool
	closers  []func()
}

// Open connects the store and builds the risk guard. An empty DATABASE_URL
// runs against the in-memory store.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.DatabaseURL == "" {
		log.Println("⚠️ DATABASE_URL not set, using in-memory store")
		a.Store = database.NewMemory()
	} else {
		repo, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.Store = repo
		a.closers = append(a.closers, repo.Close)
		log.Println("✅ Database connected")
	}

	a.Ledger = ledger.New(a.Store, cfg.Location())

	guard, err := NewGuard(ctx, cfg, a.Ledger, a.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Guard = guard
	return a, nil
}

// NewGuard builds the risk guard with the configured advisory model, if any.
func NewGuard(ctx context.Context, cfg *config.Config, counters risk.CounterReader, signals risk.SignalStore) (*risk.Guard, error) {
	opts := []risk.Option{
		risk.WithThresholds(risk.Thresholds{
			KillSwitch: cfg.Risk.KillSwitch,
			Critical:   cfg.Risk.CriticalAt,
			High:       cfg.Risk.HighAt,
			Medium:     cfg.Risk.MediumAt,
		}),
		risk.WithMaxDelay(cfg.Risk.MaxDelay),
		risk.WithFreshSession(cfg.Risk.FreshSessionAge),
		risk.WithSignals(risk.NewStoreSignals(signals, nil)),
	}

	completer, err := ai.NewCompleter(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	if completer != nil {
		opts = append(opts, risk.WithAdvisor(ai.NewRiskAdvisor(completer, cfg.LLM.Timeout)))
		log.Printf("🤖 Risk advisor: %s (%s)", cfg.LLM.Provider, cfg.LLM.Model)
	} else {
		log.Println("⚠️ No LLM configured, risk guard runs on deterministic bands only")
	}
	return risk.NewGuard(counters, opts...), nil
}

// Applier builds the orchestrator with a live browser surface.
func (a *App) Applier(ctx context.Context) (*applier.Applier, error) {
	cfg := a.Config
	if cfg.SessionKey == "" {
		return nil, fmt.Errorf("%w: SESSION_KEY is required to run the applier", config.ErrInvalid)
	}
	vault, err := credential.NewVault(cfg.SessionKey)
	if err != nil {
		return nil, err
	}

	pm, err := a.Browser(ctx)
	if err != nil {
		return nil, err
	}
	surface := executor.NewPlaywrightSurface(pm, utils.NewEvidenceRecorder(cfg.Executor.EvidenceDir), cfg.Executor.ElementTimeout)

	deps := applier.Deps{
		Profiles:    a.Store,
		Records:     a.Store,
		Quota:       a.Ledger,
		Selector:    selector.New(a.Store, cfg.Applier.MinFitScore, cfg.Applier.OverFetchMultiplier),
		Risk:        a.Guard,
		Credentials: credential.NewProvider(a.Store, vault, nil),
		Executor:    executor.New(surface),
		RunLog:      runlog.New("applier", a.Store),
	}
	if bot := a.Notifier(); bot != nil {
		deps.Notifier = bot
	}

	return applier.New(deps, applier.Options{
		WindowStartHour:      cfg.Applier.WindowStartHour,
		WindowEndHour:        cfg.Applier.WindowEndHour,
		Location:             cfg.Location(),
		MonthlyCap:           cfg.Applier.MonthlyCap,
		DefaultDailyLimit:    cfg.Applier.DefaultDailyLimit,
		MaxAppliesPerRun:     cfg.Applier.MaxAppliesPerRun,
		ReviewPeriod:         cfg.Applier.ReviewPeriod,
		RateLimitedPlatforms: platforms(cfg.Applier.RateLimitedPlatforms),
	}), nil
}

// Scraper builds the scrape runner. LinkedIn is skipped when no cookie file
// is present.
func (a *App) Scraper(ctx context.Context) (*scraper.Runner, error) {
	cfg := a.Config
	var sources []scraper.Source

	cookiePath := filepath.Join(cfg.Scraper.CookiesPath, "cookies-linkedin.json")
	cookies, err := browser.LoadCookies(cookiePath)
	if err != nil {
		log.Printf("⚠️ LinkedIn cookies unavailable (%s): %v", cookiePath, err)
	} else {
		pm, err := a.Browser(ctx)
		if err != nil {
			return nil, err
		}
		location := ""
		if len(cfg.Scraper.Locations) > 0 {
			location = cfg.Scraper.Locations[0]
		}
		sources = append(sources, linkedin.NewLinkedInScraper(pm, linkedin.Options{
			Keywords: cfg.Scraper.Keywords,
			Location: location,
			MaxAge:   cfg.Scraper.MaxPostingAge,
			Cookies:  cookies,
		}))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no scrape sources configured")
	}

	matcher, err := filter.NewMatcher(cfg.Scraper.IncludeKeywords, cfg.Scraper.ExcludeKeywords)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	return scraper.NewRunner(sources, a.Store, a.Guard, a.Ledger,
		dedup.NewJobCache(cfg.Scraper.CachePath),
		runlog.New("scraper", a.Store),
		scraper.Options{
			RateLimitedPlatforms: platforms(cfg.Applier.RateLimitedPlatforms),
			MaxPostingAge:        cfg.Scraper.MaxPostingAge,
			Matcher:              matcher,
		}), nil
}

// Browser starts the shared Chromium instance on first use.
func (a *App) Browser(ctx context.Context) (*browser.PlaywrightManager, error) {
	if a.browser != nil {
		return a.browser, nil
	}
	pm, err := browser.NewPlaywright(ctx, browser.LaunchOptions{Headless: a.Config.Executor.Headless})
	if err != nil {
		return nil, err
	}
	a.browser = pm
	a.closers = append(a.closers, func() {
		if err := pm.Close(); err != nil {
			log.Printf("⚠️ Failed to close browser: %v", err)
		}
	})
	return pm, nil
}

// Notifier returns the Telegram bot, or nil when no token is configured.
func (a *App) Notifier() *telegram.Bot {
	if a.botReady {
		return a.bot
	}
	a.botReady = true
	if a.Config.TelegramToken == "" {
		return nil
	}
	bot, err := telegram.NewBot(a.Config.TelegramToken, a.Config.TelegramChatID, a.Store)
	if err != nil {
		log.Printf("⚠️ Telegram disabled: %v", err)
		return nil
	}
	a.bot = bot
	return bot
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func platforms(names []string) []models.Platform {
	out := make([]models.Platform, 0, len(names))
	for _, n := range names {
		out = append(out, models.Platform(n))
	}
	return out
}
