package scraper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/filter"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/risk"
	"go-openclaw-autoapply/internal/runlog"
)

const failureNoteLen = 100

// Catalog upserts by fingerprint, reporting whether the row is new.
type Catalog interface {
	UpsertJob(ctx context.Context, job *models.Job) (bool, error)
}

type RiskGate interface {
	Assess(ctx context.Context, actor risk.ActorContext, action models.ActionType, pc risk.PlatformContext) risk.Assessment
}

type PlatformRecorder interface {
	RecordPlatformAction(ctx context.Context, platform models.Platform) (int, error)
}

// SeenCache short-circuits catalog writes for recently seen fingerprints.
type SeenCache interface {
	IsSeen(fingerprint string) bool
	Add(fingerprints []string)
}

type Options struct {
	RateLimitedPlatforms []models.Platform
	MaxPostingAge        time.Duration
	// Matcher drops irrelevant postings before they reach the catalog.
	Matcher *filter.Matcher
	// Parallel bounds concurrently running sources; 0 runs all at once.
	Parallel int
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
}

type Runner struct {
	sources     []Source
	catalog     Catalog
	guard       RiskGate
	quota       PlatformRecorder
	cache       SeenCache
	runs        *runlog.Logger
	opts        Options
	rateLimited map[models.Platform]bool
}

func NewRunner(sources []Source, catalog Catalog, guard RiskGate, quota PlatformRecorder, cache SeenCache, runs *runlog.Logger, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = browser.Sleep
	}
	if opts.MaxPostingAge <= 0 {
		opts.MaxPostingAge = 60 * 24 * time.Hour
	}
	if runs == nil {
		runs = runlog.New("scraper", nil)
	}
	rl := make(map[models.Platform]bool, len(opts.RateLimitedPlatforms))
	for _, p := range opts.RateLimitedPlatforms {
		rl[p] = true
	}
	return &Runner{
		sources:     sources,
		catalog:     catalog,
		guard:       guard,
		quota:       quota,
		cache:       cache,
		runs:        runs,
		opts:        opts,
		rateLimited: rl,
	}
}

type Result struct {
	RunID          string         `json:"run_id"`
	Status         string         `json:"status"`
	Scraped        int            `json:"total_scraped"`
	Inserted       int            `json:"jobs_inserted"`
	Updated        int            `json:"jobs_updated"`
	Deduped        int            `json:"deduped"`
	Stale          int            `json:"stale"`
	Irrelevant     int            `json:"irrelevant"`
	SourceCounts   map[string]int `json:"source_counts"`
	SkippedSources []string       `json:"skipped_sources,omitempty"`
	Failures       []string       `json:"source_failures,omitempty"`
}

// Run scrapes every source concurrently and writes the merged result to the
// catalog. A failing source is recorded and never stops the others.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	run := r.runs.Start(ctx, uuid.NewString(), "")
	res := &Result{RunID: run.ID(), SourceCounts: make(map[string]int)}

	var (
		mu      sync.Mutex
		scraped []Job
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.opts.Parallel > 0 {
		g.SetLimit(r.opts.Parallel)
	}
	for _, src := range r.sources {
		g.Go(func() error {
			jobs, skipReason, err := r.scrapeSource(gctx, src)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case skipReason != "":
				res.SkippedSources = append(res.SkippedSources, fmt.Sprintf("%s: %s", src.Name(), skipReason))
			case err != nil:
				res.Failures = append(res.Failures, runlog.Truncate(fmt.Sprintf("%s: %v", src.Name(), err), failureNoteLen))
			}
			res.SourceCounts[src.Name()] = len(jobs)
			scraped = append(scraped, jobs...)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		run.Fail(ctx, 0, err)
		res.Status = string(models.RunFailed)
		return res, err
	}

	res.Scraped = len(scraped)
	r.merge(ctx, scraped, res)

	res.Status = "completed"
	if len(res.Failures) > 0 {
		res.Status = "partial"
	}
	run.End(ctx, res.Inserted+res.Updated, fmt.Sprintf("scraped=%d new=%d refreshed=%d deduped=%d stale=%d irrelevant=%d",
		res.Scraped, res.Inserted, res.Updated, res.Deduped, res.Stale, res.Irrelevant))
	return res, nil
}

// scrapeSource consults the risk guard for rate-limited platforms. A
// non-empty skip reason means the source was not run.
func (r *Runner) scrapeSource(ctx context.Context, src Source) ([]Job, string, error) {
	platform := src.Platform()
	gated := platform != "" && r.rateLimited[platform]

	if gated && r.guard != nil {
		a := r.guard.Assess(ctx, risk.ActorContext{}, models.ActionScrape, risk.PlatformContext{Platform: platform})
		if !a.Proceed {
			log.Printf("🛑 %s skipped by anti-ban guard (%s): %s", src.Name(), a.Level, a.Reason)
			return nil, fmt.Sprintf("anti_ban:%s", a.Level), nil
		}
		if err := r.opts.Sleep(ctx, a.Delay); err != nil {
			return nil, "", err
		}
	}

	log.Printf("🔎 Scraping %s...", src.Name())
	jobs, err := src.Scrape(ctx)
	if err != nil {
		log.Printf("❌ %s scrape failed after %d jobs: %v", src.Name(), len(jobs), err)
	} else {
		log.Printf("📦 %s returned %d jobs", src.Name(), len(jobs))
	}

	if gated && r.quota != nil {
		if _, qerr := r.quota.RecordPlatformAction(ctx, platform); qerr != nil {
			log.Printf("⚠️ Failed to record %s scrape action: %v", platform, qerr)
		}
	}
	return jobs, "", err
}

// merge filters stale and irrelevant postings, drops duplicates and upserts
// the rest.
func (r *Runner) merge(ctx context.Context, jobs []Job, res *Result) {
	now := r.opts.Now()
	seen := make(map[string]bool, len(jobs))
	var written []string

	for _, job := range jobs {
		if !filter.IsRecent(job.PostedDate, now, r.opts.MaxPostingAge) {
			res.Stale++
			continue
		}
		if !r.opts.Matcher.Relevant(job.Title, job.Description) {
			res.Irrelevant++
			continue
		}

		row := job.toModel()
		if seen[row.Fingerprint] || (r.cache != nil && r.cache.IsSeen(row.Fingerprint)) {
			res.Deduped++
			continue
		}
		seen[row.Fingerprint] = true

		inserted, err := r.catalog.UpsertJob(ctx, row)
		if err != nil {
			log.Printf("⚠️ Upsert failed for %q: %v", job.Title, err)
			res.Failures = append(res.Failures, runlog.Truncate(fmt.Sprintf("upsert %s: %v", job.Title, err), failureNoteLen))
			continue
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
		written = append(written, row.Fingerprint)
	}

	if r.cache != nil && len(written) > 0 {
		r.cache.Add(written)
	}
}
