// Package scraper feeds the job catalog. Every source implements Source;
// Runner fans them out, gates rate-limited platforms through the risk
// guard and upserts the results by fingerprint.
package scraper

import (
	"context"
	"strings"

	"go-openclaw-autoapply/internal/dedup"
	"go-openclaw-autoapply/internal/models"
)

// Job is one posting as scraped, before it becomes a catalog row.
type Job struct {
	Title       string
	Company     string
	URL         string
	Location    string
	Description string
	Source      string
	PostedDate  string
}

// Fingerprint is the posting's catalog identity.
func (j Job) Fingerprint() string {
	return dedup.Fingerprint(j.Title, j.Company, j.Location, j.Description)
}

func (j Job) toModel() *models.Job {
	return &models.Job{
		Fingerprint:    j.Fingerprint(),
		Source:         strings.ToLower(j.Source),
		Title:          strings.TrimSpace(j.Title),
		Company:        strings.TrimSpace(j.Company),
		Location:       strings.TrimSpace(j.Location),
		URL:            j.URL,
		DescriptionRaw: j.Description,
		PostedDate:     j.PostedDate,
	}
}

// Source defines the interface that all platform scrapers must implement
type Source interface {
	// Name is the display name (LinkedIn, ...)
	Name() string
	// Platform is the platform whose action budget a scrape consumes, or ""
	// for sources outside any rate-limited platform.
	Platform() models.Platform
	Scrape(ctx context.Context) ([]Job, error)
}
