// Package selector picks the candidate jobs an apply run works through.
package selector

import (
	"context"
	"fmt"
	"sort"

	"go-openclaw-autoapply/internal/models"
)

const (
	DefaultMinFitScore = 60
	DefaultOverFetch   = 5
)

// JobQuery narrows the catalog for one user.
type JobQuery struct {
	UserID             string
	MinFitScore        float64
	ExcludeApplied     bool
	ExcludeBlacklisted bool
	Limit              int
}

// Catalog is the scored job catalog.
type Catalog interface {
	SelectEligibleJobs(ctx context.Context, q JobQuery) ([]models.JobCandidate, error)
}

type Selector struct {
	catalog   Catalog
	minFit    float64
	overFetch int
}

func New(catalog Catalog, minFit float64, overFetch int) *Selector {
	if minFit <= 0 {
		minFit = DefaultMinFitScore
	}
	if overFetch < 1 {
		overFetch = DefaultOverFetch
	}
	return &Selector{catalog: catalog, minFit: minFit, overFetch: overFetch}
}

// Select returns up to remaining*overFetch candidates ordered by fit score,
// then recency, then job id.
func (s *Selector) Select(ctx context.Context, userID string, remaining int) ([]models.JobCandidate, error) {
	if remaining <= 0 {
		return nil, nil
	}
	jobs, err := s.catalog.SelectEligibleJobs(ctx, JobQuery{
		UserID:             userID,
		MinFitScore:        s.minFit,
		ExcludeApplied:     true,
		ExcludeBlacklisted: true,
		Limit:              remaining * s.overFetch,
	})
	if err != nil {
		return nil, fmt.Errorf("select eligible jobs: %w", err)
	}

	out := jobs[:0:0]
	for _, j := range jobs {
		if j.FitScore >= s.minFit {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return Less(out[a], out[b])
	})
	return out, nil
}

// Less orders candidates by fit desc, posted desc, job id asc.
func Less(a, b models.JobCandidate) bool {
	if a.FitScore != b.FitScore {
		return a.FitScore > b.FitScore
	}
	if !a.PostedAt.Equal(b.PostedAt) {
		return a.PostedAt.After(b.PostedAt)
	}
	return a.JobID < b.JobID
}
