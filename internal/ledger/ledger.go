// Package ledger tracks per-user and per-platform action budgets.
//
// Counts are always read from the backing store at call time. Several
// orchestrator runs and the scraper share the platform counter, so every
// increment is delegated to the store's atomic primitive; the ledger never
// does read-compare-write itself.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go-openclaw-autoapply/internal/models"
)

const (
	DayKeyLayout   = "2006-01-02"
	MonthKeyLayout = "2006-01"
)

// Store is the authoritative counter state.
type Store interface {
	UserDailyCount(ctx context.Context, userID, day string) (int, error)
	UserMonthlyCount(ctx context.Context, userID, month string) (int, error)
	// IncrementUserCounters bumps the daily and monthly counters in one
	// atomic operation.
	IncrementUserCounters(ctx context.Context, userID, day, month string) error
	PlatformCount(ctx context.Context, platform models.Platform, day string) (int, error)
	// IncrementPlatformCounter atomically adds one and returns the new value.
	IncrementPlatformCounter(ctx context.Context, platform models.Platform, day string) (int, error)
}

type Ledger struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the wall clock used to derive period keys.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns a ledger whose calendar boundaries are evaluated in loc.
func New(store Store, loc *time.Location, opts ...Option) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	l := &Ledger{store: store, loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) DayKey() string   { return l.now().In(l.loc).Format(DayKeyLayout) }
func (l *Ledger) MonthKey() string { return l.now().In(l.loc).Format(MonthKeyLayout) }

func (l *Ledger) DailyCount(ctx context.Context, userID string) (int, error) {
	n, err := l.store.UserDailyCount(ctx, userID, l.DayKey())
	if err != nil {
		return 0, fmt.Errorf("read daily count: %w", err)
	}
	return n, nil
}

func (l *Ledger) MonthlyCount(ctx context.Context, userID string) (int, error) {
	n, err := l.store.UserMonthlyCount(ctx, userID, l.MonthKey())
	if err != nil {
		return 0, fmt.Errorf("read monthly count: %w", err)
	}
	return n, nil
}

// PlatformCountToday is the global action count for platform in the current day.
func (l *Ledger) PlatformCountToday(ctx context.Context, platform models.Platform) (int, error) {
	n, err := l.store.PlatformCount(ctx, platform, l.DayKey())
	if err != nil {
		return 0, fmt.Errorf("read %s counter: %w", platform, err)
	}
	return n, nil
}

// RecordUserAction consumes one unit of the user's daily and monthly budget.
func (l *Ledger) RecordUserAction(ctx context.Context, userID string) error {
	if err := l.store.IncrementUserCounters(ctx, userID, l.DayKey(), l.MonthKey()); err != nil {
		return fmt.Errorf("increment user counters: %w", err)
	}
	return nil
}

// RecordPlatformAction consumes one unit of the platform's global budget and
// returns the count after the increment.
func (l *Ledger) RecordPlatformAction(ctx context.Context, platform models.Platform) (int, error) {
	n, err := l.store.IncrementPlatformCounter(ctx, platform, l.DayKey())
	if err != nil {
		return 0, fmt.Errorf("increment %s counter: %w", platform, err)
	}
	return n, nil
}

// Remaining is the budget left for a user this run.
type Remaining struct {
	Daily   int
	Monthly int
}

// Min returns the smallest of the user's remaining budgets and runMax.
func (r Remaining) Min(runMax int) int {
	m := r.Daily
	if r.Monthly < m {
		m = r.Monthly
	}
	if runMax > 0 && runMax < m {
		m = runMax
	}
	if m < 0 {
		return 0
	}
	return m
}
