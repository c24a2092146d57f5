// Package risk is the anti-ban guard every automated platform action consults.
package risk

import (
	"context"
	"fmt"
	"log"
	"time"

	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/runlog"
)

type Source string

const (
	SourceKillSwitch Source = "kill_switch"
	SourceThreshold  Source = "threshold"
	SourceAdvisor    Source = "advisor"
	SourceFallback   Source = "fallback"
	SourceError      Source = "error"
)

// Assessment is produced per action attempt and never persisted.
type Assessment struct {
	Level   Level
	Proceed bool
	Delay   time.Duration
	Reason  string
	Source  Source
}

type ActorContext struct {
	UserID string
}

type PlatformContext struct {
	Platform models.Platform
	Extra    map[string]string
}

// CounterReader reads the global per-platform daily counter.
type CounterReader interface {
	PlatformCountToday(ctx context.Context, platform models.Platform) (int, error)
}

// Prompt carries everything the advisory model may weigh.
type Prompt struct {
	UserID        string
	Action        models.ActionType
	Platform      models.Platform
	PlatformCount int
	Band          Level
	Thresholds    Thresholds
	RecentActions int
	// SessionAge is negative when unknown.
	SessionAge time.Duration
	Extra      map[string]string
}

// Advisor refines the deterministic band. Its answer is a hint only.
type Advisor interface {
	Advise(ctx context.Context, p Prompt) (Hint, error)
}

type Thresholds struct {
	KillSwitch int
	Critical   int
	High       int
	Medium     int
}

func DefaultThresholds() Thresholds {
	return Thresholds{KillSwitch: 1500, Critical: 1200, High: 800, Medium: 200}
}

// Band maps a counter value to its deterministic level.
func (t Thresholds) Band(count int) Level {
	switch {
	case count >= t.Critical:
		return Critical
	case count >= t.High:
		return High
	case count >= t.Medium:
		return Medium
	}
	return Low
}

const velocityWindow = 24 * time.Hour

type Guard struct {
	counters     CounterReader
	advisor      Advisor
	signals      SignalSource
	thresholds   Thresholds
	maxDelay     time.Duration
	freshSession time.Duration
}

type Option func(*Guard)

func WithAdvisor(a Advisor) Option            { return func(g *Guard) { g.advisor = a } }
func WithSignals(s SignalSource) Option       { return func(g *Guard) { g.signals = s } }
func WithThresholds(t Thresholds) Option      { return func(g *Guard) { g.thresholds = t } }
func WithMaxDelay(d time.Duration) Option     { return func(g *Guard) { g.maxDelay = d } }
func WithFreshSession(d time.Duration) Option { return func(g *Guard) { g.freshSession = d } }

func NewGuard(counters CounterReader, opts ...Option) *Guard {
	g := &Guard{
		counters:     counters,
		thresholds:   DefaultThresholds(),
		maxDelay:     120 * time.Second,
		freshSession: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Assess decides whether action may run against the platform now. It never
// returns an error: any internal failure yields critical/proceed=false.
func (g *Guard) Assess(ctx context.Context, actor ActorContext, action models.ActionType, pc PlatformContext) (a Assessment) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🚨 Risk assessment panicked (platform=%s): %v", pc.Platform, r)
			a = blocked(SourceError, fmt.Sprintf("assessment error: %v", r))
		}
	}()

	count, err := g.counters.PlatformCountToday(ctx, pc.Platform)
	if err != nil {
		log.Printf("⚠️ Risk gate could not read %s counter: %v", pc.Platform, err)
		return blocked(SourceError, fmt.Sprintf("platform counter unavailable: %v", err))
	}

	if count >= g.thresholds.KillSwitch {
		return blocked(SourceKillSwitch, fmt.Sprintf("kill switch: %d %s actions today (limit %d)", count, pc.Platform, g.thresholds.KillSwitch))
	}
	if count >= g.thresholds.Critical {
		return blocked(SourceThreshold, fmt.Sprintf("critical band: %d %s actions today (threshold %d)", count, pc.Platform, g.thresholds.Critical))
	}

	band := g.thresholds.Band(count)
	if g.advisor == nil {
		return Fallback(band, "no advisory model configured", g.maxDelay)
	}

	prompt := Prompt{
		UserID:        actor.UserID,
		Action:        action,
		Platform:      pc.Platform,
		PlatformCount: count,
		Band:          band,
		Thresholds:    g.thresholds,
		SessionAge:    -1,
		Extra:         pc.Extra,
	}
	if g.signals != nil {
		g.gatherSignals(ctx, &prompt)
	}

	hint, err := g.advisor.Advise(ctx, prompt)
	if err != nil {
		log.Printf("⚠️ Advisory model unavailable, using %s band fallback: %v", band, err)
		return Fallback(band, "advisory model unavailable", g.maxDelay)
	}

	fresh := prompt.SessionAge >= 0 && prompt.SessionAge < g.freshSession
	return Enforce(band, hint, fresh, g.maxDelay)
}

// gatherSignals leaves unknown signals at their zero/negative defaults; an
// unknown session age can never unlock the high band.
func (g *Guard) gatherSignals(ctx context.Context, p *Prompt) {
	if n, err := g.signals.RecentActions(ctx, p.UserID, velocityWindow); err != nil {
		log.Printf("⚠️ Risk gate: recent actions unavailable: %v", err)
	} else {
		p.RecentActions = n
	}
	if age, err := g.signals.SessionAge(ctx, p.UserID, p.Platform); err != nil {
		log.Printf("⚠️ Risk gate: session age unavailable: %v", err)
	} else {
		p.SessionAge = age
	}
}

func blocked(src Source, reason string) Assessment {
	return Assessment{
		Level:   Critical,
		Proceed: false,
		Reason:  runlog.Truncate(reason, runlog.MaxReasonLen),
		Source:  src,
	}
}
