package risk

import (
	"fmt"
	"time"

	"go-openclaw-autoapply/internal/runlog"
)

// Fallback delays applied when the advisory model gives no usable answer.
const (
	mediumFallbackDelay = 30 * time.Second
	highFallbackDelay   = 90 * time.Second
)

// Hint is the advisory model's unverified opinion.
type Hint struct {
	RiskLevel    string `json:"risk_level"`
	Proceed      *bool  `json:"proceed"`
	DelaySeconds int    `json:"delay_seconds"`
	Reason       string `json:"reason"`
}

// Enforce turns a hint into an assessment that honours the deterministic
// band. The result is never below band, critical never proceeds, and a high
// result proceeds only with a fresh session.
func Enforce(band Level, hint Hint, sessionFresh bool, maxDelay time.Duration) Assessment {
	level, err := ParseLevel(hint.RiskLevel)
	if err != nil {
		return Fallback(band, fmt.Sprintf("advisory output rejected: %v", err), maxDelay)
	}
	level = maxLevel(level, band)

	proceed := level <= Medium
	if hint.Proceed != nil {
		proceed = *hint.Proceed
	}

	reason := hint.Reason
	switch {
	case level == Critical:
		proceed = false
	case level == High && proceed && !sessionFresh:
		proceed = false
		reason = "high risk without a fresh session; " + reason
	}

	return Assessment{
		Level:   level,
		Proceed: proceed,
		Delay:   clampDelay(time.Duration(hint.DelaySeconds)*time.Second, maxDelay),
		Reason:  runlog.Truncate(reason, runlog.MaxReasonLen),
		Source:  SourceAdvisor,
	}
}

// Fallback is the conservative policy for a band when no advice is available.
func Fallback(band Level, reason string, maxDelay time.Duration) Assessment {
	a := Assessment{Level: band, Source: SourceFallback}
	switch band {
	case Low:
		a.Proceed = true
	case Medium:
		a.Proceed = true
		a.Delay = mediumFallbackDelay
	case High:
		a.Delay = highFallbackDelay
	default:
		a.Level = Critical
	}
	a.Delay = clampDelay(a.Delay, maxDelay)
	a.Reason = runlog.Truncate(fmt.Sprintf("fallback %s band: %s", a.Level, reason), runlog.MaxReasonLen)
	return a
}

func clampDelay(d, maxDelay time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if maxDelay >= 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
