package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-openclaw-autoapply/internal/risk"
)

const riskSystemPrompt = `You are the anti-ban risk assessor for an automation system that acts on job platforms on behalf of users.
Given today's global action count for the platform, the deterministic risk band, the user's recent action velocity and the session age, decide whether the next action should proceed.

Rules:
1. risk_level must be one of "low", "medium", "high", "critical" and must not be lower than the deterministic band.
2. If risk_level is "critical", proceed must be false.
3. Suggest delay_seconds between 0 and 120 to pace the action.
4. Keep reason under 200 characters.
5. Return ONLY a raw JSON object: {"risk_level": "...", "proceed": true|false, "delay_seconds": 0, "reason": "..."}`

// RiskAdvisor asks an LLM to refine the deterministic band.
type RiskAdvisor struct {
	completer Completer
	timeout   time.Duration
}

func NewRiskAdvisor(c Completer, timeout time.Duration) *RiskAdvisor {
	return &RiskAdvisor{completer: c, timeout: timeout}
}

type riskContext struct {
	Action            string            `json:"action_type"`
	Platform          string            `json:"platform"`
	PlatformCount     int               `json:"platform_actions_today"`
	KillSwitch        int               `json:"kill_switch_threshold"`
	CriticalThreshold int               `json:"critical_threshold"`
	HighThreshold     int               `json:"high_threshold"`
	Band              string            `json:"deterministic_band"`
	RecentActions     int               `json:"user_actions_last_24h"`
	SessionAgeDays    *int              `json:"session_age_days"`
	Extra             map[string]string `json:"extra,omitempty"`
}

func buildRiskPrompt(p risk.Prompt) (string, error) {
	rc := riskContext{
		Action:            string(p.Action),
		Platform:          string(p.Platform),
		PlatformCount:     p.PlatformCount,
		KillSwitch:        p.Thresholds.KillSwitch,
		CriticalThreshold: p.Thresholds.Critical,
		HighThreshold:     p.Thresholds.High,
		Band:              p.Band.String(),
		RecentActions:     p.RecentActions,
		Extra:             p.Extra,
	}
	if p.SessionAge >= 0 {
		days := int(p.SessionAge / (24 * time.Hour))
		rc.SessionAgeDays = &days
	}
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Context:\n%s\n\nAssess the risk of the next action.", data), nil
}

// Advise returns the model's hint. Every failure wraps ErrUnavailable so the
// guard can fall back to the deterministic band.
func (a *RiskAdvisor) Advise(ctx context.Context, p risk.Prompt) (risk.Hint, error) {
	userPrompt, err := buildRiskPrompt(p)
	if err != nil {
		return risk.Hint{}, fmt.Errorf("%w: build prompt: %w", ErrUnavailable, err)
	}

	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.completer.Complete(ctx, riskSystemPrompt, userPrompt)
	if err != nil {
		return risk.Hint{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	cleaned := cleanMarkdownJSON(raw)
	var hint risk.Hint
	if err := json.Unmarshal([]byte(cleaned), &hint); err != nil {
		return risk.Hint{}, fmt.Errorf("%w: unparseable advice (raw length: %d): %w", ErrUnavailable, len(cleaned), err)
	}
	if hint.RiskLevel == "" {
		return risk.Hint{}, fmt.Errorf("%w: advice missing risk_level", ErrUnavailable)
	}
	return hint, nil
}
