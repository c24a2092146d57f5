package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go-openclaw-autoapply/internal/app"
	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/credential"
	"go-openclaw-autoapply/internal/models"
)

func newProfileCmd() *cobra.Command {
	var (
		userID     string
		tier       string
		enabled    bool
		paused     bool
		consent    bool
		dailyLimit int
		chatID     int64
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Create or replace a user's automation settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := buildProfile(userID, tier, enabled, paused, consent, dailyLimit, chatID, time.Now())
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.UpsertUserAutomationProfile(cmd.Context(), p); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"profile":              p,
				"automation_permitted": p.AutomationPermitted(),
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&tier, "tier", string(models.TierPaid), "free or paid")
	cmd.Flags().BoolVar(&enabled, "enabled", false, "turn auto-apply on")
	cmd.Flags().BoolVar(&paused, "paused", false, "pause auto-apply")
	cmd.Flags().BoolVar(&consent, "consent", false, "record the user's automation consent")
	cmd.Flags().IntVar(&dailyLimit, "daily-limit", 0, "applications per day (0 uses the default)")
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "Telegram chat for notifications")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// buildProfile validates CLI input. Enabling stamps the activation time, which
// starts the review period.
func buildProfile(userID, tier string, enabled, paused, consent bool, dailyLimit int, chatID int64, now time.Time) (models.UserAutomationProfile, error) {
	t := models.Tier(tier)
	if t != models.TierFree && t != models.TierPaid {
		return models.UserAutomationProfile{}, fmt.Errorf("unknown tier %q (want free or paid)", tier)
	}
	if dailyLimit < 0 {
		return models.UserAutomationProfile{}, fmt.Errorf("daily limit must not be negative")
	}
	p := models.UserAutomationProfile{
		UserID:            userID,
		Tier:              t,
		AutomationEnabled: enabled,
		Paused:            paused,
		Consent:           consent,
		DailyApplyLimit:   dailyLimit,
		TelegramChatID:    chatID,
	}
	if enabled {
		p.ActivatedAt = &now
	}
	return p, nil
}

func newSessionCmd() *cobra.Command {
	var (
		userID   string
		platform string
		file     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Encrypt an exported cookie file and store it as a platform session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.SessionKey == "" {
				return fmt.Errorf("%w: SESSION_KEY is required to store sessions", config.ErrInvalid)
			}
			vault, err := credential.NewVault(cfg.SessionKey)
			if err != nil {
				return err
			}

			a, err := app.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := importSession(cmd.Context(), a.Store, vault, userID, models.Platform(platform), file, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Stored %d %s cookies for %s\n", n, platform, userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&platform, "platform", string(models.PlatformLinkedIn), "linkedin or indeed")
	cmd.Flags().StringVar(&file, "file", "", "cookie JSON exported from the browser")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "session lifetime (0 never expires)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// importSession seals the cookies at path and saves them. It returns the
// cookie count; cookie values never leave this function unencrypted.
func importSession(ctx context.Context, store app.Seeder, vault credential.Encrypter, userID string, platform models.Platform, path string, ttl time.Duration, now time.Time) (int, error) {
	if platform != models.PlatformLinkedIn && platform != models.PlatformIndeed {
		return 0, fmt.Errorf("unsupported platform %q", platform)
	}
	cookies, err := browser.LoadCookies(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read cookies: %w", err)
	}

	var expires *time.Time
	if ttl > 0 {
		at := now.Add(ttl)
		expires = &at
	}
	cred, err := credential.Seal(vault, userID, platform, cookies, expires)
	if err != nil {
		return 0, err
	}
	if err := store.SaveCredential(ctx, cred); err != nil {
		return 0, err
	}
	return len(cookies), nil
}

func newScoreCmd() *cobra.Command {
	var (
		userID string
		jobID  string
		fit    float64
		skills []string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Record a fit score for a catalog job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fit < 0 || fit > 100 {
				return fmt.Errorf("fit score must be between 0 and 100")
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.SaveJobScore(cmd.Context(), userID, jobID, fit, skills); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Scored job %s for %s: %.0f\n", jobID, userID, fit)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&jobID, "job", "", "catalog job id")
	cmd.Flags().Float64Var(&fit, "fit", 0, "fit score, 0 to 100")
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "required skills")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}
