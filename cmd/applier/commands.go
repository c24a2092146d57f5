package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go-openclaw-autoapply/internal/app"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/database"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/risk"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "applier",
		Short:        "Auto-apply agent: run passes, query the anti-ban guard, provision users",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRunCmd(), newAssessCmd(), newMigrateCmd(),
		newProfileCmd(), newSessionCmd(), newScoreCmd())
	return rootCmd
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.Open(cmd.Context(), cfg)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRunCmd() *cobra.Command {
	var (
		userID     string
		maxApplies int
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one auto-apply pass for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			ap, err := a.Applier(ctx)
			if err != nil {
				return err
			}
			res, runErr := ap.Run(ctx, userID, maxApplies)
			if err := writeJSON(cmd, res); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to run for")
	cmd.Flags().IntVar(&maxApplies, "max", 0, "maximum applications this run (0 uses the configured default)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "abort the pass after this long")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newAssessCmd() *cobra.Command {
	var (
		userID   string
		platform string
		action   string
	)
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Ask the anti-ban guard whether an action may run now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			act := models.ActionType(action)
			if act != models.ActionApply && act != models.ActionScrape {
				return fmt.Errorf("unknown action %q (want apply or scrape)", action)
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			got := a.Guard.Assess(cmd.Context(), risk.ActorContext{UserID: userID}, act,
				risk.PlatformContext{Platform: models.Platform(platform)})
			return writeJSON(cmd, map[string]any{
				"risk_level":    got.Level,
				"proceed":       got.Proceed,
				"delay_seconds": got.Delay.Seconds(),
				"reason":        got.Reason,
				"source":        got.Source,
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the action is for")
	cmd.Flags().StringVar(&platform, "platform", string(models.PlatformLinkedIn), "target platform")
	cmd.Flags().StringVar(&action, "action", string(models.ActionApply), "apply or scrape")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			repo, err := database.ConnectDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Schema applied")
			return nil
		},
	}
}
