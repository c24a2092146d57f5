package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go-openclaw-autoapply/internal/app"
	"go-openclaw-autoapply/internal/config"
	"go-openclaw-autoapply/internal/scraper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	log.Printf("🔧 Config loaded. Keywords: %v", cfg.Scraper.Keywords)

	//setup context with timeout = 10 mins
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("🚀 Starting OpenClaw scrape pass...")

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to wire agents: %v", err)
	}
	defer a.Close()

	runner, err := a.Scraper(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to build scraper: %v", err)
	}

	res, err := runner.Run(ctx)
	if err != nil {
		log.Printf("❌ Scrape pass failed: %v", err)
		if bot := a.Notifier(); bot != nil {
			if sendErr := bot.SendError(context.WithoutCancel(ctx), err); sendErr != nil {
				log.Printf("⚠️ Failed to send error to Telegram: %v", sendErr)
			}
		}
		return
	}

	log.Printf("📦 Scraped %d jobs: %d new, %d refreshed, %d deduped, %d stale",
		res.Scraped, res.Inserted, res.Updated, res.Deduped, res.Stale)

	if bot := a.Notifier(); bot != nil {
		statusMsg := fmt.Sprintf("✅ Scrape %s: %d new jobs, %d refreshed.", res.Status, res.Inserted, res.Updated)
		if len(res.SkippedSources) > 0 {
			statusMsg += fmt.Sprintf(" Skipped: %v.", res.SkippedSources)
		}
		if err := bot.SendStatus(ctx, statusMsg); err != nil {
			log.Printf("⚠️ Failed to send status to Telegram: %v", err)
		}
	}

	saveResult(res)
	log.Println("🏁 Execution finished.")
}

func saveResult(res *scraper.Result) {
	//create logs directory if not exists
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("⚠️ Failed to create logs directory: %v", err)
		return
	}

	//gen filename: scrape-YYYY-MM-DD.json
	filePath := filepath.Join(logDir, fmt.Sprintf("scrape-%s.json", time.Now().Format("2006-01-02")))

	data, err := json.MarshalIndent(res, "", " ")
	if err != nil {
		log.Printf("⚠️ Failed to marshal scrape result: %v", err)
		return
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		log.Printf("⚠️ Failed to write logs file: %v", err)
		return
	}
	log.Printf("📁 Results saved to %s", filePath)
}
