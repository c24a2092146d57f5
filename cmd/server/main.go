package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-openclaw-autoapply/internal/api"
	"go-openclaw-autoapply/internal/app"
	"go-openclaw-autoapply/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to wire agents: %v", err)
	}
	defer a.Close()

	applier, err := a.Applier(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to build applier: %v", err)
	}
	if cfg.API.AgentSecret == "" {
		log.Println("⚠️ AGENT_SECRET not set, agent routes will reject every request")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.API.Port,
		Handler:           api.NewServer(applier, a.Guard, cfg.API.AgentSecret).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server listening on port %s", cfg.API.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Graceful shutdown failed: %v", err)
	}
}
