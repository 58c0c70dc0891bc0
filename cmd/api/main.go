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

	"github.com/kikuchi-mizuki/task-yoshimura/internal/ai"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/calendar"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/config"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/db"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/line"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/server"
	"github.com/kikuchi-mizuki/task-yoshimura/internal/store"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	st := store.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema setup failed: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}

	var extractor ai.Extractor
	if cfg.OpenAIAPIKey != "" {
		extractor = ai.NewOpenAIExtractor(cfg)
	} else {
		log.Printf("OPENAI_API_KEY not set, using mock extractor")
		extractor = ai.MockExtractor{}
	}

	cal := calendar.New(cfg, st, loc)
	messenger := line.NewClient(cfg.LINEChannelAccessToken, cfg.LINEAPIBaseURL)

	app := server.New(cfg, st, extractor, cal, messenger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("schedule assistant api listening on http://localhost:%s", cfg.AppPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
