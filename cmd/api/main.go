package main

import (
	"context"
	"net/http"
	"time"

	"quizgen/internal/api"
	"quizgen/internal/config"
	"quizgen/internal/logger"
	"quizgen/internal/realtime"
	"quizgen/internal/storage"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("connect postgres", "error", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal("ensure schema", "error", err)
	}

	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal("dial temporal", "error", err)
	}
	defer tc.Close()

	var stream api.Subscriber
	if cfg.RedisAddr != "" {
		bus, err := realtime.NewProgressBus(cfg.RedisAddr, cfg.RedisChannelPrefix, log)
		if err != nil {
			log.Fatal("connect redis", "error", err)
		}
		defer bus.Close()
		stream = bus
	}

	h := api.NewServer(cfg, storage.NewQuizStore(db), api.NewTemporalLauncher(tc, cfg.TemporalTaskQueue), stream, log)
	log.Info("quizgen api listening", "addr", cfg.APIAddr, "llm_providers", cfg.LLMProviders, "redis", cfg.RedisAddr != "")
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal("api server stopped", "error", err)
	}
}
