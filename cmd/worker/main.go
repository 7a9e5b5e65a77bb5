package main

import (
	"context"
	"time"

	"quizgen/internal/activities"
	"quizgen/internal/config"
	"quizgen/internal/logger"
	"quizgen/internal/providers"
	"quizgen/internal/quiz"
	"quizgen/internal/realtime"
	"quizgen/internal/storage"
	"quizgen/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal("dial temporal", "error", err)
	}
	defer c.Close()

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

	pm, err := providers.NewManager(cfg.LLMProviders)
	if err != nil {
		log.Fatal("configure llm providers", "error", err)
	}
	store := storage.NewQuizStore(db)
	gen := quiz.NewLLMGenerator(pm, store, log)

	var extra []quiz.ProgressSink
	if cfg.RedisAddr != "" {
		bus, err := realtime.NewProgressBus(cfg.RedisAddr, cfg.RedisChannelPrefix, log)
		if err != nil {
			log.Fatal("connect redis", "error", err)
		}
		defer bus.Close()
		extra = append(extra, bus)
	}

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, store, gen, log, extra...))

	log.Info("quizgen worker listening", "temporal", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue, "llm_providers", cfg.LLMProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker stopped", "error", err)
	}
}
