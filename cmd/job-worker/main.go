package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/app"
	"github.com/hackgods/therapy-booking/internal/config"
	"github.com/hackgods/therapy-booking/internal/jobs"
	"github.com/hackgods/therapy-booking/internal/logging"
	redisclient "github.com/hackgods/therapy-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("prod", "info").Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "job-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("job-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	dispatcher := jobs.NewDispatcher(a.Queue, a.Gateway, a.Orchestrator, jobs.DispatcherConfig{
		Interval:    cfg.WorkerInterval,
		BatchSize:   cfg.WorkerBatchSize,
		Concurrency: cfg.WorkerConcurrency,
	}, log)

	go reportDepth(rootCtx, a.Queue, log)

	if err := dispatcher.Run(rootCtx); err != nil {
		log.Error().Err(err).Msg("dispatcher stopped with error")
	}
	log.Info().Msg("job-worker stopped")
}

// reportDepth logs the queue backlog once a minute.
func reportDepth(ctx context.Context, q *redisclient.Queue, log zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			waiting, inflight, err := q.Depth(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("queue depth unavailable")
				continue
			}
			log.Info().Int64("waiting", waiting).Int64("inflight", inflight).Msg("queue depth")
		}
	}
}
