// Package app connects the service's backing stores and builds the booking
// orchestrator shared by the API server and the job worker.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/api"
	"github.com/hackgods/therapy-booking/internal/appointment"
	"github.com/hackgods/therapy-booking/internal/availability"
	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/config"
	"github.com/hackgods/therapy-booking/internal/db"
	"github.com/hackgods/therapy-booking/internal/jobs"
	"github.com/hackgods/therapy-booking/internal/notify"
	"github.com/hackgods/therapy-booking/internal/payment"
	redisclient "github.com/hackgods/therapy-booking/internal/redis"
	"github.com/hackgods/therapy-booking/internal/sessiontype"
)

const queuePrefix = "therapy:jobs"

type App struct {
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	Publisher    *notify.Publisher
	Queue        *redisclient.Queue
	Gateway      *jobs.Gateway
	Orchestrator *booking.Orchestrator

	log zerolog.Logger
}

// New connects Postgres, Redis and NATS and wires the orchestrator. The
// caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	catalog, err := sessiontype.Load(cfg.SessionTypesFile)
	if err != nil {
		return nil, fmt.Errorf("load session types: %w", err)
	}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
	cancelPg()
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	publisher, err := notify.NewPublisher(cfg.NATSURL, log)
	if err != nil {
		_ = rdb.Close()
		pool.Close()
		return nil, fmt.Errorf("nats: %w", err)
	}

	store := appointment.NewPgStore(pool)
	coordinator := appointment.NewCoordinator(store, appointment.CoordinatorConfig{
		HoldTTL:          cfg.HoldTTL,
		CalendarLocation: cfg.CalendarLocation(),
	})
	slots := availability.NewService(availability.NewPgRepository(pool), store, log)

	queue := redisclient.NewQueue(rdb, queuePrefix, cfg.TaskVisibilityTimeout)
	gateway := jobs.NewGateway(queue, jobs.NewPgRecordStore(pool), log, time.Now)

	payments := payment.NewClient(payment.Config{
		BaseURL:      cfg.PaymentGatewayURL,
		APIKey:       cfg.PaymentGatewayKey,
		Timeout:      10 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}, log)

	orch := booking.NewOrchestrator(booking.Deps{
		Coordinator: coordinator,
		Reader:      store,
		Slots:       slots,
		Catalog:     catalog,
		Jobs:        gateway,
		Locker:      redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL),
		Payments:    payments,
		Notifier:    publisher,
	}, booking.Config{
		PayLaterLeadTime:    cfg.PayLaterLeadTime,
		EmailReminderBefore: cfg.EmailReminderBefore,
		SMSReminderBefore:   cfg.SMSReminderBefore,
	}, log)

	return &App{
		Pool:         pool,
		Redis:        rdb,
		Publisher:    publisher,
		Queue:        queue,
		Gateway:      gateway,
		Orchestrator: orch,
		log:          log,
	}, nil
}

// Checks are the readiness checks for the connected dependencies. A NATS
// outage only degrades the service since notifications are best effort.
func (a *App) Checks() []api.Check {
	return []api.Check{
		{Name: "postgres", Critical: true, Ping: a.Pool.Ping},
		{Name: "redis", Critical: true, Ping: func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }},
		{Name: "nats", Ping: func(context.Context) error {
			if !a.Publisher.Connected() {
				return errors.New("nats disconnected")
			}
			return nil
		}},
	}
}

func (a *App) Close() {
	a.Publisher.Close()
	if err := a.Redis.Close(); err != nil {
		a.log.Warn().Err(err).Msg("error closing redis")
	}
	a.Pool.Close()
}
