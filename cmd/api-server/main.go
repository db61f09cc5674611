package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hackgods/therapy-booking/internal/api"
	"github.com/hackgods/therapy-booking/internal/app"
	"github.com/hackgods/therapy-booking/internal/config"
	"github.com/hackgods/therapy-booking/internal/discovery"
	"github.com/hackgods/therapy-booking/internal/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		logging.New("prod", "info").Fatal().Err(err).Msg("config load error")
	}

	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "api-server").Logger()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	router := api.NewRouter(api.RouterConfig{
		Service: a.Orchestrator,
		Checks:  a.Checks(),
		Log:     log,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.ConsulAddr != "" {
		port, _ := strconv.Atoi(cfg.HTTPPort)
		host, _ := os.Hostname()
		registrar, err := discovery.Register(cfg.ConsulAddr, discovery.Registration{
			ServiceID:  cfg.ConsulServiceID,
			Name:       "therapy-booking-api",
			Host:       host,
			Port:       port,
			HealthPath: "/health/ready",
			Tags:       []string{cfg.Env, version},
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("consul registration failed, continuing without it")
		} else {
			defer func() {
				if err := registrar.Deregister(); err != nil {
					log.Warn().Err(err).Msg("consul deregistration failed")
				}
			}()
		}
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
