package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "ClimaPulse/internal/domain/repository"
	"ClimaPulse/internal/usecase"
	pkgcache "ClimaPulse/pkg/cache"
	xhttp "ClimaPulse/pkg/http"
	pkgkafka "ClimaPulse/pkg/kafka"
	applogger "ClimaPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	log        *applogger.Logger
	httpServer *xhttp.Server
	subs       *usecase.SubscriptionManager
	alerts     *usecase.AlertEvaluator
	history    domrepo.HistoryStore
	producer   *pkgkafka.Producer
	cache      pkgcache.Service
}

// New creates a new App instance with all dependencies. history and
// producer may be nil.
func New(
	log *applogger.Logger,
	httpServer *xhttp.Server,
	subs *usecase.SubscriptionManager,
	alerts *usecase.AlertEvaluator,
	history domrepo.HistoryStore,
	producer *pkgkafka.Producer,
	cache pkgcache.Service,
) *App {
	return &App{
		log:        log,
		httpServer: httpServer,
		subs:       subs,
		alerts:     alerts,
		history:    history,
		producer:   producer,
		cache:      cache,
	}
}

// Run starts the HTTP server and blocks until SIGINT, SIGTERM or a
// listener failure.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
	}

	a.shutdown()
	return runErr
}

// shutdown stops the components in dependency order: nothing new comes in
// over HTTP, refresh loops stop, pending alert notifications drain, then
// the stores and the producer close.
func (a *App) shutdown() {
	a.log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	a.subs.Close()
	a.alerts.Wait()

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("history close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")

	// the log collector publishes through the producer, detach it first
	a.log.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
}
