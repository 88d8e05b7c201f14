package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"EMSpark/pkg/config"
	xhttp "EMSpark/pkg/http"
	pkgkafka "EMSpark/pkg/kafka"
	applogger "EMSpark/pkg/logger"
	"EMSpark/pkg/queue"
)

// App encapsulates the application lifecycle. Infrastructure clients are
// closed by the cleanup returned from the injector, not here.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	jobs       *queue.RedisQueue
}

// New creates a new App. consumer and jobs may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	jobs *queue.RedisQueue,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		httpServer: httpServer,
		consumer:   consumer,
		kh:         kh,
		jobs:       jobs,
	}
}

// Run starts the application and blocks until interrupted or the HTTP
// listener fails.
func (a *App) Run() error {
	return a.RunContext(context.Background())
}

// RunContext is Run with an external stop signal.
func (a *App) RunContext(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.l.Error("Kafka consumer start failed", applogger.Error(err))
			return err
		}
		a.l.Info("Kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			a.l.Error("Redis queue start failed", applogger.Error(err))
			a.stopConsumer(context.Background())
			return err
		}
	}

	errCh := a.httpServer.Start()

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("Shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			a.l.Error("HTTP server failed", applogger.Error(err))
			runErr = err
		}
	}

	a.shutdown()
	return runErr
}

// shutdown stops the HTTP server first so no new work arrives, then the
// queue workers.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("HTTP shutdown failed", applogger.Error(err))
	}
	a.stopConsumer(ctx)
	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.l.Warn("Redis queue stop failed", applogger.Error(err))
		}
	}
	a.l.RemoveCollector()
	a.l.Info("Shutdown complete")
}

func (a *App) stopConsumer(ctx context.Context) {
	if a.consumer == nil {
		return
	}
	if err := a.consumer.Stop(ctx); err != nil {
		a.l.Warn("Kafka consumer stop failed", applogger.Error(err))
	}
}
