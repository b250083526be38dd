package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"securefiles/server/internal/app"
	"securefiles/server/internal/config"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/obs"
	"securefiles/server/internal/token"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	obs.Init()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Error(rootCtx, "startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	logger.Info(rootCtx, "services ready", "store", cfg.StoreDriver, "blob", cfg.BlobDriver, "env", cfg.Env)

	go runSweepLoop(rootCtx, a.Logins, logger, cfg.TokenRetention(), cfg.SweepInterval())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           a.HTTPServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(rootCtx, "listening", "addr", cfg.ListenAddr(), "base_url", cfg.BaseURL)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info(rootCtx, "shutdown requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(rootCtx, "server error", "error", err)
		}
	}

	cancelRoot()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}

// runSweepLoop purges stale login tokens once at startup and then on every
// tick until ctx is cancelled.
func runSweepLoop(ctx context.Context, logins *token.LoginEngine, log logging.Logger, retention, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	runOnce := func() {
		ctxSweep, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if _, err := logins.Sweep(ctxSweep, retention); err != nil {
			log.Error(ctx, "token sweep failed", "error", err)
		}
	}

	runOnce()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runOnce()
		}
	}
}
