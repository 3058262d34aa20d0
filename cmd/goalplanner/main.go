package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"goalplanner/internal/cli"
	"goalplanner/internal/config"
	apphttp "goalplanner/internal/http"
	"goalplanner/internal/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, logCloser := cli.SetupLogger(cfg, log.ComponentApp, os.Stdout)
	err = run(cfg, logger)
	_ = logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	rt, err := cli.Bootstrap(ctx, cfg, logger, cli.Options{Advisories: true})
	if err != nil {
		logger.Error("Failed to initialize", log.FieldError, err)
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to release resources", log.FieldError, err)
		}
	}()

	reconciler := rt.Reconciler()

	opts := []apphttp.Option{
		apphttp.WithReloader(rt.Reload),
		apphttp.WithFarThreshold(cfg.FarThresholdDays),
		apphttp.WithCORSOrigins(cfg.CORSAllowedOrigins),
		apphttp.WithLogger(logger),
	}
	if reconciler != nil {
		opts = append(opts, apphttp.WithSyncMonitor(reconciler))
	}
	srv := apphttp.NewServer(":"+cfg.Port, rt.Store, opts...)

	// A load without any fallback keeps the server up but not ready until a
	// later POST /sync/reload succeeds.
	res, err := rt.Reload(ctx)
	if err != nil {
		logger.Error("Initial goal load failed, serving an empty collection",
			log.FieldOperation, log.OpLoad, log.FieldError, err)
	} else {
		srv.SetReady(true)
		logger.Info("Goals loaded",
			log.FieldOperation, log.OpLoad, "count", res.Count, log.FieldDegraded, res.Degraded)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting goalplanner server",
			"port", cfg.Port,
			"backend", cfg.RemoteBackend,
			"journal", rt.Repo != nil,
			"advisories", rt.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if reconciler != nil {
		g.Go(func() error {
			if err := reconciler.Start(gctx); err != nil {
				return fmt.Errorf("start reconciler: %w", err)
			}
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return reconciler.Stop(stopCtx)
		})
	}

	if rt.Publisher != nil {
		g.Go(func() error {
			return rt.Publisher.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		return err
	}
	logger.Info("Server exited")
	return nil
}
