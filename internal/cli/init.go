// Package cli wires the components shared by cmd/goalplanner and
// cmd/goalctl: configuration, logging, the remote backend, the SQLite
// journal and the goal store.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"goalplanner/internal/amqp"
	"goalplanner/internal/backend"
	"goalplanner/internal/config"
	"goalplanner/internal/log"
	"goalplanner/internal/remote"
	"goalplanner/internal/services"
	"goalplanner/internal/storage"
	"goalplanner/internal/store"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads configuration from the environment and validates it.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger from cfg and makes it the default.
// An unparsable level falls back to info; Validate reports it separately.
func SetupLogger(cfg *config.Config, component string, out io.Writer) (*log.Logger, io.Closer) {
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger, closer := log.New(log.Config{
		Level:     level,
		Component: component,
		Output:    out,
		File:      log.FileConfig{Path: cfg.LogFile},
	})
	log.SetDefault(logger)
	return logger, closer
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Options select the optional parts of a Runtime.
type Options struct {
	// Advisories publishes store advisories to AMQP when AMQP_URL is set.
	Advisories bool
}

// Runtime holds the wired components. Repo, Broker and Publisher are nil when
// the corresponding feature is disabled.
type Runtime struct {
	Config    *config.Config
	Logger    *log.Logger
	Remote    remote.Client
	Store     *store.Store
	Repo      *storage.SQLiteRepository
	Broker    *amqp.Client
	Publisher *amqp.Publisher

	closers []func() error
}

// Bootstrap creates the backend, the optional journal and broker, and the
// store. The collection is not loaded; call Reload.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger, opts Options) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentRemote).Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", bcfg.Type, err)
	}
	rt.Remote = res.Client
	if res.Cleanup != nil {
		rt.closers = append(rt.closers, res.Cleanup)
	}

	storeLogger := logger.WithComponent(log.ComponentStore).Slog()
	notifiers := store.Notifiers{store.LogNotifier(storeLogger)}
	storeOpts := []store.Option{store.WithLogger(storeLogger)}

	if cfg.SQLiteDBPath != "" {
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("failed to open sqlite journal: %w", err)
		}
		rt.Repo = repo
		rt.closers = append(rt.closers, repo.Close)
		storeOpts = append(storeOpts, store.WithJournal(repo), store.WithSnapshots(repo))
		logger.Info("SQLite journal enabled", "path", cfg.SQLiteDBPath)
	}

	if opts.Advisories && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, advisories are only logged", log.FieldError, err)
		} else {
			rt.Broker = client
			rt.Publisher = amqp.NewPublisher(client, 256)
			rt.closers = append(rt.closers, client.Close)
			notifiers = append(notifiers, rt.Publisher)
			logger.Info("AMQP advisories enabled", "exchange", cfg.AMQPExchange)
		}
	}

	storeOpts = append(storeOpts, store.WithNotifier(notifiers))
	rt.Store = store.New(rt.Remote, storeOpts...)
	return rt, nil
}

// Reload fetches the collection, substituting the SQLite snapshot or the seed
// file when the remote service is unavailable.
func (rt *Runtime) Reload(ctx context.Context) (store.LoadResult, error) {
	var snapshots backend.SnapshotLoader
	if rt.Repo != nil {
		snapshots = rt.Repo
	}
	fallback := backend.Fallback(ctx, snapshots, rt.Config.SeedFile, rt.Logger.WithComponent(log.ComponentBackend).Slog())
	return rt.Store.Load(ctx, fallback)
}

// Reconciler returns a reconciler over the journal, or nil when the journal
// is disabled.
func (rt *Runtime) Reconciler() *services.Reconciler {
	if rt.Repo == nil {
		return nil
	}
	return services.NewReconciler(rt.Repo, rt.Remote, rt.Store, services.ReconcilerConfig{
		PollInterval: rt.Config.SyncInterval,
		BatchSize:    rt.Config.SyncBatchSize,
		MaxRetries:   rt.Config.SyncMaxRetries,
	})
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
