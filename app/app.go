// Package app wires configuration, storage, the sandbox, search and metrics
// into a ready persistence service for the command line.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/asaidimu/go-quire/blob"
	"github.com/asaidimu/go-quire/config"
	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/search"
	"github.com/asaidimu/go-quire/metrics"
	"github.com/asaidimu/go-quire/sqlite"
)

// PassphraseFunc supplies the encryption passphrase when the configured
// environment variable is empty.
type PassphraseFunc func() (string, error)

// App holds the components of one running process. The caller must Close it.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    *persistence.Persistence

	db *sqlx.DB
}

// New opens the database, migrates it, and builds the persistence service
// described by cfg.
func New(ctx context.Context, cfg *config.Config, passphrase PassphraseFunc) (*App, error) {
	logger, err := cfg.Logger()
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	blobs, err := openBlobs(ctx, cfg, passphrase)
	if err != nil {
		return nil, err
	}

	sbOpts, err := cfg.SandboxOptions(logger)
	if err != nil {
		return nil, err
	}
	sbOpts.Observer = m

	db, err := sqlite.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	interactor := sqlite.NewSQLiteInteractor(db, logger, nil)
	searchOpts := []search.Option{search.WithLogger(logger), search.WithObserver(m)}
	if cfg.Search.ShardCount > 0 {
		searchOpts = append(searchOpts, search.WithShardCount(cfg.Search.ShardCount))
	}

	store, err := persistence.NewPersistence(interactor,
		persistence.WithLogger(logger),
		persistence.WithSandbox(sandbox.New(sbOpts)),
		persistence.WithBlobStore(blobs),
		persistence.WithSearch(search.NewService(interactor, searchOpts...)),
		persistence.WithRecorder(m),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating persistence: %w", err)
	}
	if err := store.Open(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		Store:    store,
		db:       db,
	}, nil
}

func openBlobs(ctx context.Context, cfg *config.Config, passphrase PassphraseFunc) (blob.Store, error) {
	store, err := blob.New(cfg.BlobStore())
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	if !cfg.Encryption.Enabled {
		return store, nil
	}

	secret := cfg.Passphrase()
	if secret == "" && passphrase != nil {
		if secret, err = passphrase(); err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
	}
	encrypted, err := blob.OpenAgeStore(ctx, store, secret, blob.AgeOptions{})
	if err != nil {
		return nil, fmt.Errorf("unlocking blob store: %w", err)
	}
	return encrypted, nil
}

// Close releases the database and flushes the logger.
func (a *App) Close() error {
	_ = a.Logger.Sync()
	return a.db.Close()
}
