package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/mattjoyce/hookd/internal/catalog"
	"github.com/mattjoyce/hookd/internal/config"
	"github.com/mattjoyce/hookd/internal/dispatch"
	"github.com/mattjoyce/hookd/internal/log"
	"github.com/mattjoyce/hookd/internal/registry"
	"github.com/mattjoyce/hookd/internal/storage"
)

// env is the wiring shared by commands: loaded config, optional state
// database, and the registration source selected by config.
type env struct {
	cfg        *config.Config
	configPath string
	db         *sql.DB
	store      *storage.RegistrationStore
	journal    *storage.Journal
	source     registry.Source
	catalog    *catalog.Catalog
}

func loadConfig(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return nil, "", fmt.Errorf("failed to discover config: %w", err)
		}
		configPath = discovered
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	log.SetupWriter(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, configPath, nil
}

// openEnv loads configuration and, when needDB is set or the registration
// source is sqlite, opens the state database.
func openEnv(ctx context.Context, configPath string, needDB bool) (*env, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, configPath: resolved, source: cfg, catalog: catalog.Default()}

	if needDB || cfg.Source == config.SourceSQLite {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open state database %s: %w", cfg.State.Path, err)
		}
		e.db = db
		e.store = storage.NewRegistrationStore(db)
		e.journal = storage.NewJournal(db)
	}
	if cfg.Source == config.SourceSQLite {
		e.source = e.store
	}
	return e, nil
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

// dispatcher builds a Dispatcher over the configured source, journaling to
// the state database when it is open.
func (e *env) dispatcher() *dispatch.Dispatcher {
	var opts []dispatch.Option
	if e.journal != nil {
		opts = append(opts, dispatch.WithJournal(e.journal))
	}
	return dispatch.New(e.source, e.catalog, opts...)
}

// registrations returns every registration the source would serve.
func (e *env) registrations(ctx context.Context) ([]registry.Registration, error) {
	if e.cfg.Source != config.SourceSQLite {
		return e.cfg.Handlers, nil
	}
	rows, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]registry.Registration, 0, len(rows))
	for _, r := range rows {
		if r.Active {
			out = append(out, r.Registration)
		}
	}
	return out, nil
}
