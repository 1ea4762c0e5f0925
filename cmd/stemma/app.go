package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/FocuswithJustin/JuniperStemma/core/align"
	"github.com/FocuswithJustin/JuniperStemma/core/collation"
	"github.com/FocuswithJustin/JuniperStemma/internal/collatex"
	"github.com/FocuswithJustin/JuniperStemma/internal/config"
	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
	"github.com/FocuswithJustin/JuniperStemma/internal/metrics"
	"github.com/FocuswithJustin/JuniperStemma/internal/pipeline"
	"github.com/FocuswithJustin/JuniperStemma/internal/store"
)

// App carries the resolved configuration and lazily opened store into
// command Run methods.
type App struct {
	Out io.Writer
	Cfg *config.Config

	once  sync.Once
	store store.Store
	svc   *pipeline.Service
	err   error
}

func newApp(g Globals, out io.Writer) (*App, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	g.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.InitLogger(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))
	return &App{Out: out, Cfg: cfg}, nil
}

// apply overlays the flags that were set.
func (g Globals) apply(cfg *config.Config) {
	if g.DB != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = g.DB
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Logging.Format = g.LogFormat
	}
	if g.Aligner != "" {
		cfg.Aligner.Kind = g.Aligner
	}
	if g.CollateXURL != "" {
		cfg.Aligner.CollateXURL = g.CollateXURL
		if g.Aligner == "" {
			cfg.Aligner.Kind = "collatex"
		}
	}
}

// Service opens the store and wires the pipeline on first use.
func (a *App) Service(ctx context.Context) (*pipeline.Service, error) {
	a.once.Do(func() {
		a.store, a.err = openStore(ctx, a.Cfg.Store)
		if a.err != nil {
			return
		}
		a.svc = newService(a.Cfg, a.store)
	})
	return a.svc, a.err
}

// Close releases the store if it was opened.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newAligner(cfg config.AlignerConfig) collation.Aligner {
	if cfg.Kind == "collatex" {
		return collatex.New(cfg.CollateXURL).WithTimeout(cfg.Timeout)
	}
	return align.New()
}

func newService(cfg *config.Config, st store.Store) *pipeline.Service {
	svc := pipeline.New(st, newAligner(cfg.Aligner), cfg.Aligner.CacheSize).WithMetrics(metrics.Default())
	svc.Collator.Workers = cfg.Aligner.Workers
	svc.Collator.Adapter.Options = collation.Options{
		Segmentation: cfg.Aligner.Segmentation,
		NearMatch:    cfg.Aligner.NearMatch,
	}
	svc.DistanceOptions = cfg.Distance.Options
	svc.Strategy = cfg.StrategyValue()
	return svc
}
