package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eugenferber616-design/earnings-cache/internal/cache"
	"github.com/eugenferber616-design/earnings-cache/internal/refresher"
	"github.com/eugenferber616-design/earnings-cache/internal/runlog"
	"github.com/eugenferber616-design/earnings-cache/internal/universe"
	"github.com/eugenferber616-design/earnings-cache/pkg/finnhub"
)

// env bundles the wired pipeline for commands that execute refresh runs.
type env struct {
	Refresher *refresher.Refresher
	Store     *cache.Store
	Runs      *runlog.Log
}

// initEnv wires the Finnhub client, artifact store, universe cache, and run
// log into a Refresher. The run log failing to open degrades to logging only.
func initEnv(ctx context.Context) (*env, error) {
	if cfg.Finnhub.Token == "" {
		return nil, eris.New("finnhub token is required (set EARNINGS_FINNHUB_TOKEN or finnhub.token)")
	}

	client := finnhub.NewClient(cfg.Finnhub.Token, finnhub.WithBaseURL(cfg.Finnhub.BaseURL))
	store := cache.NewStore(cfg.Cache.OutputDir)
	uni := universe.New(cfg.Universe.CachePath, cfg.Universe.TTLDays, client)

	runs, err := runlog.Open(ctx, cfg.Store.Path)
	if err != nil {
		zap.L().Warn("run log unavailable, continuing without it", zap.Error(err))
		runs = nil
	}

	return &env{
		Refresher: refresher.New(cfg, client, store, uni, runs),
		Store:     store,
		Runs:      runs,
	}, nil
}

// Close releases held resources.
func (e *env) Close() {
	if e.Runs != nil {
		_ = e.Runs.Close()
	}
}
