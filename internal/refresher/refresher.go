// Package refresher runs the refresh pipeline: freshness gate, bulk calendar
// fetch, index build, change detection, conditional persist.
package refresher

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eugenferber616-design/earnings-cache/internal/cache"
	"github.com/eugenferber616-design/earnings-cache/internal/config"
	"github.com/eugenferber616-design/earnings-cache/internal/index"
	"github.com/eugenferber616-design/earnings-cache/internal/model"
	"github.com/eugenferber616-design/earnings-cache/internal/runlog"
	"github.com/eugenferber616-design/earnings-cache/internal/universe"
	"github.com/eugenferber616-design/earnings-cache/pkg/finnhub"
)

// Options modify a single run.
type Options struct {
	// Force bypasses the freshness gate.
	Force bool
	// DryRun builds and diffs but writes nothing.
	DryRun bool
}

// Result is the outcome signal reported to the caller.
type Result struct {
	Outcome      model.Outcome
	Symbols      int
	RowsFetched  int
	RowsKept     int
	Malformed    int
	EmptyAnomaly bool
}

// Refresher wires the pipeline components for repeated runs.
type Refresher struct {
	cfg      *config.Config
	client   finnhub.Client
	store    *cache.Store
	universe *universe.Cache
	runs     *runlog.Log // optional
	now      func() time.Time
}

// New creates a Refresher. runs may be nil; the run log never gates the
// pipeline.
func New(cfg *config.Config, client finnhub.Client, store *cache.Store, uni *universe.Cache, runs *runlog.Log) *Refresher {
	return &Refresher{
		cfg:      cfg,
		client:   client,
		store:    store,
		universe: uni,
		runs:     runs,
		now:      time.Now,
	}
}

// Run executes one pipeline pass. On fetch failure the stored artifacts are
// left byte-for-byte untouched.
func (r *Refresher) Run(ctx context.Context, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "refresher"))
	now := r.now().UTC()

	if err := r.store.EnsureDir(); err != nil {
		return nil, err
	}

	runID := r.logStart(ctx, log)

	previous, _, err := r.store.LoadIndex()
	if err != nil {
		// A corrupt artifact is treated as a first run: refresh and replace.
		log.Warn("stored index unreadable, rebuilding from scratch", zap.Error(err))
		previous = nil
	}

	if !opts.Force {
		last := r.freshnessTimestamp(log)
		if !cache.ShouldRefresh(last, r.cfg.Cache.TTLHours, now) {
			log.Info("artifact still fresh, skipping fetch",
				zap.Int("ttl_hours", cache.NormalizeTTL(r.cfg.Cache.TTLHours)),
				zap.Timep("last", last),
			)
			res := &Result{Outcome: model.OutcomeSkipped, Symbols: len(previous)}
			r.logComplete(ctx, log, runID, res)
			return res, nil
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	windowStart := today.AddDate(0, 0, -r.cfg.Cache.DaysBack)
	windowEnd := today.AddDate(0, 0, r.cfg.Cache.DaysAhead)

	// Universe trouble degrades to an unfiltered index, never a failed run.
	symbols, err := r.universe.Load(ctx, r.cfg.Universe.ExchangeList(), now)
	if err != nil {
		log.Warn("symbol universe unavailable, indexing unfiltered", zap.Error(err))
		symbols = nil
	}

	entries, err := finnhub.FetchWindow(ctx, r.client, windowStart, windowEnd)
	if err != nil {
		err = eris.Wrap(err, "refresher: calendar fetch")
		r.logFail(ctx, log, runID, err)
		return &Result{Outcome: model.OutcomeFailed}, err
	}

	kept := entries
	if len(symbols) > 0 {
		kept = make([]finnhub.CalendarEntry, 0, len(entries))
		for _, e := range entries {
			if _, ok := symbols[e.Symbol]; ok {
				kept = append(kept, e)
			}
		}
	}

	referenceDay := today.Format(finnhub.DayFormat)
	built := index.Build(kept, referenceDay)

	res := &Result{
		Symbols:     len(built.Index),
		RowsFetched: len(entries),
		RowsKept:    len(kept),
		Malformed:   built.Malformed,
	}

	if len(previous) > 0 && len(built.Index) == 0 {
		// All upcoming earnings vanishing at once points at the provider,
		// not the market.
		res.EmptyAnomaly = true
		log.Warn("previously non-empty index became empty",
			zap.Int("previous_symbols", len(previous)),
			zap.Int("rows_fetched", len(entries)),
		)
	}

	changed, err := index.HasChanged(previous, built.Index)
	if err != nil {
		r.logFail(ctx, log, runID, err)
		return &Result{Outcome: model.OutcomeFailed}, err
	}
	if changed {
		res.Outcome = model.OutcomeUpdated
	} else {
		res.Outcome = model.OutcomeUnchanged
	}

	if opts.DryRun {
		log.Info("dry run, skipping writes",
			zap.String("outcome", string(res.Outcome)),
			zap.Int("symbols", res.Symbols),
		)
		r.logComplete(ctx, log, runID, res)
		return res, nil
	}

	if changed {
		encoded, err := index.Encode(built.Index)
		if err != nil {
			r.logFail(ctx, log, runID, err)
			return &Result{Outcome: model.OutcomeFailed}, err
		}
		if err := r.store.WriteIndex(encoded); err != nil {
			r.logFail(ctx, log, runID, err)
			return &Result{Outcome: model.OutcomeFailed}, err
		}
		log.Info("index updated", zap.Int("symbols", res.Symbols))
	} else {
		log.Info("index unchanged, keeping existing artifact", zap.Int("symbols", res.Symbols))
	}

	stats := model.Stats{
		Symbols:         res.Symbols,
		DaysAhead:       r.cfg.Cache.DaysAhead,
		DaysBack:        r.cfg.Cache.DaysBack,
		UniverseCount:   len(symbols),
		RowsFetched:     res.RowsFetched,
		RowsAfterFilter: res.RowsKept,
		MalformedRows:   res.Malformed,
		LastUpdatedUTC:  now.Format("2006-01-02T15:04:05Z"),
	}
	if err := r.store.WriteStats(stats); err != nil {
		log.Warn("failed to write stats", zap.Error(err))
	}
	if err := r.store.WriteLastRun(now); err != nil {
		log.Warn("failed to write last run marker", zap.Error(err))
	}

	r.logComplete(ctx, log, runID, res)
	return res, nil
}

// freshnessTimestamp picks the timestamp the gate compares against: the
// last completed run when recorded, else the index file's mtime. Unchanged
// runs bump last_run.txt without rewriting the index, so the marker is what
// keeps an idle-but-fresh cache from refetching every invocation.
func (r *Refresher) freshnessTimestamp(log *zap.Logger) *time.Time {
	last, err := r.store.LastRun()
	if err != nil {
		log.Warn("unreadable last run marker", zap.Error(err))
	}
	if last != nil {
		return last
	}
	mtime, err := r.store.IndexModTime()
	if err != nil {
		log.Warn("unreadable index mtime", zap.Error(err))
		return nil
	}
	return mtime
}

func (r *Refresher) logStart(ctx context.Context, log *zap.Logger) string {
	if r.runs == nil {
		return ""
	}
	id, err := r.runs.Start(ctx)
	if err != nil {
		log.Warn("run log unavailable", zap.Error(err))
		return ""
	}
	return id
}

func (r *Refresher) logComplete(ctx context.Context, log *zap.Logger, id string, res *Result) {
	if r.runs == nil || id == "" {
		return
	}
	err := r.runs.Complete(ctx, id, runlog.Result{
		Outcome:      res.Outcome,
		Symbols:      res.Symbols,
		RowsFetched:  res.RowsFetched,
		RowsKept:     res.RowsKept,
		EmptyAnomaly: res.EmptyAnomaly,
	})
	if err != nil {
		log.Warn("failed to record run", zap.Error(err))
	}
}

func (r *Refresher) logFail(ctx context.Context, log *zap.Logger, id string, runErr error) {
	if r.runs == nil || id == "" {
		return
	}
	if err := r.runs.Fail(ctx, id, runErr.Error()); err != nil {
		log.Warn("failed to record run failure", zap.Error(err))
	}
}
