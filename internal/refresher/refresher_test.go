package refresher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenferber616-design/earnings-cache/internal/cache"
	"github.com/eugenferber616-design/earnings-cache/internal/config"
	"github.com/eugenferber616-design/earnings-cache/internal/model"
	"github.com/eugenferber616-design/earnings-cache/internal/runlog"
	"github.com/eugenferber616-design/earnings-cache/internal/universe"
	"github.com/eugenferber616-design/earnings-cache/pkg/finnhub"
)

var testNow = time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)

type fakeClient struct {
	rows          []finnhub.CalendarEntry
	calendarErr   error
	listings      map[string][]finnhub.SymbolInfo
	calendarCalls int
}

func (f *fakeClient) EarningsCalendar(ctx context.Context, from, to string) ([]finnhub.CalendarEntry, error) {
	f.calendarCalls++
	if f.calendarErr != nil {
		return nil, f.calendarErr
	}
	var out []finnhub.CalendarEntry
	for _, r := range f.rows {
		if r.Date >= from && r.Date <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeClient) StockSymbols(ctx context.Context, exchange string) ([]finnhub.SymbolInfo, error) {
	return f.listings[exchange], nil
}

type fixture struct {
	refresher *Refresher
	client    *fakeClient
	store     *cache.Store
	dir       string
}

func newFixture(t *testing.T, client *fakeClient) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Cache: config.CacheConfig{
			TTLHours:  20,
			DaysAhead: 120,
			DaysBack:  1,
			OutputDir: dir,
		},
		Universe: config.UniverseConfig{
			Exchanges: "US",
			TTLDays:   7,
			CachePath: filepath.Join(dir, "symbols_cache.json"),
		},
	}

	store := cache.NewStore(dir)
	uni := universe.New(cfg.Universe.CachePath, cfg.Universe.TTLDays, client)

	r := New(cfg, client, store, uni, nil)
	r.now = func() time.Time { return testNow }

	return &fixture{refresher: r, client: client, store: store, dir: dir}
}

func futureRows() []finnhub.CalendarEntry {
	return []finnhub.CalendarEntry{
		{Symbol: "AAPL", Date: "2024-05-01", Hour: "amc"},
		{Symbol: "AAPL", Date: "2024-08-01", Hour: "bmo"},
		{Symbol: "MSFT", Date: "2024-04-01", Hour: "amc"}, // past, dropped
	}
}

func listings(symbols ...string) map[string][]finnhub.SymbolInfo {
	infos := make([]finnhub.SymbolInfo, 0, len(symbols))
	for _, s := range symbols {
		infos = append(infos, finnhub.SymbolInfo{Symbol: s, Type: "Common Stock"})
	}
	return map[string][]finnhub.SymbolInfo{"US": infos}
}

func TestFirstRunUpdates(t *testing.T) {
	f := newFixture(t, &fakeClient{rows: futureRows(), listings: listings("AAPL", "MSFT")})

	res, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeUpdated, res.Outcome)
	assert.Equal(t, 1, res.Symbols)
	assert.False(t, res.EmptyAnomaly)

	idx, _, err := f.store.LoadIndex()
	require.NoError(t, err)
	require.Len(t, idx, 1)
	assert.Equal(t, "2024-05-01", idx["AAPL"].NextEarningsDate)
	assert.Equal(t, "amc", idx["AAPL"].Time)

	stats, err := f.store.LoadStats()
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Symbols)

	last, err := f.store.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(testNow))
}

func TestSkippedWhenFresh(t *testing.T) {
	f := newFixture(t, &fakeClient{rows: futureRows(), listings: listings("AAPL", "MSFT")})

	_, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)
	callsAfterFirst := f.client.calendarCalls

	f.refresher.now = func() time.Time { return testNow.Add(time.Hour) }
	res, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSkipped, res.Outcome)
	assert.Equal(t, 1, res.Symbols, "skip reports the stored symbol count")
	assert.Equal(t, callsAfterFirst, f.client.calendarCalls, "a skipped run must not call the provider")
}

func TestForceBypassesGate(t *testing.T) {
	f := newFixture(t, &fakeClient{rows: futureRows(), listings: listings("AAPL", "MSFT")})

	_, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)
	callsAfterFirst := f.client.calendarCalls

	f.refresher.now = func() time.Time { return testNow.Add(time.Hour) }
	res, err := f.refresher.Run(context.Background(), Options{Force: true})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeUnchanged, res.Outcome)
	assert.Greater(t, f.client.calendarCalls, callsAfterFirst)
}

func TestUnchangedLeavesIndexUntouched(t *testing.T) {
	f := newFixture(t, &fakeClient{rows: futureRows(), listings: listings("AAPL", "MSFT")})

	_, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(f.dir, cache.IndexFile))
	require.NoError(t, err)

	// Past the TTL the gate lets the run through; identical content still
	// must not rewrite the index.
	f.refresher.now = func() time.Time { return testNow.Add(21 * time.Hour) }
	res, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeUnchanged, res.Outcome)
	after, err := os.ReadFile(filepath.Join(f.dir, cache.IndexFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFetchFailureLeavesArtifactsUntouched(t *testing.T) {
	client := &fakeClient{rows: futureRows(), listings: listings("AAPL", "MSFT")}
	f := newFixture(t, client)

	_, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)
	indexBefore, err := os.ReadFile(filepath.Join(f.dir, cache.IndexFile))
	require.NoError(t, err)
	lastBefore, err := f.store.LastRun()
	require.NoError(t, err)

	client.calendarErr = eris.New("http 500")
	f.refresher.now = func() time.Time { return testNow.Add(21 * time.Hour) }

	res, err := f.refresher.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, model.OutcomeFailed, res.Outcome)

	indexAfter, err := os.ReadFile(filepath.Join(f.dir, cache.IndexFile))
	require.NoError(t, err)
	assert.Equal(t, indexBefore, indexAfter, "failed fetch must leave the index byte-for-byte unchanged")

	lastAfter, err := f.store.LastRun()
	require.NoError(t, err)
	assert.True(t, lastAfter.Equal(*lastBefore), "failed fetch must not advance the run marker")
}

func TestEmptyResultAnomaly(t *testing.T) {
	client := &fakeClient{rows: futureRows(), listings: listings("AAPL", "MSFT")}
	f := newFixture(t, client)

	_, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)

	// The provider suddenly reports nothing upcoming for anyone.
	client.rows = nil
	f.refresher.now = func() time.Time { return testNow.Add(21 * time.Hour) }

	res, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeUpdated, res.Outcome)
	assert.True(t, res.EmptyAnomaly)
	assert.Zero(t, res.Symbols)
}

func TestDryRunWritesNothing(t *testing.T) {
	f := newFixture(t, &fakeClient{rows: futureRows(), listings: listings("AAPL", "MSFT")})

	res, err := f.refresher.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeUpdated, res.Outcome)

	_, err = os.Stat(filepath.Join(f.dir, cache.IndexFile))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.dir, cache.StatsFile))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.dir, cache.LastRunFile))
	assert.True(t, os.IsNotExist(err))
}

func TestUniverseFilterDropsUnknownSymbols(t *testing.T) {
	rows := []finnhub.CalendarEntry{
		{Symbol: "AAPL", Date: "2024-05-01"},
		{Symbol: "ZZZZ", Date: "2024-05-02"},
	}
	f := newFixture(t, &fakeClient{rows: rows, listings: listings("AAPL")})

	res, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.RowsFetched)
	assert.Equal(t, 1, res.RowsKept)
	idx, _, err := f.store.LoadIndex()
	require.NoError(t, err)
	assert.Contains(t, idx, "AAPL")
	assert.NotContains(t, idx, "ZZZZ")
}

func TestEmptyUniverseDisablesFiltering(t *testing.T) {
	rows := []finnhub.CalendarEntry{{Symbol: "ZZZZ", Date: "2024-05-02"}}
	f := newFixture(t, &fakeClient{rows: rows}) // no listings at all

	res, err := f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.RowsKept, "an empty universe must not empty the index")
	idx, _, err := f.store.LoadIndex()
	require.NoError(t, err)
	assert.Contains(t, idx, "ZZZZ")
}

func TestCorruptIndexTreatedAsFirstRun(t *testing.T) {
	f := newFixture(t, &fakeClient{rows: futureRows(), listings: listings("AAPL", "MSFT")})
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, cache.IndexFile), []byte("{broken"), 0o644))

	res, err := f.refresher.Run(context.Background(), Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeUpdated, res.Outcome)

	idx, _, err := f.store.LoadIndex()
	require.NoError(t, err)
	assert.Contains(t, idx, "AAPL")
}

func TestRunsAreRecorded(t *testing.T) {
	client := &fakeClient{rows: futureRows(), listings: listings("AAPL", "MSFT")}
	f := newFixture(t, client)

	runs, err := runlog.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer runs.Close()
	f.refresher.runs = runs

	_, err = f.refresher.Run(context.Background(), Options{})
	require.NoError(t, err)

	client.calendarErr = eris.New("boom")
	f.refresher.now = func() time.Time { return testNow.Add(21 * time.Hour) }
	_, err = f.refresher.Run(context.Background(), Options{})
	require.Error(t, err)

	entries, err := runs.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.OutcomeFailed, entries[0].Outcome)
	assert.Equal(t, model.OutcomeUpdated, entries[1].Outcome)
	assert.Equal(t, 1, entries[1].Symbols)
}
