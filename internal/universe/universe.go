// Package universe maintains the cached symbol universe: every non-ETF,
// non-fund symbol listed on the configured exchanges. Calendar rows outside
// the universe are dropped before indexing.
package universe

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eugenferber616-design/earnings-cache/pkg/finnhub"
)

// DefaultTTLDays is how long a cached universe stays valid. Symbol listings
// churn far slower than the earnings calendar.
const DefaultTTLDays = 7

type document struct {
	Meta    meta     `json:"meta"`
	Symbols []string `json:"symbols"`
}

type meta struct {
	Exchanges    []string `json:"exchanges"`
	GeneratedUTC string   `json:"generatedUtc"`
}

// Cache loads the symbol universe from disk when fresh, refetching from the
// provider otherwise.
type Cache struct {
	path   string
	ttl    time.Duration
	client finnhub.Client
}

// New creates a universe cache persisted at path. ttlDays <= 0 falls back to
// DefaultTTLDays.
func New(path string, ttlDays int, client finnhub.Client) *Cache {
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}
	return &Cache{
		path:   path,
		ttl:    time.Duration(ttlDays) * 24 * time.Hour,
		client: client,
	}
}

// Load returns the symbol set for the given exchanges. The disk cache is
// reused when it is younger than the TTL and was built for the same exchange
// set; otherwise the listings are refetched. A single exchange failing is a
// warning, not fatal. An empty result is never cached and yields nil, which
// callers treat as "no filtering".
func (c *Cache) Load(ctx context.Context, exchanges []string, now time.Time) (map[string]struct{}, error) {
	if cached := c.loadCached(exchanges, now); cached != nil {
		return cached, nil
	}

	log := zap.L().With(zap.String("component", "universe"))

	var symbols []string
	for _, ex := range exchanges {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}
		listed, err := c.client.StockSymbols(ctx, ex)
		if err != nil {
			log.Warn("symbol listing failed, skipping exchange",
				zap.String("exchange", ex),
				zap.Error(err),
			)
			continue
		}
		for _, s := range listed {
			sym := strings.TrimSpace(s.Symbol)
			if sym == "" {
				continue
			}
			typ := strings.ToLower(s.Type)
			if strings.Contains(typ, "etf") || strings.Contains(typ, "fund") {
				continue
			}
			symbols = append(symbols, sym)
		}
	}

	sort.Strings(symbols)
	symbols = slices.Compact(symbols)

	if len(symbols) == 0 {
		log.Warn("symbol universe came back empty, filtering disabled for this run")
		return nil, nil
	}

	if err := c.write(exchanges, symbols, now); err != nil {
		// A stale cache only costs extra provider calls next run.
		log.Warn("failed to cache symbol universe", zap.Error(err))
	}

	return toSet(symbols), nil
}

func (c *Cache) loadCached(exchanges []string, now time.Time) map[string]struct{} {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil
	}
	if now.Sub(info.ModTime()) >= c.ttl {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		zap.L().Warn("corrupt universe cache, refetching", zap.Error(err))
		return nil
	}
	if !sameSet(doc.Meta.Exchanges, exchanges) {
		return nil
	}
	if len(doc.Symbols) == 0 {
		return nil
	}
	return toSet(doc.Symbols)
}

func (c *Cache) write(exchanges, symbols []string, now time.Time) error {
	doc := document{
		Meta: meta{
			Exchanges:    exchanges,
			GeneratedUTC: now.UTC().Format("2006-01-02T15:04:05Z"),
		},
		Symbols: symbols,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "universe: marshal")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "universe: create dir")
	}
	tmp, err := os.CreateTemp(dir, ".universe-*.tmp")
	if err != nil {
		return eris.Wrap(err, "universe: create temp")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrap(err, "universe: write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "universe: close temp")
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "universe: rename temp")
	}
	return nil
}

func sameSet(a, b []string) bool {
	as := make([]string, 0, len(a))
	for _, s := range a {
		if s = strings.TrimSpace(s); s != "" {
			as = append(as, s)
		}
	}
	bs := make([]string, 0, len(b))
	for _, s := range b {
		if s = strings.TrimSpace(s); s != "" {
			bs = append(bs, s)
		}
	}
	sort.Strings(as)
	sort.Strings(bs)
	return slices.Equal(as, bs)
}

func toSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}
