// Package index turns raw calendar rows into the per-symbol next-earnings
// index and decides whether a rebuilt index differs from the stored one.
package index

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenferber616-design/earnings-cache/internal/model"
	"github.com/eugenferber616-design/earnings-cache/pkg/finnhub"
)

// Result holds a built index together with row-level accounting for stats.
type Result struct {
	Index     model.Index
	Malformed int // rows missing symbol or date, or with an unparseable date
	Past      int // rows strictly before the reference day
}

// Build derives the per-symbol index from raw calendar rows. For each symbol
// it keeps the entry with the earliest date on or after referenceDay
// (YYYY-MM-DD); symbols with only past dates are dropped. When several rows
// share the winning date, the first one in input order supplies the session
// hint and extras, which keeps the output deterministic for identical input
// order. Malformed rows are skipped individually, never fatal.
func Build(entries []finnhub.CalendarEntry, referenceDay string) Result {
	res := Result{Index: model.Index{}}

	grouped := make(map[string][]finnhub.CalendarEntry)
	for _, e := range entries {
		if e.Symbol == "" || e.Date == "" {
			res.Malformed++
			zap.L().Debug("skipping malformed calendar row",
				zap.String("symbol", e.Symbol),
				zap.String("date", e.Date),
			)
			continue
		}
		if _, err := time.Parse(finnhub.DayFormat, e.Date); err != nil {
			res.Malformed++
			zap.L().Debug("skipping calendar row with bad date",
				zap.String("symbol", e.Symbol),
				zap.String("date", e.Date),
			)
			continue
		}
		// Fixed-format dates order chronologically as strings.
		if e.Date < referenceDay {
			res.Past++
			continue
		}
		grouped[e.Symbol] = append(grouped[e.Symbol], e)
	}

	for sym, group := range grouped {
		best := group[0]
		for _, e := range group[1:] {
			if e.Date < best.Date {
				best = e
			}
		}

		count := 0
		for _, e := range group {
			if e.Date == best.Date {
				count++
			}
		}

		res.Index[sym] = model.IndexEntry{
			Symbol:           sym,
			NextEarningsDate: best.Date,
			Time:             NormalizeTimeFlag(best.Hour),
			SameDayCount:     count,
			Extra:            best.Extra,
		}
	}

	return res
}

// NormalizeTimeFlag maps the provider's session hint to one of bmo (before
// market open), amc (after market close), or tbd.
func NormalizeTimeFlag(hint string) string {
	switch v := strings.ToLower(strings.TrimSpace(hint)); v {
	case "bmo", "amc":
		return v
	default:
		return "tbd"
	}
}
