package finnhub

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DayFormat is the fixed-precision calendar date layout used throughout.
const DayFormat = "2006-01-02"

// DateRange is an inclusive from/to pair in YYYY-MM-DD form.
type DateRange struct {
	From string
	To   string
}

// MonthRanges splits the inclusive [start, end] window into per-month
// sub-ranges. The provider caps rows per response, so large windows must be
// requested month by month; the pieces cover the window exactly, with no gaps
// or overlaps.
func MonthRanges(start, end time.Time) []DateRange {
	if end.Before(start) {
		return nil
	}

	var out []DateRange
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)

	for !cur.After(last) {
		next := cur.AddDate(0, 1, 0)
		monthEnd := next.AddDate(0, 0, -1)

		from := cur
		if start.After(from) {
			from = start
		}
		to := monthEnd
		if end.Before(to) {
			to = end
		}
		out = append(out, DateRange{From: from.Format(DayFormat), To: to.Format(DayFormat)})
		cur = next
	}
	return out
}

// FetchWindow retrieves every calendar row in [start, end] by issuing one
// EarningsCalendar call per month sub-range. Any sub-range failure aborts the
// whole fetch: a partial window must never masquerade as a complete one.
func FetchWindow(ctx context.Context, c Client, start, end time.Time) ([]CalendarEntry, error) {
	var all []CalendarEntry
	for _, r := range MonthRanges(start, end) {
		rows, err := c.EarningsCalendar(ctx, r.From, r.To)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("fetched calendar chunk",
			zap.String("from", r.From),
			zap.String("to", r.To),
			zap.Int("rows", len(rows)),
		)
		all = append(all, rows...)
	}
	return all, nil
}
