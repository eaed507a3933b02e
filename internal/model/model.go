package model

import "encoding/json"

// Outcome classifies a completed refresh run.
type Outcome string

const (
	// OutcomeSkipped means the cached artifact was still fresh; nothing was fetched.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the calendar fetch failed; the artifact was left untouched.
	OutcomeFailed Outcome = "failed"
	// OutcomeUnchanged means a rebuilt index matched the stored one; no write.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeUpdated means the rebuilt index differed and was written.
	OutcomeUpdated Outcome = "updated"
)

// IndexEntry is the persisted record for one symbol: its nearest upcoming
// earnings event plus any provider fields passed through untouched.
type IndexEntry struct {
	Symbol           string                     `json:"symbol"`
	NextEarningsDate string                     `json:"nextEarningsDate"`
	Time             string                     `json:"time"`
	SameDayCount     int                        `json:"sameDayCount"`
	Extra            map[string]json.RawMessage `json:"extra,omitempty"`
}

// Index maps a symbol to its next known earnings event. Key order carries no
// meaning; consumers look up by symbol only.
type Index map[string]IndexEntry

// Stats summarizes the most recent run that executed the index builder. It is
// written every such run, independent of whether the index itself changed.
type Stats struct {
	Symbols         int    `json:"count"`
	DaysAhead       int    `json:"daysAhead"`
	DaysBack        int    `json:"daysBack"`
	UniverseCount   int    `json:"universeCount,omitempty"`
	RowsFetched     int    `json:"calendarRowsFetched"`
	RowsAfterFilter int    `json:"calendarRowsAfterFilter"`
	MalformedRows   int    `json:"malformedRows,omitempty"`
	LastUpdatedUTC  string `json:"lastUpdatedUtc"`
}
