// Package runlog records the outcome of each refresh run in a local SQLite
// database. It is observability only: the pipeline never depends on it.
package runlog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/eugenferber616-design/earnings-cache/internal/model"
)

// Entry is one recorded run.
type Entry struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	Outcome      model.Outcome `json:"outcome,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Symbols      int           `json:"symbols"`
	RowsFetched  int           `json:"rows_fetched"`
	RowsKept     int           `json:"rows_kept"`
	EmptyAnomaly bool          `json:"empty_anomaly"`
	Error        string        `json:"error,omitempty"`
}

// Result holds the figures passed to Complete.
type Result struct {
	Outcome      model.Outcome
	Symbols      int
	RowsFetched  int
	RowsKept     int
	EmptyAnomaly bool
}

// Log provides read/write access to the runs table.
type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the run log database at path and applies
// migrations.
func Open(ctx context.Context, path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}

	l := &Log{db: db}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'running',
	outcome       TEXT,
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME,
	symbols       INTEGER NOT NULL DEFAULT 0,
	rows_fetched  INTEGER NOT NULL DEFAULT 0,
	rows_kept     INTEGER NOT NULL DEFAULT 0,
	empty_anomaly INTEGER NOT NULL DEFAULT 0,
	error         TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (l *Log) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Start records the beginning of a run and returns its ID.
func (l *Log) Start(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, 'running', ?)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "runlog: start run")
	}
	return id, nil
}

// Complete marks a run as finished with its outcome and figures.
func (l *Log) Complete(ctx context.Context, id string, res Result) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs
		 SET status = 'complete', outcome = ?, completed_at = ?,
		     symbols = ?, rows_fetched = ?, rows_kept = ?, empty_anomaly = ?
		 WHERE id = ?`,
		string(res.Outcome), time.Now().UTC(),
		res.Symbols, res.RowsFetched, res.RowsKept, boolToInt(res.EmptyAnomaly),
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", id)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (l *Log) Fail(ctx context.Context, id string, errMsg string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs
		 SET status = 'failed', outcome = ?, completed_at = ?, error = ?
		 WHERE id = ?`,
		string(model.OutcomeFailed), time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", id)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, status, outcome, started_at, completed_at,
		        symbols, rows_fetched, rows_kept, empty_anomaly, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome, errMsg sql.NullString
		var completedAt sql.NullTime
		var anomaly int
		if err := rows.Scan(&e.ID, &e.Status, &outcome, &e.StartedAt, &completedAt,
			&e.Symbols, &e.RowsFetched, &e.RowsKept, &anomaly, &errMsg); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if outcome.Valid {
			e.Outcome = model.Outcome(outcome.String)
		}
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		e.EmptyAnomaly = anomaly != 0
		if errMsg.Valid {
			e.Error = errMsg.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
