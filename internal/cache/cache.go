// Package cache keeps fetched ACS tract tables in a local SQLite database so
// repeated runs over the same state and variables skip the API.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/census-enrich/internal/model"
)

// StatsCache stores StatsTables keyed by year, state and variable codes.
type StatsCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens (creating if needed) the cache database at path. A ttl of zero
// keeps entries forever.
func Open(path string, ttl time.Duration) (*StatsCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "cache: exec %s", pragma)
		}
	}
	return &StatsCache{db: db, ttl: ttl, now: time.Now}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS acs_tables (
	key        TEXT PRIMARY KEY,
	year       INTEGER NOT NULL,
	state      TEXT NOT NULL,
	payload    TEXT NOT NULL,
	fetched_at INTEGER NOT NULL,
	expires_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_acs_tables_state ON acs_tables(year, state);
`

// Migrate creates the cache schema.
func (c *StatsCache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "cache: migrate")
}

// Close closes the database.
func (c *StatsCache) Close() error {
	return c.db.Close()
}

// Key identifies a table by year, state and the sorted variable codes.
func Key(year int, state string, codes []string) string {
	sorted := slices.Clone(codes)
	slices.Sort(sorted)
	return fmt.Sprintf("%d|%s|%s", year, state, strings.Join(sorted, ","))
}

// storedTable is the JSON payload. NaN has no JSON form, so values are
// pointers with nil standing for NaN.
type storedTable struct {
	Year  int         `json:"year"`
	State string      `json:"state"`
	Codes []string    `json:"codes"`
	Rows  []storedRow `json:"rows"`
}

type storedRow struct {
	GEOID  string              `json:"geoid"`
	Name   string              `json:"name"`
	Values map[string]*float64 `json:"values"`
}

// Get returns the cached table for key, or nil when absent or expired.
func (c *StatsCache) Get(ctx context.Context, key string) (*model.StatsTable, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT payload FROM acs_tables
		 WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, c.now().Unix(),
	)

	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: get %s", key)
	}

	var st storedTable
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, eris.Wrap(err, "cache: unmarshal table")
	}

	out := &model.StatsTable{Year: st.Year, State: st.State, Codes: st.Codes, Rows: make([]model.TractStats, len(st.Rows))}
	for i, r := range st.Rows {
		vals := make(map[string]float64, len(r.Values))
		for k, v := range r.Values {
			if v == nil {
				vals[k] = math.NaN()
				continue
			}
			vals[k] = *v
		}
		out.Rows[i] = model.TractStats{GEOID: r.GEOID, Name: r.Name, Values: vals}
	}
	return out, nil
}

// Put stores table under key, replacing any previous entry.
func (c *StatsCache) Put(ctx context.Context, key string, table *model.StatsTable) error {
	st := storedTable{Year: table.Year, State: table.State, Codes: table.Codes, Rows: make([]storedRow, len(table.Rows))}
	for i, r := range table.Rows {
		vals := make(map[string]*float64, len(r.Values))
		for k, v := range r.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				vals[k] = nil
				continue
			}
			vals[k] = &v
		}
		st.Rows[i] = storedRow{GEOID: r.GEOID, Name: r.Name, Values: vals}
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "cache: marshal table")
	}

	now := c.now()
	var expires any
	if c.ttl > 0 {
		expires = now.Add(c.ttl).Unix()
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO acs_tables (key, year, state, payload, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		key, table.Year, table.State, string(payload), now.Unix(), expires,
	)
	return eris.Wrapf(err, "cache: put %s", key)
}

// Purge deletes expired entries and returns how many were removed.
func (c *StatsCache) Purge(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM acs_tables WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		c.now().Unix(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "cache: purge expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "cache: rows affected")
}
