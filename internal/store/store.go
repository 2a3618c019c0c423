// Package store is the persistent-store writer: SQLite in WAL mode with a
// busy timeout, prepared statements for the hot path, and a bulk-commit
// wrapper for multi-row operations. It owns the tokens/orders/events
// tables the core pipeline actually writes to; the broader schema
// spec.md §6 enumerates for external collaborators (positions, trades,
// halts, tips-ledger, quotes) belongs to components explicitly out of
// scope (order execution, the quote estimator) and is not created here.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS tokens (
	mint          TEXT PRIMARY KEY,
	first_seen_ts INTEGER,
	last_seen_ts  INTEGER,
	origin        TEXT,
	creator       TEXT,
	name          TEXT,
	symbol        TEXT,
	seen_count    INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS orders (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	client_order_id  TEXT,
	market           TEXT,
	side             TEXT,
	type             TEXT,
	status           TEXT,
	quantity_base    REAL,
	price            REAL,
	mint             TEXT,
	origin           TEXT,
	decided_ts       INTEGER,
	size_tier        TEXT,
	notes            TEXT,
	created_at       INTEGER,
	updated_at       INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_unitary_entry
	ON orders(market, type) WHERE type = 'unitary-entry';

CREATE TABLE IF NOT EXISTS events (
	ts                INTEGER,
	signature         TEXT,
	mint              TEXT,
	origin            TEXT,
	buyers            INTEGER,
	unique_funders    INTEGER,
	same_funder_ratio REAL,
	price_jumps       INTEGER,
	depth_est         REAL,
	creator           TEXT,
	snapshot_json     TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_mint ON events(mint);
`

// Store is the SQLite-backed persistent store.
type Store struct {
	db *sql.DB

	upsertTokenStmt  *sql.Stmt
	insertEventStmt  *sql.Stmt
}

// Open opens (creating if absent) the SQLite database at path, applies
// WAL mode, foreign keys, and the busy timeout, and runs the schema.
func Open(path string, busyTimeoutMs int) (*Store, error) {
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 3000
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d", path, busyTimeoutMs)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	upsertTokenStmt, err := db.Prepare(`
		INSERT INTO tokens (mint, first_seen_ts, last_seen_ts, origin, creator, name, symbol, seen_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(mint) DO UPDATE SET
			last_seen_ts = excluded.last_seen_ts,
			creator = COALESCE(excluded.creator, tokens.creator),
			seen_count = tokens.seen_count + 1
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare upsert token: %w", err)
	}

	insertEventStmt, err := db.Prepare(`
		INSERT INTO events (ts, signature, mint, origin, buyers, unique_funders, same_funder_ratio, price_jumps, depth_est, creator, snapshot_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare insert event: %w", err)
	}

	return &Store{db: db, upsertTokenStmt: upsertTokenStmt, insertEventStmt: insertEventStmt}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertToken records (or touches) the tokens row for a first-seen or
// re-observed mint.
func (s *Store) UpsertToken(ctx context.Context, mint, origin, creator string, firstSeenTs, lastSeenTs int64) error {
	_, err := s.upsertTokenStmt.ExecContext(ctx, mint, firstSeenTs, lastSeenTs, origin, nullable(creator), nil, nil)
	if err != nil {
		return fmt.Errorf("store: upsert token %s: %w", mint, err)
	}
	return nil
}

// InsertEvent persists one microstructure event snapshot row.
func (s *Store) InsertEvent(ctx context.Context, e EventRow) error {
	_, err := s.insertEventStmt.ExecContext(ctx, e.Ts, nullable(e.Signature), e.Mint, e.Origin,
		e.Buyers, e.UniqueFunders, e.SameFunderRatio, e.PriceJumps, e.DepthEst, nullable(e.Creator), e.SnapshotJSON)
	if err != nil {
		return fmt.Errorf("store: insert event %s: %w", e.Mint, err)
	}
	return nil
}

// EventRow is one row of the events table.
type EventRow struct {
	Ts              int64
	Signature       string
	Mint            string
	Origin          string
	Buyers          int
	UniqueFunders   int
	SameFunderRatio float64
	PriceJumps      int
	DepthEst        float64
	Creator         string
	SnapshotJSON    string
}

// EntryOrder is one row of the orders table, keyed on (market, "unitary-entry").
type EntryOrder struct {
	Market    string
	Status    string // dry_run|rejected
	SizeTier  string // APEX|SMALL
	Mint      string
	Origin    string
	DecidedTs int64
	Notes     string
}

// UpsertEntryRecord performs the conditional upsert step 12 of EntryEngine
// describes: insert the row if absent, or overwrite it only when the
// existing row's status is not already an accept status (so SMALL->APEX
// may overwrite but nothing ever downgrades an accept).
func (s *Store) UpsertEntryRecord(ctx context.Context, rec EntryOrder) error {
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin upsert entry record: %w", err)
	}
	defer tx.Rollback()

	var existingStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE market = ? AND type = 'unitary-entry'`, rec.Market,
	).Scan(&existingStatus)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (market, type, status, quantity_base, mint, origin, decided_ts, size_tier, notes, created_at, updated_at)
			VALUES (?, 'unitary-entry', ?, 0, ?, ?, ?, ?, ?, ?, ?)
		`, rec.Market, rec.Status, rec.Mint, rec.Origin, rec.DecidedTs, rec.SizeTier, rec.Notes, now, now)
		if err != nil {
			return fmt.Errorf("store: insert entry record: %w", err)
		}
	case err != nil:
		return fmt.Errorf("store: query existing entry record: %w", err)
	case existingStatus != "dry_run" && existingStatus != "accept":
		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = ?, decided_ts = ?, size_tier = ?, notes = ?, updated_at = ?
			WHERE market = ? AND type = 'unitary-entry'
		`, rec.Status, rec.DecidedTs, rec.SizeTier, rec.Notes, now, rec.Market)
		if err != nil {
			return fmt.Errorf("store: update entry record: %w", err)
		}
	default:
		// Already accepted: only a SMALL->APEX upgrade may touch this row,
		// which the caller signals by passing SizeTier=APEX explicitly.
		if rec.SizeTier == "APEX" {
			_, err = tx.ExecContext(ctx, `
				UPDATE orders SET size_tier = 'APEX', decided_ts = ?, updated_at = ?
				WHERE market = ? AND type = 'unitary-entry' AND size_tier = 'SMALL'
			`, rec.DecidedTs, now, rec.Market)
			if err != nil {
				return fmt.Errorf("store: upgrade entry record to apex: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit upsert entry record: %w", err)
	}
	return nil
}

// BulkInsertEvents wraps a slice of event rows in a single transaction so
// high-volume microstructure logging doesn't pay a commit per row.
func (s *Store) BulkInsertEvents(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin bulk insert events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (ts, signature, mint, origin, buyers, unique_funders, same_funder_ratio, price_jumps, depth_est, creator, snapshot_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare bulk insert events: %w", err)
	}
	defer stmt.Close()

	for _, e := range rows {
		if _, err := stmt.ExecContext(ctx, e.Ts, nullable(e.Signature), e.Mint, e.Origin,
			e.Buyers, e.UniqueFunders, e.SameFunderRatio, e.PriceJumps, e.DepthEst, nullable(e.Creator), e.SnapshotJSON); err != nil {
			return fmt.Errorf("store: bulk insert event %s: %w", e.Mint, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit bulk insert events: %w", err)
	}

	log.Debug().Int("rows", len(rows)).Msg("store: bulk-committed event rows")
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
