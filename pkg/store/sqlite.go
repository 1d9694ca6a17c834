// Package store persists raw feed messages and detected opportunities in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gregtusar/termarb/pkg/arbitrage"
	"github.com/gregtusar/termarb/pkg/models"
)

// Timestamps are stored as unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS raw_messages (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    received_at INTEGER NOT NULL,
    raw_json    TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS scans (
    id            TEXT    PRIMARY KEY,
    scanned_at    INTEGER NOT NULL,
    candidates    INTEGER NOT NULL DEFAULT 0,
    opportunities INTEGER NOT NULL DEFAULT 0,
    best_pct      REAL    NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS opportunities (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id           TEXT    NOT NULL,
    ordinal           INTEGER NOT NULL,
    ticker            TEXT    NOT NULL,
    sell_tenor        TEXT    NOT NULL,
    sell_price        REAL    NOT NULL,
    buy_tenor         TEXT    NOT NULL,
    buy_price         REAL    NOT NULL,
    size              REAL    NOT NULL,
    days              INTEGER NOT NULL,
    spread_annualized REAL    NOT NULL DEFAULT 0,
    spread_net        REAL    NOT NULL DEFAULT 0,
    profit_loss       REAL    NOT NULL,
    profit_loss_pct   REAL    NOT NULL,
    detected_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_received ON raw_messages(received_at DESC);
CREATE INDEX IF NOT EXISTS idx_scans_at     ON scans(scanned_at DESC);
CREATE INDEX IF NOT EXISTS idx_opp_detected ON opportunities(detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_opp_ticker   ON opportunities(ticker);
`

// RawMessage is one feed message as received.
type RawMessage struct {
	ID         int64
	ReceivedAt time.Time
	Raw        string
}

// Scan summarizes one scan pass.
type Scan struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Candidates int       `json:"candidates"`
}

// Record is a persisted opportunity.
type Record struct {
	ScanID           string       `json:"scan_id"`
	Rank             int          `json:"rank"`
	Ticker           string       `json:"ticker"`
	SellTenor        models.Tenor `json:"sell_tenor"`
	SellPrice        float64      `json:"sell_price"`
	BuyTenor         models.Tenor `json:"buy_tenor"`
	BuyPrice         float64      `json:"buy_price"`
	Size             float64      `json:"size"`
	Days             int          `json:"days"`
	SpreadAnnualized float64      `json:"spread_annualized"`
	SpreadNet        float64      `json:"spread_net"`
	ProfitLoss       float64      `json:"profit_loss"`
	ProfitLossPct    float64      `json:"profit_loss_pct"`
	DetectedAt       time.Time    `json:"detected_at"`
}

// SQLiteStore uses the pure-Go modernc driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" keeps it
// in memory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// AppendMessage stores one raw feed message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, raw []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_messages (received_at, raw_json) VALUES (?, ?)`,
		at.UnixMilli(), string(raw))
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages, newest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, received_at, raw_json FROM raw_messages ORDER BY received_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query messages: %w", err)
	}
	defer rows.Close()

	var out []RawMessage
	for rows.Next() {
		var m RawMessage
		var ms int64
		if err := rows.Scan(&m.ID, &ms, &m.Raw); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.ReceivedAt = time.UnixMilli(ms).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveScan records a scan pass and its ranked trades. Unpriced trades are
// skipped. An empty scan ID is filled with a new UUID, which is returned.
func (s *SQLiteStore) SaveScan(ctx context.Context, scan Scan, trades []arbitrage.Trade) (string, error) {
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	if scan.At.IsZero() {
		scan.At = time.Now()
	}
	at := scan.At.UnixMilli()

	var priced []arbitrage.Trade
	for _, t := range trades {
		if t.Priced {
			priced = append(priced, t)
		}
	}
	var best float64
	if len(priced) > 0 {
		best = priced[0].ProfitLossPct
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scans (id, scanned_at, candidates, opportunities, best_pct) VALUES (?, ?, ?, ?, ?)`,
		scan.ID, at, scan.Candidates, len(priced), best,
	); err != nil {
		return "", fmt.Errorf("store: insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO opportunities
			(scan_id, ordinal, ticker, sell_tenor, sell_price, buy_tenor, buy_price, size, days,
			 spread_annualized, spread_net, profit_loss, profit_loss_pct, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for i, t := range priced {
		if _, err := stmt.ExecContext(ctx,
			scan.ID, i+1, t.Ticker, string(t.Sell.Tenor), t.Sell.Price, string(t.Buy.Tenor), t.Buy.Price,
			t.Size, t.Days, t.SpreadAnnualized, t.SpreadNetOfFinancing, t.ProfitLoss, t.ProfitLossPct, at,
		); err != nil {
			return "", fmt.Errorf("store: insert opportunity %s: %w", t.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit: %w", err)
	}
	return scan.ID, nil
}

// History returns opportunities detected in [from, to], newest first and
// by rank within a scan. A non-positive limit returns everything.
func (s *SQLiteStore) History(ctx context.Context, from, to time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, ordinal, ticker, sell_tenor, sell_price, buy_tenor, buy_price, size, days,
		       spread_annualized, spread_net, profit_loss, profit_loss_pct, detected_at
		FROM opportunities
		WHERE detected_at BETWEEN ? AND ?
		ORDER BY detected_at DESC, ordinal ASC
		LIMIT ?`, from.UnixMilli(), to.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var sellTenor, buyTenor string
		var ms int64
		if err := rows.Scan(&r.ScanID, &r.Rank, &r.Ticker, &sellTenor, &r.SellPrice, &buyTenor, &r.BuyPrice,
			&r.Size, &r.Days, &r.SpreadAnnualized, &r.SpreadNet, &r.ProfitLoss, &r.ProfitLossPct, &ms); err != nil {
			return nil, fmt.Errorf("store: scan history row: %w", err)
		}
		r.SellTenor, r.BuyTenor = models.Tenor(sellTenor), models.Tenor(buyTenor)
		r.DetectedAt = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes messages, scans and opportunities older than before and
// returns the number of rows removed.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UnixMilli()
	var total int64
	for _, q := range []string{
		`DELETE FROM raw_messages WHERE received_at < ?`,
		`DELETE FROM opportunities WHERE detected_at < ?`,
		`DELETE FROM scans WHERE scanned_at < ?`,
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("store: prune: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
