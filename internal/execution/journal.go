package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id    TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	action      TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	qty         REAL NOT NULL,
	price       REAL NOT NULL,
	slippage    REAL DEFAULT 0,
	reason      TEXT,
	filled_at   DATETIME NOT NULL,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
`

// Journal persists paper fills to SQLite for audit and later analysis.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) the SQLite trade journal at dbPath.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill appends one fill to the journal.
func (j *Journal) RecordFill(fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, strategy, action, symbol, qty, price, slippage, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.Signal.StrategyName,
		string(fill.Signal.Action),
		fill.Signal.Symbol,
		fill.FillQty,
		fill.FillPrice,
		fill.Slippage,
		fill.Signal.Reason,
		fill.FilledAt.Format(time.RFC3339),
	)
	return err
}

// TradeRecord is one row of the trades table.
type TradeRecord struct {
	ID       int64   `json:"id"`
	OrderID  string  `json:"order_id"`
	Strategy string  `json:"strategy"`
	Action   string  `json:"action"`
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty"`
	Price    float64 `json:"price"`
	Slippage float64 `json:"slippage"`
	Reason   string  `json:"reason"`
	FilledAt string  `json:"filled_at"`
}

// GetTrades returns the last limit trades, newest first.
func (j *Journal) GetTrades(limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, strategy, action, symbol, qty, price, slippage, reason, filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		err := rows.Scan(&t.ID, &t.OrderID, &t.Strategy, &t.Action, &t.Symbol,
			&t.Qty, &t.Price, &t.Slippage, &t.Reason, &t.FilledAt)
		if err != nil {
			return trades, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
