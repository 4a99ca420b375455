package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"marketpulse/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to the price history for replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ListSymbols returns the distinct symbols present in the prices table.
func (r *Reader) ListSymbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// ReadPrices returns the stored price points for one symbol with ts after
// afterTS (Unix seconds), in chronological order.
func (r *Reader) ReadPrices(symbol string, afterTS int64) ([]model.PricePoint, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, price, volume
		FROM prices
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query prices: %w", err)
	}
	return scanPrices(rows)
}

// ReadAllPrices returns every stored price point with ts after afterTS,
// in chronological order across symbols.
func (r *Reader) ReadAllPrices(afterTS int64) ([]model.PricePoint, error) {
	rows, err := r.db.Query(`
		SELECT symbol, ts, price, volume
		FROM prices
		WHERE ts > ?
		ORDER BY ts ASC
	`, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all prices: %w", err)
	}
	return scanPrices(rows)
}

func scanPrices(rows *sql.Rows) ([]model.PricePoint, error) {
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var pt model.PricePoint
		var tsUnix int64
		var volume sql.NullFloat64
		if err := rows.Scan(&pt.Symbol, &tsUnix, &pt.Price, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan price: %w", err)
		}
		pt.TS = time.Unix(tsUnix, 0).UTC()
		pt.Volume = volume.Float64
		points = append(points, pt)
	}
	return points, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
