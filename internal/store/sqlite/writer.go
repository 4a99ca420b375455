package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"marketpulse/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/marketpulse.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It persists raw prices plus the derived snapshots, regimes and risk
// decisions, all off the hot path.
type Writer struct {
	db *sql.DB

	// OnCommitDone reports the duration of each batch commit (optional,
	// set externally for metrics).
	OnCommitDone func(d time.Duration)
}

func (w *Writer) observe(start time.Time) {
	if w.OnCommitDone != nil {
		w.OnCommitDone(time.Since(start))
	}
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS prices (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			price   REAL    NOT NULL,
			volume  REAL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			symbol      TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			rsi         REAL    NOT NULL,
			macd        REAL    NOT NULL,
			boll_upper  REAL    NOT NULL,
			boll_middle REAL    NOT NULL,
			boll_lower  REAL    NOT NULL,
			sma20       REAL    NOT NULL,
			ema12       REAL    NOT NULL,
			ema26       REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS regimes (
			symbol         TEXT    NOT NULL,
			ts             INTEGER NOT NULL,
			regime         TEXT    NOT NULL,
			confidence     REAL    NOT NULL,
			trend_strength REAL    NOT NULL,
			volatility     REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS decisions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol        TEXT    NOT NULL,
			accepted      INTEGER NOT NULL,
			reason        TEXT,
			message       TEXT,
			position_size REAL,
			created_at    INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// RunPrices reads price points from priceCh and inserts them in batched
// transactions. Flushes every batchSize points OR every flushDelay,
// whichever first. Blocks until ctx is cancelled or priceCh is closed.
func (w *Writer) RunPrices(ctx context.Context, priceCh <-chan model.PricePoint) {
	batch := make([]model.PricePoint, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertPriceBatch(batch); err != nil {
			log.Printf("[sqlite] price batch insert error: %v", err)
		} else {
			w.observe(start)
			log.Printf("[sqlite] committed %d prices in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case pt, ok := <-priceCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, pt)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertPriceBatch inserts a batch of price points in a single transaction.
// INSERT OR REPLACE keeps the table in step with the in-memory series,
// where an equal timestamp replaces the previous point.
func (w *Writer) insertPriceBatch(points []model.PricePoint) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO prices (symbol, ts, price, volume)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, pt := range points {
		_, err := stmt.Exec(pt.Symbol, pt.TS.Unix(), pt.Price, pt.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RunSnapshots reads indicator snapshots and inserts them in batched transactions.
func (w *Writer) RunSnapshots(ctx context.Context, snapCh <-chan model.IndicatorSnapshot) {
	batch := make([]model.IndicatorSnapshot, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertSnapshotBatch(batch); err != nil {
			log.Printf("[sqlite] snapshot batch insert error: %v", err)
		} else {
			w.observe(start)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case snap, ok := <-snapCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, snap)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertSnapshotBatch(snaps []model.IndicatorSnapshot) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO snapshots
			(symbol, ts, rsi, macd, boll_upper, boll_middle, boll_lower, sma20, ema12, ema26)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range snaps {
		_, err := stmt.Exec(s.Symbol, s.ComputedAt.Unix(), s.RSI, s.MACD,
			s.Bollinger.Upper, s.Bollinger.Middle, s.Bollinger.Lower,
			s.SMA20, s.EMA12, s.EMA26)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RunRegimes reads regime states and inserts them in batched transactions.
func (w *Writer) RunRegimes(ctx context.Context, regimeCh <-chan model.RegimeState) {
	batch := make([]model.RegimeState, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertRegimeBatch(batch); err != nil {
			log.Printf("[sqlite] regime batch insert error: %v", err)
		} else {
			w.observe(start)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case reg, ok := <-regimeCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, reg)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertRegimeBatch(regimes []model.RegimeState) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO regimes (symbol, ts, regime, confidence, trend_strength, volatility)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range regimes {
		_, err := stmt.Exec(r.Symbol, r.ComputedAt.Unix(), string(r.Regime),
			r.Confidence, r.TrendStrength, r.Volatility)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// WriteDecision records one risk decision for audit. Decisions are rare
// relative to prices, so no batching.
func (w *Writer) WriteDecision(ctx context.Context, d model.RiskDecision) error {
	accepted := 0
	if d.Accepted {
		accepted = 1
	}
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO decisions (symbol, accepted, reason, message, position_size)
		VALUES (?, ?, ?, ?, ?)
	`, d.Symbol, accepted, string(d.Reason), d.Message, d.PositionSize)
	if err != nil {
		return fmt.Errorf("sqlite insert decision: %w", err)
	}
	return nil
}

// GetLastTimestamp returns the last stored price timestamp for a symbol.
// Returns 0 if no prices exist.
func (w *Writer) GetLastTimestamp(symbol string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM prices WHERE symbol = ?`,
		symbol,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
