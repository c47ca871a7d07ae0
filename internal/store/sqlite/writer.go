package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"pnl-enginev1/internal/model"
	"pnl-enginev1/internal/ringbuf"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 200
	defaultFlushDelay = 200 * time.Millisecond

	// Retry backoff bounds for failed commits. Ingestion is never
	// blocked by a persistence outage; pending work queues in memory.
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second

	pendingSnapshots = 4096
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/pnl.db"
}

// Writer is the single serialized writer for all durable state:
// the ledger (trades, lots, realizations, daily aggregates, price
// slots) and the projected position snapshots.
type Writer struct {
	db *sql.DB

	// Hooks (optional, for metrics).
	OnCommit  func(d time.Duration, rows int)
	OnRetry   func()
	OnPending func(n int)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL
// mode and the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer discipline at the connection level too.
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
		CREATE TABLE IF NOT EXISTS trades (
			symbol      TEXT    NOT NULL,
			trading_day TEXT    NOT NULL,
			seq_id      INTEGER NOT NULL,
			qty         INTEGER NOT NULL,
			price       REAL    NOT NULL,
			ts          INTEGER NOT NULL,
			PRIMARY KEY (symbol, trading_day, seq_id)
		);

		CREATE TABLE IF NOT EXISTS lots (
			symbol        TEXT    NOT NULL,
			discipline    TEXT    NOT NULL,
			trading_day   TEXT    NOT NULL,
			seq_id        INTEGER NOT NULL,
			entry_price   REAL    NOT NULL,
			remaining_qty INTEGER NOT NULL,
			opened_at     INTEGER NOT NULL,
			PRIMARY KEY (symbol, discipline, trading_day, seq_id)
		);

		CREATE TABLE IF NOT EXISTS realizations (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT    NOT NULL,
			discipline   TEXT    NOT NULL,
			entry_price  REAL    NOT NULL,
			exit_price   REAL    NOT NULL,
			matched_qty  INTEGER NOT NULL,
			realized_pnl REAL    NOT NULL,
			trading_day  TEXT    NOT NULL,
			matched_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS daily_pnl (
			symbol       TEXT    NOT NULL,
			discipline   TEXT    NOT NULL,
			trading_day  TEXT    NOT NULL,
			realized_pnl REAL    NOT NULL DEFAULT 0,
			closed_qty   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, discipline, trading_day)
		);

		CREATE TABLE IF NOT EXISTS price_slots (
			symbol      TEXT NOT NULL,
			slot        TEXT NOT NULL,
			value       REAL NOT NULL,
			observed_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, slot)
		);

		CREATE TABLE IF NOT EXISTS positions (
			symbol                TEXT PRIMARY KEY,
			fifo_open_qty         INTEGER NOT NULL,
			fifo_closed_qty       INTEGER NOT NULL,
			fifo_realized_pnl     REAL    NOT NULL,
			fifo_unrealized_live  REAL    NOT NULL,
			fifo_unrealized_close REAL    NOT NULL,
			lifo_open_qty         INTEGER NOT NULL,
			lifo_closed_qty       INTEGER NOT NULL,
			lifo_realized_pnl     REAL    NOT NULL,
			lifo_unrealized_live  REAL    NOT NULL,
			lifo_unrealized_close REAL    NOT NULL,
			degraded              INTEGER NOT NULL DEFAULT 0,
			updated_at            INTEGER NOT NULL
		);
	`)
	return err
}

// Run drains position snapshots and upserts them in batched
// transactions. Failed batches stay queued in a ring buffer and are
// retried with exponential backoff. Blocks until ctx is cancelled or
// snapCh is closed.
func (w *Writer) Run(ctx context.Context, snapCh <-chan model.PositionSnapshot) {
	pending := ringbuf.New(pendingSnapshots)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	retryDelay := retryBaseDelay
	var retryAt time.Time

	flush := func() {
		if pending.Len() == 0 || time.Now().Before(retryAt) {
			return
		}
		batch := make([]model.PositionSnapshot, 0, pending.Len())
		for {
			s, ok := pending.Pop()
			if !ok {
				break
			}
			batch = append(batch, s)
		}
		start := time.Now()
		if err := w.upsertSnapshots(batch); err != nil {
			log.Printf("[sqlite] snapshot batch failed (%d rows), retrying in %v: %v", len(batch), retryDelay, err)
			for _, s := range batch {
				if !pending.Push(s) {
					log.Printf("[sqlite] pending snapshot buffer full, dropping %s (rebuilt on next recompute)", s.Symbol)
				}
			}
			retryAt = time.Now().Add(retryDelay)
			retryDelay *= 2
			if retryDelay > retryMaxDelay {
				retryDelay = retryMaxDelay
			}
			if w.OnRetry != nil {
				w.OnRetry()
			}
			return
		}
		retryDelay = retryBaseDelay
		retryAt = time.Time{}
		if w.OnCommit != nil {
			w.OnCommit(time.Since(start), len(batch))
		}
	}

	for {
		if w.OnPending != nil {
			w.OnPending(pending.Len())
		}
		select {
		case <-ctx.Done():
			flush()
			return

		case snap, ok := <-snapCh:
			if !ok {
				flush()
				return
			}
			if !pending.Push(snap) {
				// Full buffer: the next recompute regenerates every
				// snapshot anyway, dropping the oldest is safe.
				pending.Pop()
				pending.Push(snap)
			}
			if pending.Len() >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// upsertSnapshots writes a batch of snapshots in a single transaction.
func (w *Writer) upsertSnapshots(snaps []model.PositionSnapshot) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO positions (
			symbol,
			fifo_open_qty, fifo_closed_qty, fifo_realized_pnl, fifo_unrealized_live, fifo_unrealized_close,
			lifo_open_qty, lifo_closed_qty, lifo_realized_pnl, lifo_unrealized_live, lifo_unrealized_close,
			degraded, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range snaps {
		degraded := 0
		if s.Degraded {
			degraded = 1
		}
		_, err := stmt.Exec(
			s.Symbol,
			s.FIFO.OpenQty, s.FIFO.ClosedQty, s.FIFO.RealizedPnL, s.FIFO.UnrealizedLive, s.FIFO.UnrealizedClose,
			s.LIFO.OpenQty, s.LIFO.ClosedQty, s.LIFO.RealizedPnL, s.LIFO.UnrealizedLive, s.LIFO.UnrealizedClose,
			degraded, s.UpdatedAt.Unix(),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RunLedger drains ledger events and applies them in batched
// transactions. Events are never dropped: on failure the batch is kept
// and retried with backoff. Blocks until ctx is cancelled or ledgerCh
// is closed.
func (w *Writer) RunLedger(ctx context.Context, ledgerCh <-chan model.LedgerEvent) {
	var pending []model.LedgerEvent
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	retryDelay := retryBaseDelay
	var retryAt time.Time

	flush := func() {
		if len(pending) == 0 || time.Now().Before(retryAt) {
			return
		}
		start := time.Now()
		if err := w.applyLedger(pending); err != nil {
			log.Printf("[sqlite] ledger batch failed (%d events), retrying in %v: %v", len(pending), retryDelay, err)
			retryAt = time.Now().Add(retryDelay)
			retryDelay *= 2
			if retryDelay > retryMaxDelay {
				retryDelay = retryMaxDelay
			}
			if w.OnRetry != nil {
				w.OnRetry()
			}
			return
		}
		if w.OnCommit != nil {
			w.OnCommit(time.Since(start), len(pending))
		}
		pending = pending[:0]
		retryDelay = retryBaseDelay
		retryAt = time.Time{}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case ev, ok := <-ledgerCh:
			if !ok {
				flush()
				return
			}
			pending = append(pending, ev)
			if len(pending) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// applyLedger writes a batch of ledger events in one transaction.
func (w *Writer) applyLedger(events []model.LedgerEvent) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	for _, ev := range events {
		var err error
		switch ev.Kind {
		case model.LedgerTrade:
			t := ev.Trade
			_, err = tx.Exec(`
				INSERT OR IGNORE INTO trades (symbol, trading_day, seq_id, qty, price, ts)
				VALUES (?, ?, ?, ?, ?, ?)
			`, t.Symbol, ev.TradingDay, t.SeqID, t.Qty, t.Price, t.TS.Unix())

		case model.LedgerLotUpsert:
			l := ev.Lot
			_, err = tx.Exec(`
				INSERT OR REPLACE INTO lots (symbol, discipline, trading_day, seq_id, entry_price, remaining_qty, opened_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, l.Symbol, string(l.Discipline), l.TradingDay, l.SeqID, l.EntryPrice, l.RemainingQty, l.OpenedAt.Unix())

		case model.LedgerLotDelete:
			l := ev.Lot
			_, err = tx.Exec(`
				DELETE FROM lots WHERE symbol = ? AND discipline = ? AND trading_day = ? AND seq_id = ?
			`, l.Symbol, string(l.Discipline), l.TradingDay, l.SeqID)

		case model.LedgerRealization:
			r := ev.Realization
			_, err = tx.Exec(`
				INSERT INTO realizations (symbol, discipline, entry_price, exit_price, matched_qty, realized_pnl, trading_day, matched_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, r.Symbol, string(r.Discipline), r.EntryPrice, r.ExitPrice, r.MatchedQty, r.RealizedPnL, r.TradingDay, r.MatchedAt.Unix())
			if err == nil {
				_, err = tx.Exec(`
					INSERT INTO daily_pnl (symbol, discipline, trading_day, realized_pnl, closed_qty)
					VALUES (?, ?, ?, ?, ?)
					ON CONFLICT(symbol, discipline, trading_day) DO UPDATE SET
						realized_pnl = realized_pnl + excluded.realized_pnl,
						closed_qty   = closed_qty + excluded.closed_qty
				`, r.Symbol, string(r.Discipline), r.TradingDay, r.RealizedPnL, r.MatchedQty)
			}

		case model.LedgerPriceSlot:
			p := ev.Price
			_, err = tx.Exec(`
				INSERT OR REPLACE INTO price_slots (symbol, slot, value, observed_at)
				VALUES (?, ?, ?, ?)
			`, p.Symbol, string(p.Slot), p.Value, p.ObservedAt.Unix())

		case model.LedgerPriceSlotClear:
			p := ev.Price
			_, err = tx.Exec(`
				DELETE FROM price_slots WHERE symbol = ? AND slot = ?
			`, p.Symbol, string(p.Slot))
		}
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
