package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"pnl-enginev1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for crash recovery and
// external reporting queries. It implements model.StateLoader.
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

// LoadOpenLots returns all open lots ordered for deterministic book
// rebuild: trading day then sequence within the day.
func (r *Reader) LoadOpenLots() ([]model.Lot, error) {
	rows, err := r.db.Query(`
		SELECT symbol, discipline, trading_day, seq_id, entry_price, remaining_qty, opened_at
		FROM lots
		ORDER BY symbol, discipline, trading_day, seq_id
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query lots: %w", err)
	}
	defer rows.Close()

	var lots []model.Lot
	for rows.Next() {
		var l model.Lot
		var disc string
		var openedAt int64
		if err := rows.Scan(&l.Symbol, &disc, &l.TradingDay, &l.SeqID, &l.EntryPrice, &l.RemainingQty, &openedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan lot: %w", err)
		}
		l.Discipline = model.Discipline(disc)
		l.OpenedAt = time.Unix(openedAt, 0).UTC()
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// LoadRealizedTotals aggregates the realization audit trail per
// (symbol, discipline).
func (r *Reader) LoadRealizedTotals() ([]model.RealizedTotal, error) {
	rows, err := r.db.Query(`
		SELECT symbol, discipline, COALESCE(SUM(matched_qty), 0), COALESCE(SUM(realized_pnl), 0)
		FROM realizations
		GROUP BY symbol, discipline
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query realized totals: %w", err)
	}
	defer rows.Close()

	var totals []model.RealizedTotal
	for rows.Next() {
		var t model.RealizedTotal
		var disc string
		if err := rows.Scan(&t.Symbol, &disc, &t.ClosedQty, &t.RealizedPnL); err != nil {
			return nil, fmt.Errorf("sqlite scan realized total: %w", err)
		}
		t.Discipline = model.Discipline(disc)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// LoadTradeKeys returns the dedup keys of every persisted trade so a
// replayed feed cannot double-apply across restarts.
func (r *Reader) LoadTradeKeys() ([]model.TradeKey, error) {
	rows, err := r.db.Query(`SELECT symbol, trading_day, seq_id FROM trades`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trade keys: %w", err)
	}
	defer rows.Close()

	var keys []model.TradeKey
	for rows.Next() {
		var k model.TradeKey
		if err := rows.Scan(&k.Symbol, &k.TradingDay, &k.SeqID); err != nil {
			return nil, fmt.Errorf("sqlite scan trade key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// LoadPriceSlots returns all persisted price slot values.
func (r *Reader) LoadPriceSlots() ([]model.PriceSlotRow, error) {
	rows, err := r.db.Query(`SELECT symbol, slot, value, observed_at FROM price_slots`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query price slots: %w", err)
	}
	defer rows.Close()

	var out []model.PriceSlotRow
	for rows.Next() {
		var p model.PriceSlotRow
		var slot string
		var observedAt int64
		if err := rows.Scan(&p.Symbol, &slot, &p.Value, &observedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan price slot: %w", err)
		}
		p.Slot = model.Slot(slot)
		p.ObservedAt = time.Unix(observedAt, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReadPositions returns the last committed position snapshots for
// reporting layers that query the table directly.
func (r *Reader) ReadPositions() ([]model.PositionSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT symbol,
			fifo_open_qty, fifo_closed_qty, fifo_realized_pnl, fifo_unrealized_live, fifo_unrealized_close,
			lifo_open_qty, lifo_closed_qty, lifo_realized_pnl, lifo_unrealized_live, lifo_unrealized_close,
			degraded, updated_at
		FROM positions ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query positions: %w", err)
	}
	defer rows.Close()

	var snaps []model.PositionSnapshot
	for rows.Next() {
		var s model.PositionSnapshot
		var degraded int
		var updatedAt int64
		err := rows.Scan(&s.Symbol,
			&s.FIFO.OpenQty, &s.FIFO.ClosedQty, &s.FIFO.RealizedPnL, &s.FIFO.UnrealizedLive, &s.FIFO.UnrealizedClose,
			&s.LIFO.OpenQty, &s.LIFO.ClosedQty, &s.LIFO.RealizedPnL, &s.LIFO.UnrealizedLive, &s.LIFO.UnrealizedClose,
			&degraded, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan position: %w", err)
		}
		s.Degraded = degraded != 0
		s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// DailyPnL returns the realized aggregate for one (symbol, discipline,
// trading day). Missing rows read as zero.
func (r *Reader) DailyPnL(symbol string, disc model.Discipline, tradingDay string) (float64, int64, error) {
	var pnl float64
	var qty int64
	err := r.db.QueryRow(`
		SELECT realized_pnl, closed_qty FROM daily_pnl
		WHERE symbol = ? AND discipline = ? AND trading_day = ?
	`, symbol, string(disc), tradingDay).Scan(&pnl, &qty)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite query daily_pnl: %w", err)
	}
	return pnl, qty, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
