package model

import "time"

// Lot is the remaining open quantity originating from a single trade.
// RemainingQty is signed (positive = long lot, negative = short lot).
// A lot shrinks as opposite trades match against it and is deleted when
// fully consumed; it is never mutated after that.
type Lot struct {
	Symbol       string     `json:"symbol"`
	Discipline   Discipline `json:"discipline"`
	EntryPrice   float64    `json:"entry_price"`
	RemainingQty int64      `json:"remaining_qty"`
	SeqID        int64      `json:"seq_id"`
	TradingDay   string     `json:"trading_day"` // YYYY-MM-DD
	OpenedAt     time.Time  `json:"opened_at"`
}

// Long reports whether this is a long lot.
func (l *Lot) Long() bool { return l.RemainingQty > 0 }

// Realization records one match event: a quantity closed against a lot.
// Created exactly once per match, immutable, forms the audit trail.
// MatchedQty is always positive; RealizedPnL carries the sign.
type Realization struct {
	Symbol      string     `json:"symbol"`
	Discipline  Discipline `json:"discipline"`
	EntryPrice  float64    `json:"entry_price"`
	ExitPrice   float64    `json:"exit_price"`
	MatchedQty  int64      `json:"matched_qty"`
	RealizedPnL float64    `json:"realized_pnl"`
	TradingDay  string     `json:"trading_day"` // day of the closing trade
	MatchedAt   time.Time  `json:"matched_at"`
}

// MatchResult is the outcome of applying one trade to one discipline's book.
type MatchResult struct {
	Realizations []Realization
	ResidualLot  *Lot // non-nil when unmatched quantity opened a new lot
	Duplicate    bool // trade key already seen; nothing was applied
}
