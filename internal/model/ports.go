package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the engine and aggregator from concrete
// infrastructure (Redis, SQLite). Each implementation satisfies one or
// more of these interfaces.

// Notifier is the minimal change-notification channel: fire-and-coalesce,
// no delivery guarantees.
type Notifier interface {
	// Publish signals the topic. Losing a signal while another is already
	// pending is acceptable; recomputes are full and idempotent.
	Publish(ctx context.Context, topic string)

	// Subscribe invokes fn for every received signal on topic.
	// Blocks until ctx is cancelled.
	Subscribe(ctx context.Context, topic string, fn func()) error

	// Close releases underlying resources.
	Close() error
}

// TradeKey identifies an applied trade within one symbol.
type TradeKey struct {
	Symbol     string
	TradingDay string
	SeqID      int64
}

// RealizedTotal is the persisted realized aggregate for one (symbol, discipline).
type RealizedTotal struct {
	Symbol      string
	Discipline  Discipline
	ClosedQty   int64
	RealizedPnL float64
}

// StateLoader is the recovery read path. On restart the aggregator
// rebuilds all in-memory state from these loads; the positions table
// and the read cache are pure projections.
type StateLoader interface {
	// LoadOpenLots returns all open lots ordered by (symbol, discipline, seq_id).
	LoadOpenLots() ([]Lot, error)

	// LoadRealizedTotals returns realized aggregates per (symbol, discipline).
	LoadRealizedTotals() ([]RealizedTotal, error)

	// LoadTradeKeys returns the dedup keys of every persisted trade.
	LoadTradeKeys() ([]TradeKey, error)

	// LoadPriceSlots returns all persisted price slot values.
	LoadPriceSlots() ([]PriceSlotRow, error)

	// Close releases underlying resources.
	Close() error
}
