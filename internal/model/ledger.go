package model

// LedgerEventKind discriminates the durable mutation carried by a LedgerEvent.
type LedgerEventKind int

const (
	LedgerTrade LedgerEventKind = iota // accepted trade (audit + dedup key)
	LedgerLotUpsert
	LedgerLotDelete
	LedgerRealization
	LedgerPriceSlot
	LedgerPriceSlotClear
)

// LedgerEvent is one durable mutation emitted by the matching engine or
// the price store and drained by the single sqlite writer. Exactly one
// payload field is set, matching Kind.
type LedgerEvent struct {
	Kind        LedgerEventKind
	Trade       *Trade
	TradingDay  string // set for LedgerTrade
	Lot         *Lot
	Realization *Realization
	Price       *PriceSlotRow // for LedgerPriceSlotClear only Symbol+Slot are used
}
