package model

import "time"

// Slot names one of the four reference prices tracked per symbol.
type Slot string

const (
	SlotNow    Slot = "now"    // freely overwritten on each observation
	SlotClose  Slot = "close"  // set once per trading day at the close event
	SlotSodTod Slot = "sodTod" // start-of-day-today reference
	SlotSodTom Slot = "sodTom" // staged start-of-day-tomorrow reference
)

// Slots lists all price slots in a stable order.
var Slots = [4]Slot{SlotNow, SlotClose, SlotSodTod, SlotSodTom}

// Valid reports whether s names a known slot.
func (s Slot) Valid() bool {
	switch s {
	case SlotNow, SlotClose, SlotSodTod, SlotSodTom:
		return true
	}
	return false
}

// Observation is one reference price value with its observation time.
type Observation struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// PriceSlotRow is the persisted form of one (symbol, slot) price value.
type PriceSlotRow struct {
	Symbol     string    `json:"symbol"`
	Slot       Slot      `json:"slot"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// PriceView is a read-only snapshot of one symbol's price slots, taken
// under the price store lock so P&L sees a consistent set.
type PriceView map[Slot]Observation

// Get returns the slot value if present.
func (v PriceView) Get(s Slot) (Observation, bool) {
	obs, ok := v[s]
	return obs, ok
}
