package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Discipline selects which open lot a closing trade is matched against.
type Discipline string

const (
	FIFO Discipline = "FIFO" // oldest lot first
	LIFO Discipline = "LIFO" // newest lot first
)

// Disciplines lists both matching disciplines in a stable order.
// Every trade is applied to both books independently.
var Disciplines = [2]Discipline{FIFO, LIFO}

// Trade is a single fill from the trade feed. Qty is signed:
// positive = buy, negative = sell. Immutable once accepted.
//
// SeqID is only unique within one trading day (the source resets raw
// identifiers daily), so the engine keys trades by (trading_day, seq_id).
type Trade struct {
	Symbol string    `json:"symbol"`
	Qty    int64     `json:"qty"`
	Price  float64   `json:"price"`
	SeqID  int64     `json:"seq_id"`
	TS     time.Time `json:"ts"`
}

// Key returns the composite dedup key for a trade within its trading day.
func (t *Trade) Key(tradingDay string) string {
	return fmt.Sprintf("%s#%d", tradingDay, t.SeqID)
}

// Validate rejects trades that must not reach the matching engine.
func (t *Trade) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("trade seq=%d: empty symbol", t.SeqID)
	}
	if t.Qty == 0 {
		return fmt.Errorf("trade %s seq=%d: zero quantity", t.Symbol, t.SeqID)
	}
	if t.Price <= 0 {
		return fmt.Errorf("trade %s seq=%d: non-positive price %v", t.Symbol, t.SeqID, t.Price)
	}
	if t.SeqID <= 0 {
		return fmt.Errorf("trade %s: non-positive seq_id %d", t.Symbol, t.SeqID)
	}
	return nil
}

// JSON returns the JSON-encoded trade (ignoring errors for hot-path usage).
func (t *Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}

// Round2 rounds a currency amount to 2 decimal places.
// All P&L figures are stored rounded.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
