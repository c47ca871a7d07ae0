// Package feed ingests trade and price frames from an upstream
// WebSocket feed and fans them out to the matching engine and price
// store. Validation happens here, at the boundary: malformed or
// rejected frames never reach the engine.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"pnl-enginev1/internal/model"
)

// Frame kinds on the wire.
const (
	KindTrade = "trade"
	KindPrice = "price"
)

// Frame is the wire envelope. Trade and price frames share a single
// JSON shape discriminated by "type":
//
//	{"type":"trade","symbol":"ZN","qty":-3,"price":111.20,"seq_id":42,"ts":"..."}
//	{"type":"price","symbol":"ZN","slot":"now","value":111.25,"ts":"..."}
//
// The slot field is optional and defaults to "now"; upstream sources
// that supply their own session references may address any named slot.
type Frame struct {
	Type   string    `json:"type"`
	Symbol string    `json:"symbol"`
	Qty    int64     `json:"qty,omitempty"`
	Price  float64   `json:"price,omitempty"`
	SeqID  int64     `json:"seq_id,omitempty"`
	Slot   string    `json:"slot,omitempty"`
	Value  float64   `json:"value,omitempty"`
	TS     time.Time `json:"ts"`
}

// PriceUpdate is a validated price observation ready for the store.
type PriceUpdate struct {
	Symbol     string
	Slot       model.Slot
	Value      float64
	ObservedAt time.Time
}

// Decode parses and validates one raw frame. Exactly one of the
// returned pointers is non-nil on success.
func Decode(raw []byte) (*model.Trade, *PriceUpdate, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("parse frame: %w", err)
	}
	if f.Symbol == "" {
		return nil, nil, fmt.Errorf("frame missing symbol")
	}
	if f.TS.IsZero() {
		f.TS = time.Now().UTC()
	}

	switch f.Type {
	case KindTrade:
		tr := model.Trade{
			Symbol: f.Symbol,
			Qty:    f.Qty,
			Price:  f.Price,
			SeqID:  f.SeqID,
			TS:     f.TS,
		}
		if err := tr.Validate(); err != nil {
			return nil, nil, err
		}
		return &tr, nil, nil

	case KindPrice:
		if f.Value <= 0 {
			return nil, nil, fmt.Errorf("price frame for %s: non-positive value %v", f.Symbol, f.Value)
		}
		slot := model.Slot(f.Slot)
		if f.Slot == "" {
			slot = model.SlotNow
		}
		if !slot.Valid() {
			return nil, nil, fmt.Errorf("price frame for %s: unknown slot %q", f.Symbol, f.Slot)
		}
		return nil, &PriceUpdate{Symbol: f.Symbol, Slot: slot, Value: f.Value, ObservedAt: f.TS}, nil

	default:
		return nil, nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}
