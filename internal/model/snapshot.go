package model

import (
	"encoding/json"
	"time"
)

// DisciplineView holds the per-discipline figures inside a PositionSnapshot.
type DisciplineView struct {
	OpenQty         int64   `json:"open_qty"` // signed net open quantity
	ClosedQty       int64   `json:"closed_qty"`
	RealizedPnL     float64 `json:"realized_pnl"`
	UnrealizedLive  float64 `json:"unrealized_live"`
	UnrealizedClose float64 `json:"unrealized_close"`
}

// PositionSnapshot is the derived per-symbol position row. It is a pure
// projection of lots + realizations + price slots and is rebuilt in full
// on every recompute pass; it is never a second source of truth.
type PositionSnapshot struct {
	Symbol string         `json:"symbol"`
	FIFO   DisciplineView `json:"fifo"`
	LIFO   DisciplineView `json:"lifo"`

	// Degraded is set when any unrealized figure was computed with a
	// trade-price fallback because a reference price slot was missing.
	Degraded  bool      `json:"degraded"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View returns the figures for one discipline.
func (s *PositionSnapshot) View(d Discipline) DisciplineView {
	if d == LIFO {
		return s.LIFO
	}
	return s.FIFO
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *PositionSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
