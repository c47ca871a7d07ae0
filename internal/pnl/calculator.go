// Package pnl computes mark-to-market unrealized P&L for open lots
// against the price-slot references, under the trading-day cutover and
// intraday price-rollover model.
package pnl

import (
	"log"
	"time"

	"pnl-enginev1/internal/model"
	"pnl-enginev1/internal/tradingday"
)

// PriceType selects the reference price for the final leg of the
// time-decomposed formula.
type PriceType string

const (
	Live  PriceType = "live"  // mark against the now slot
	Close PriceType = "close" // mark against the close slot
)

// Calculator computes unrealized P&L. Stateless apart from its
// configuration; safe for concurrent use.
type Calculator struct {
	clock *tradingday.Clock
	mult  float64

	// OnFallback is called when a required slot was missing and the
	// lot's own trade price was substituted (optional).
	OnFallback func(symbol string, slot model.Slot)
}

// New creates a Calculator with the given clock and point multiplier.
func New(clock *tradingday.Clock, mult float64) *Calculator {
	return &Calculator{clock: clock, mult: mult}
}

// Unrealized returns the summed unrealized P&L for one symbol's open
// lots at time `at`, rounded to 2 decimals, plus a degraded flag set
// when any required price slot was missing.
//
// Per lot: pnl = ((intermediate − entry) + (reference − intermediate))
// × signed_qty × multiplier. Signed quantities make short lots negate
// naturally. Entry follows the carried-lot rule: positions held over
// from a prior session mark from sodTod, fresh positions from their
// trade price. The intermediate reference is sodTod before the
// intraday boundary and sodTom at or after it.
//
// A missing slot degrades to the lot's trade price, which zeroes that
// leg's contribution instead of failing the computation. The degrade
// is surfaced through the return flag and the OnFallback hook.
func (c *Calculator) Unrealized(lots []model.Lot, prices model.PriceView, at time.Time, pt PriceType) (float64, bool) {
	if len(lots) == 0 {
		return 0, false
	}

	interSlot := model.SlotSodTod
	if c.clock.UseSodTom(at) {
		interSlot = model.SlotSodTom
	}
	refSlot := model.SlotNow
	if pt == Close {
		refSlot = model.SlotClose
	}

	var sum float64
	degraded := false
	for i := range lots {
		lot := &lots[i]

		entry := lot.EntryPrice
		if c.clock.Carried(lot.OpenedAt, at) {
			entry = c.slotOrFallback(lot, prices, model.SlotSodTod, &degraded)
		}
		inter := c.slotOrFallback(lot, prices, interSlot, &degraded)
		ref := c.slotOrFallback(lot, prices, refSlot, &degraded)

		sum += ((inter - entry) + (ref - inter)) * float64(lot.RemainingQty) * c.mult
	}
	return model.Round2(sum), degraded
}

func (c *Calculator) slotOrFallback(lot *model.Lot, prices model.PriceView, slot model.Slot, degraded *bool) float64 {
	if obs, ok := prices.Get(slot); ok {
		return obs.Value
	}
	*degraded = true
	log.Printf("[pnl] WARNING: %s missing %s slot, using trade price %v", lot.Symbol, slot, lot.EntryPrice)
	if c.OnFallback != nil {
		c.OnFallback(lot.Symbol, slot)
	}
	return lot.EntryPrice
}
