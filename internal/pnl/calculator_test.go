package pnl

import (
	"testing"
	"time"

	"pnl-enginev1/internal/model"
	"pnl-enginev1/internal/tradingday"
)

func calc() *Calculator {
	clock := tradingday.New(time.UTC, tradingday.DefaultCutoverHour, tradingday.DefaultIntradayHour)
	return New(clock, 1000)
}

func at(h, m int) time.Time {
	return time.Date(2024, 3, 12, h, m, 0, 0, time.UTC)
}

func freshLot(qty int64, entry float64) model.Lot {
	return model.Lot{
		Symbol:       "ZN",
		Discipline:   model.FIFO,
		EntryPrice:   entry,
		RemainingQty: qty,
		SeqID:        1,
		TradingDay:   "2024-03-12",
		OpenedAt:     at(8, 0), // within the current session
	}
}

func carriedLot(qty int64, entry float64) model.Lot {
	l := freshLot(qty, entry)
	// Opened two days ago, well before the current session's cutover.
	l.OpenedAt = at(8, 0).AddDate(0, 0, -2)
	l.TradingDay = "2024-03-10"
	return l
}

func prices(v map[model.Slot]float64) model.PriceView {
	pv := make(model.PriceView, len(v))
	for s, val := range v {
		pv[s] = model.Observation{Value: val, ObservedAt: at(9, 0)}
	}
	return pv
}

func TestUnrealized_FreshLongLot(t *testing.T) {
	c := calc()
	pv := prices(map[model.Slot]float64{
		model.SlotNow:    111.30,
		model.SlotSodTod: 111.20,
	})

	// (sodTod - entry) + (now - sodTod) telescopes to now - entry.
	got, degraded := c.Unrealized([]model.Lot{freshLot(3, 111.25)}, pv, at(10, 0), Live)
	if degraded {
		t.Fatal("all slots present, should not be degraded")
	}
	if got != 150.00 { // (111.30-111.25)*3*1000
		t.Fatalf("expected 150.00, got %v", got)
	}
}

func TestUnrealized_ShortLotNegates(t *testing.T) {
	c := calc()
	pv := prices(map[model.Slot]float64{
		model.SlotNow:    111.30,
		model.SlotSodTod: 111.20,
	})

	got, _ := c.Unrealized([]model.Lot{freshLot(-3, 111.25)}, pv, at(10, 0), Live)
	if got != -150.00 {
		t.Fatalf("short lot should negate, expected -150.00, got %v", got)
	}
}

func TestUnrealized_CarriedLotMarksFromSodTod(t *testing.T) {
	c := calc()
	pv := prices(map[model.Slot]float64{
		model.SlotNow:    111.30,
		model.SlotSodTod: 111.20,
	})

	// Carried lot ignores its historical trade price: now - sodTod.
	got, degraded := c.Unrealized([]model.Lot{carriedLot(2, 110.00)}, pv, at(10, 0), Live)
	if degraded {
		t.Fatal("should not be degraded")
	}
	if got != 200.00 { // (111.30-111.20)*2*1000
		t.Fatalf("expected 200.00, got %v", got)
	}
}

func TestUnrealized_IntradayBoundarySelectsIntermediate(t *testing.T) {
	c := calc()
	// sodTod present, sodTom absent: the fallback only triggers once the
	// boundary selects sodTom, which makes the slot choice observable.
	pv := prices(map[model.Slot]float64{
		model.SlotNow:    111.30,
		model.SlotSodTod: 111.20,
	})
	lots := []model.Lot{freshLot(1, 111.25)}

	if _, degraded := c.Unrealized(lots, pv, at(14, 59), Live); degraded {
		t.Error("before the boundary sodTod is the intermediate; nothing is missing")
	}
	if _, degraded := c.Unrealized(lots, pv, at(15, 0), Live); !degraded {
		t.Error("exactly at the boundary sodTom must be selected (and is missing here)")
	}
	if _, degraded := c.Unrealized(lots, pv, at(16, 0), Live); !degraded {
		t.Error("after the boundary sodTom must be selected")
	}
}

func TestUnrealized_CloseVariantUsesCloseSlot(t *testing.T) {
	c := calc()
	pv := prices(map[model.Slot]float64{
		model.SlotNow:    111.40,
		model.SlotClose:  111.35,
		model.SlotSodTod: 111.20,
	})

	live, _ := c.Unrealized([]model.Lot{freshLot(2, 111.25)}, pv, at(10, 0), Live)
	cl, _ := c.Unrealized([]model.Lot{freshLot(2, 111.25)}, pv, at(10, 0), Close)
	if live != 300.00 {
		t.Errorf("live: expected 300.00, got %v", live)
	}
	if cl != 200.00 { // (111.35-111.25)*2*1000
		t.Errorf("close: expected 200.00, got %v", cl)
	}
}

func TestUnrealized_MissingReferenceFallsBackToTradePrice(t *testing.T) {
	c := calc()
	var fallbacks []model.Slot
	c.OnFallback = func(_ string, slot model.Slot) { fallbacks = append(fallbacks, slot) }

	// No prices at all: every leg degrades to the trade price and the
	// lot contributes exactly zero.
	got, degraded := c.Unrealized([]model.Lot{freshLot(4, 111.25)}, model.PriceView{}, at(10, 0), Live)
	if !degraded {
		t.Fatal("missing slots must surface as degraded")
	}
	if got != 0 {
		t.Fatalf("full fallback should contribute zero, got %v", got)
	}
	if len(fallbacks) == 0 {
		t.Error("OnFallback hook should have fired")
	}
}

func TestUnrealized_SumAcrossLotsRounded(t *testing.T) {
	c := calc()
	pv := prices(map[model.Slot]float64{
		model.SlotNow:    111.305,
		model.SlotSodTod: 111.20,
	})
	lots := []model.Lot{freshLot(1, 111.25), freshLot(2, 111.30)}

	got, _ := c.Unrealized(lots, pv, at(10, 0), Live)
	// (111.305-111.25)*1*1000 + (111.305-111.30)*2*1000 = 55 + 10 = 65
	if got != 65.00 {
		t.Fatalf("expected 65.00, got %v", got)
	}
}

func TestUnrealized_EmptyLots(t *testing.T) {
	c := calc()
	got, degraded := c.Unrealized(nil, model.PriceView{}, at(10, 0), Live)
	if got != 0 || degraded {
		t.Fatalf("no lots: expected 0/false, got %v/%v", got, degraded)
	}
}
