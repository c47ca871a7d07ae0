package aggregator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"pnl-enginev1/internal/matching"
	"pnl-enginev1/internal/model"
	"pnl-enginev1/internal/notify"
	"pnl-enginev1/internal/pnl"
	"pnl-enginev1/internal/pricestore"
	"pnl-enginev1/internal/tradingday"
)

type fixture struct {
	engine *matching.Engine
	prices *pricestore.Store
	agg    *Aggregator
	snapCh chan model.PositionSnapshot
	n      *notify.InProc
}

func newFixture(debounce time.Duration) *fixture {
	clock := tradingday.New(time.UTC, tradingday.DefaultCutoverHour, tradingday.DefaultIntradayHour)
	engine := matching.New(clock, 1000)
	prices := pricestore.New()
	calc := pnl.New(clock, 1000)
	n := notify.NewInProc()
	snapCh := make(chan model.PositionSnapshot, 256)

	agg := New(Config{Debounce: debounce}, engine, prices, calc, n, snapCh)
	return &fixture{engine: engine, prices: prices, agg: agg, snapCh: snapCh, n: n}
}

func tradeAt(symbol string, qty int64, price float64, seq int64) model.Trade {
	return model.Trade{
		Symbol: symbol,
		Qty:    qty,
		Price:  price,
		SeqID:  seq,
		TS:     time.Now().Add(-time.Hour),
	}
}

func waitSnapshot(t *testing.T, ch <-chan model.PositionSnapshot, symbol string) model.PositionSnapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Symbol == symbol {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot of %s", symbol)
		}
	}
}

func TestRecompute_BuildsSnapshotFromEngineState(t *testing.T) {
	f := newFixture(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.agg.Run(ctx)

	f.prices.Observe("ZN", 111.30, time.Now())
	f.engine.Apply(tradeAt("ZN", -5, 111.25, 1))
	f.engine.Apply(tradeAt("ZN", 3, 111.20, 2))
	f.agg.Trigger()

	snap := waitSnapshot(t, f.snapCh, "ZN")
	if snap.FIFO.OpenQty != -2 {
		t.Errorf("expected open -2, got %d", snap.FIFO.OpenQty)
	}
	if snap.FIFO.ClosedQty != 3 {
		t.Errorf("expected closed 3, got %d", snap.FIFO.ClosedQty)
	}
	if snap.FIFO.RealizedPnL != 150.00 {
		t.Errorf("expected realized 150.00, got %v", snap.FIFO.RealizedPnL)
	}
	if snap.LIFO.RealizedPnL != snap.FIFO.RealizedPnL {
		t.Errorf("single-lot scenario should match across disciplines")
	}
}

func TestRecompute_UpdatesReadCache(t *testing.T) {
	f := newFixture(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.agg.Run(ctx)

	f.prices.Observe("ES", 5200.00, time.Now())
	f.engine.Apply(tradeAt("ES", 2, 5199.00, 1))
	f.agg.Trigger()
	waitSnapshot(t, f.snapCh, "ES")

	got, ok := f.agg.GetPosition("ES")
	if !ok {
		t.Fatal("cache should hold ES after recompute")
	}
	if got.FIFO.OpenQty != 2 {
		t.Errorf("expected open 2, got %d", got.FIFO.OpenQty)
	}
	if list := f.agg.ListPositions(); len(list) != 1 || list[0].Symbol != "ES" {
		t.Errorf("unexpected position list: %+v", list)
	}
}

func TestRecompute_FlagsDegradedWhenPricesMissing(t *testing.T) {
	f := newFixture(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.agg.Run(ctx)

	// Open position, no prices at all.
	f.engine.Apply(tradeAt("ZB", 1, 118.00, 1))
	f.agg.Trigger()

	snap := waitSnapshot(t, f.snapCh, "ZB")
	if !snap.Degraded {
		t.Error("missing price slots must mark the snapshot degraded")
	}
	if snap.FIFO.UnrealizedLive != 0 {
		t.Errorf("full fallback should yield zero unrealized, got %v", snap.FIFO.UnrealizedLive)
	}
}

func TestTrigger_CoalescesBurst(t *testing.T) {
	f := newFixture(50 * time.Millisecond)
	var coalesced, recomputes atomic.Int64
	f.agg.OnCoalesce = func() { coalesced.Add(1) }
	f.agg.OnRecompute = func(time.Duration, int, int) { recomputes.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.agg.Run(ctx)

	f.engine.Apply(tradeAt("ZN", 1, 111.00, 1))
	for i := 0; i < 50; i++ {
		f.agg.Trigger()
	}

	time.Sleep(300 * time.Millisecond)
	if n := recomputes.Load(); n == 0 {
		t.Fatal("burst should produce at least one recompute")
	} else if n > 3 {
		t.Errorf("burst of 50 triggers should coalesce, got %d recomputes", n)
	}
	if coalesced.Load() == 0 {
		t.Error("expected some triggers to coalesce")
	}
}

func TestNotifierSignalDrivesRecompute(t *testing.T) {
	f := newFixture(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.agg.Run(ctx)
	time.Sleep(20 * time.Millisecond) // let the subscription attach

	f.engine.Apply(tradeAt("ZN", 1, 111.00, 1))
	f.n.Publish(ctx, DefaultTopic)

	waitSnapshot(t, f.snapCh, "ZN")
}

type stubLoader struct {
	lots   []model.Lot
	totals []model.RealizedTotal
	keys   []model.TradeKey
	slots  []model.PriceSlotRow
}

func (s *stubLoader) LoadOpenLots() ([]model.Lot, error)                { return s.lots, nil }
func (s *stubLoader) LoadRealizedTotals() ([]model.RealizedTotal, error) { return s.totals, nil }
func (s *stubLoader) LoadTradeKeys() ([]model.TradeKey, error)          { return s.keys, nil }
func (s *stubLoader) LoadPriceSlots() ([]model.PriceSlotRow, error)     { return s.slots, nil }
func (s *stubLoader) Close() error                                      { return nil }

func TestBootstrap_RestoresStateAndRecomputes(t *testing.T) {
	f := newFixture(0)
	loader := &stubLoader{
		lots: []model.Lot{
			{Symbol: "ZN", Discipline: model.FIFO, EntryPrice: 111.00, RemainingQty: 2, SeqID: 1, TradingDay: "2024-03-12", OpenedAt: time.Now().Add(-time.Hour)},
			{Symbol: "ZN", Discipline: model.LIFO, EntryPrice: 111.00, RemainingQty: 2, SeqID: 1, TradingDay: "2024-03-12", OpenedAt: time.Now().Add(-time.Hour)},
		},
		totals: []model.RealizedTotal{
			{Symbol: "ZN", Discipline: model.FIFO, ClosedQty: 5, RealizedPnL: 250},
			{Symbol: "ZN", Discipline: model.LIFO, ClosedQty: 5, RealizedPnL: 250},
		},
		slots: []model.PriceSlotRow{
			{Symbol: "ZN", Slot: model.SlotNow, Value: 111.10, ObservedAt: time.Now()},
			{Symbol: "ZN", Slot: model.SlotSodTod, Value: 111.00, ObservedAt: time.Now()},
			{Symbol: "ZN", Slot: model.SlotSodTom, Value: 111.00, ObservedAt: time.Now()},
		},
	}

	if err := f.agg.Bootstrap(context.Background(), loader); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	snap, ok := f.agg.GetPosition("ZN")
	if !ok {
		t.Fatal("bootstrap should populate the cache")
	}
	if snap.FIFO.OpenQty != 2 || snap.FIFO.ClosedQty != 5 {
		t.Errorf("restored figures wrong: %+v", snap.FIFO)
	}
	if snap.FIFO.RealizedPnL != 250 {
		t.Errorf("expected realized 250, got %v", snap.FIFO.RealizedPnL)
	}
	// sodTod/sodTom pinned to the entry price, so unrealized reduces to
	// (now - entry) * qty * mult regardless of when the test runs.
	if snap.FIFO.UnrealizedLive != 200.00 {
		t.Errorf("expected unrealized 200.00, got %v", snap.FIFO.UnrealizedLive)
	}
}
