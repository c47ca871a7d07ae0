// Package aggregator orchestrates recomputation of position snapshots.
// On every coalesced change notification it reloads open lots and
// prices, recomputes unrealized P&L for both disciplines, refreshes the
// in-memory read cache, and enqueues the snapshot set to the single
// serialized sqlite writer. Each pass is full and idempotent, so a lost
// or coalesced signal never corrupts state.
package aggregator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"pnl-enginev1/internal/matching"
	"pnl-enginev1/internal/model"
	"pnl-enginev1/internal/pnl"
	"pnl-enginev1/internal/pricestore"
)

// DefaultTopic is the change-notification topic the engine publishes on.
const DefaultTopic = "pnl:changed"

// Config configures the Aggregator.
type Config struct {
	Topic    string
	Debounce time.Duration // 0 = recompute immediately on every signal
}

// Aggregator owns the in-memory position cache. External components
// read through GetPosition/ListPositions and never mutate it directly.
type Aggregator struct {
	cfg      Config
	engine   *matching.Engine
	prices   *pricestore.Store
	calc     *pnl.Calculator
	notifier model.Notifier
	snapCh   chan<- model.PositionSnapshot

	// Publisher pushes recomputed snapshots to redis for external
	// consumers (optional).
	Publisher *Publisher

	mu    sync.RWMutex
	cache map[string]model.PositionSnapshot

	trigger chan struct{}

	// Hooks (optional, for metrics).
	OnRecompute func(d time.Duration, symbols int, degraded int)
	OnCoalesce  func()
}

// New creates an Aggregator. snapCh feeds the sqlite writer.
func New(cfg Config, engine *matching.Engine, prices *pricestore.Store, calc *pnl.Calculator, notifier model.Notifier, snapCh chan<- model.PositionSnapshot) *Aggregator {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return &Aggregator{
		cfg:      cfg,
		engine:   engine,
		prices:   prices,
		calc:     calc,
		notifier: notifier,
		snapCh:   snapCh,
		cache:    make(map[string]model.PositionSnapshot),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a recompute pass. Safe for concurrent callers;
// rapid triggers coalesce into one pending signal.
func (a *Aggregator) Trigger() {
	select {
	case a.trigger <- struct{}{}:
	default:
		if a.OnCoalesce != nil {
			a.OnCoalesce()
		}
	}
}

// Bootstrap rebuilds all in-memory state from the persistent store and
// runs one recompute pass. Must complete before Run starts consuming
// live events.
func (a *Aggregator) Bootstrap(ctx context.Context, loader model.StateLoader) error {
	lots, err := loader.LoadOpenLots()
	if err != nil {
		return err
	}
	totals, err := loader.LoadRealizedTotals()
	if err != nil {
		return err
	}
	keys, err := loader.LoadTradeKeys()
	if err != nil {
		return err
	}
	slots, err := loader.LoadPriceSlots()
	if err != nil {
		return err
	}

	a.engine.Restore(lots, totals, keys)
	a.prices.Load(slots)
	a.recompute(ctx)
	log.Printf("[aggregator] bootstrap complete: %d lots, %d price slots", len(lots), len(slots))
	return nil
}

// Run subscribes to the change topic and serves recompute passes.
// Blocks until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	go func() {
		if err := a.notifier.Subscribe(ctx, a.cfg.Topic, a.Trigger); err != nil && ctx.Err() == nil {
			log.Printf("[aggregator] subscribe error: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.trigger:
			a.debounce(ctx)
			a.recompute(ctx)
		}
	}
}

// debounce absorbs further triggers for the configured window so a
// burst of trades and prices collapses into one pass.
func (a *Aggregator) debounce(ctx context.Context) {
	if a.cfg.Debounce <= 0 {
		return
	}
	timer := time.NewTimer(a.cfg.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.trigger:
			if a.OnCoalesce != nil {
				a.OnCoalesce()
			}
		case <-timer.C:
			return
		}
	}
}

// recompute rebuilds every snapshot from current lot and price state.
// Always a full pass, never an incremental patch.
func (a *Aggregator) recompute(ctx context.Context) {
	start := time.Now()
	now := start
	symbols := a.engine.Symbols()
	snaps := make([]model.PositionSnapshot, 0, len(symbols))
	degradedCount := 0

	for _, sym := range symbols {
		view := a.prices.View(sym)
		snap := model.PositionSnapshot{Symbol: sym, UpdatedAt: now}

		for _, disc := range model.Disciplines {
			lots := a.engine.OpenLots(sym, disc)
			tot := a.engine.Totals(sym, disc)

			var open int64
			for _, l := range lots {
				open += l.RemainingQty
			}
			live, d1 := a.calc.Unrealized(lots, view, now, pnl.Live)
			closeVal, d2 := a.calc.Unrealized(lots, view, now, pnl.Close)
			if d1 || d2 {
				snap.Degraded = true
			}

			dv := model.DisciplineView{
				OpenQty:         open,
				ClosedQty:       tot.ClosedQty,
				RealizedPnL:     tot.RealizedPnL,
				UnrealizedLive:  live,
				UnrealizedClose: closeVal,
			}
			if disc == model.FIFO {
				snap.FIFO = dv
			} else {
				snap.LIFO = dv
			}
		}
		if snap.Degraded {
			degradedCount++
		}
		snaps = append(snaps, snap)
	}

	a.mu.Lock()
	for _, s := range snaps {
		a.cache[s.Symbol] = s
	}
	a.mu.Unlock()

	for _, s := range snaps {
		select {
		case a.snapCh <- s:
		case <-ctx.Done():
			return
		}
	}

	if a.Publisher != nil {
		a.Publisher.PublishBatch(ctx, snaps)
	}

	if a.OnRecompute != nil {
		a.OnRecompute(time.Since(start), len(snaps), degradedCount)
	}
}

// GetPosition returns the cached snapshot for one symbol.
func (a *Aggregator) GetPosition(symbol string) (model.PositionSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.cache[symbol]
	return s, ok
}

// ListPositions returns all cached snapshots sorted by symbol.
func (a *Aggregator) ListPositions() []model.PositionSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.PositionSnapshot, 0, len(a.cache))
	for _, s := range a.cache {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
