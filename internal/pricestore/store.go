// Package pricestore holds the four named reference prices per symbol
// (now, close, sodTod, sodTom) and implements the rollover transitions
// that shift values between slots at defined times of day.
package pricestore

import (
	"log"
	"sync"
	"time"

	"pnl-enginev1/internal/model"
)

// Store is the in-memory price-slot table. All mutations also emit
// durable ledger events when a ledger channel is attached, and fire
// OnChange so the aggregator can recompute.
type Store struct {
	mu    sync.RWMutex
	slots map[string]map[model.Slot]model.Observation

	// OnChange is called after every mutation (optional).
	OnChange func()

	ledgerCh chan<- model.LedgerEvent
}

// New creates an empty Store.
func New() *Store {
	return &Store{slots: make(map[string]map[model.Slot]model.Observation)}
}

// AttachLedger routes durable slot mutations to the sqlite writer.
func (s *Store) AttachLedger(ch chan<- model.LedgerEvent) { s.ledgerCh = ch }

// Observe records a live price observation: the now slot is overwritten
// and the same value is staged into sodTom as the next session's opening
// reference. Applying the same observation twice is a no-op by value.
func (s *Store) Observe(symbol string, value float64, ts time.Time) {
	obs := model.Observation{Value: value, ObservedAt: ts}
	s.mu.Lock()
	m := s.symbolSlots(symbol)
	m[model.SlotNow] = obs
	m[model.SlotSodTom] = obs
	s.mu.Unlock()

	s.persist(symbol, model.SlotNow, obs)
	s.persist(symbol, model.SlotSodTom, obs)
	s.changed()
}

// Set writes a single slot directly (close events, feed-supplied
// references, recovery). Setting the now slot goes through Observe so
// the sodTom staging invariant holds.
func (s *Store) Set(symbol string, slot model.Slot, value float64, ts time.Time) {
	if slot == model.SlotNow {
		s.Observe(symbol, value, ts)
		return
	}
	obs := model.Observation{Value: value, ObservedAt: ts}
	s.mu.Lock()
	s.symbolSlots(symbol)[slot] = obs
	s.mu.Unlock()

	s.persist(symbol, slot, obs)
	s.changed()
}

// Rollover performs the day-close transition for every symbol:
// sodTod takes the staged sodTom value (original observation timestamp
// preserved) and sodTom is cleared. A retry after completion is a no-op
// because the staged slot is already empty.
func (s *Store) Rollover() int {
	s.mu.Lock()
	rolled := 0
	type move struct {
		symbol string
		obs    model.Observation
	}
	var moves []move
	for symbol, m := range s.slots {
		staged, ok := m[model.SlotSodTom]
		if !ok {
			continue
		}
		m[model.SlotSodTod] = staged
		delete(m, model.SlotSodTom)
		moves = append(moves, move{symbol, staged})
		rolled++
	}
	s.mu.Unlock()

	for _, mv := range moves {
		s.persist(mv.symbol, model.SlotSodTod, mv.obs)
		s.clearPersisted(mv.symbol, model.SlotSodTom)
	}
	if rolled > 0 {
		log.Printf("[pricestore] rolled over %d symbols", rolled)
		s.changed()
	}
	return rolled
}

// Get returns one slot value for a symbol.
func (s *Store) Get(symbol string, slot model.Slot) (model.Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.slots[symbol]
	if !ok {
		return model.Observation{}, false
	}
	obs, ok := m[slot]
	return obs, ok
}

// View returns a consistent copy of all slots for a symbol.
func (s *Store) View(symbol string) model.PriceView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := make(model.PriceView, 4)
	for slot, obs := range s.slots[symbol] {
		v[slot] = obs
	}
	return v
}

// Load seeds the store from persisted rows during recovery. No ledger
// events or change notifications are emitted.
func (s *Store) Load(rows []model.PriceSlotRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.symbolSlots(r.Symbol)[r.Slot] = model.Observation{Value: r.Value, ObservedAt: r.ObservedAt}
	}
}

// Symbols returns all symbols with at least one slot value.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.slots))
	for sym := range s.slots {
		out = append(out, sym)
	}
	return out
}

func (s *Store) symbolSlots(symbol string) map[model.Slot]model.Observation {
	m, ok := s.slots[symbol]
	if !ok {
		m = make(map[model.Slot]model.Observation, 4)
		s.slots[symbol] = m
	}
	return m
}

func (s *Store) persist(symbol string, slot model.Slot, obs model.Observation) {
	if s.ledgerCh == nil {
		return
	}
	s.ledgerCh <- model.LedgerEvent{
		Kind:  model.LedgerPriceSlot,
		Price: &model.PriceSlotRow{Symbol: symbol, Slot: slot, Value: obs.Value, ObservedAt: obs.ObservedAt},
	}
}

func (s *Store) clearPersisted(symbol string, slot model.Slot) {
	if s.ledgerCh == nil {
		return
	}
	s.ledgerCh <- model.LedgerEvent{
		Kind:  model.LedgerPriceSlotClear,
		Price: &model.PriceSlotRow{Symbol: symbol, Slot: slot},
	}
}

func (s *Store) changed() {
	if s.OnChange != nil {
		s.OnChange()
	}
}
