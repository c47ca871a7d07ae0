package pricestore

import (
	"context"
	"log"
	"time"

	"pnl-enginev1/internal/model"
	"pnl-enginev1/internal/tradingday"
)

// Scheduler fires the day-close sequence once per trading day at a
// configured hour: the last observed price is captured into the close
// slot, then the staged sodTom values roll into sodTod.
type Scheduler struct {
	store *Store
	clock *tradingday.Clock
	hour  int

	// OnRollover is called after each completed rollover (optional).
	OnRollover func(rolled int)
}

// NewScheduler creates a Scheduler firing at hour in the clock's zone.
func NewScheduler(store *Store, clock *tradingday.Clock, hour int) *Scheduler {
	return &Scheduler{store: store, clock: clock, hour: hour}
}

// Run blocks until ctx is cancelled, waking once per day at the
// configured hour.
func (sc *Scheduler) Run(ctx context.Context) {
	for {
		next := sc.clock.NextHour(time.Now(), sc.hour)
		log.Printf("[pricestore] next rollover at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			sc.Fire(next)
		}
	}
}

// Fire captures closing prices and performs the rollover. Split out of
// Run so tests and manual triggers can invoke it directly; a second
// call for the same day is a no-op because sodTom is already cleared.
func (sc *Scheduler) Fire(at time.Time) {
	for _, symbol := range sc.store.Symbols() {
		if obs, ok := sc.store.Get(symbol, model.SlotNow); ok {
			sc.store.Set(symbol, model.SlotClose, obs.Value, at)
		}
	}
	rolled := sc.store.Rollover()
	if sc.OnRollover != nil {
		sc.OnRollover(rolled)
	}
}
