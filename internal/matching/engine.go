// Package matching applies incoming trades against open lots under both
// matching disciplines (FIFO and LIFO), producing realized P&L records
// and updated lot state. Application is serialized per symbol; both
// discipline books see every trade independently and symmetrically.
package matching

import (
	"log"
	"sort"
	"sync"

	"pnl-enginev1/internal/model"
	"pnl-enginev1/internal/tradingday"
)

// DefaultPointMultiplier converts price-unit differences into currency
// P&L for the instrument class this book trades.
const DefaultPointMultiplier = 1000.0

// Engine owns the per-symbol books. It is safe for concurrent use:
// trades on different symbols apply in parallel, trades on one symbol
// queue behind that symbol's lock in arrival order.
type Engine struct {
	mu    sync.RWMutex
	books map[string]*book

	clock *tradingday.Clock
	mult  float64

	ledgerCh chan<- model.LedgerEvent

	// Hooks (optional, set before first Apply).
	OnChange      func()      // fired after every applied trade
	OnDuplicate   func()      // fired when a replayed trade is ignored
	OnRealization func(n int) // fired with the realization count per apply
}

// New creates an Engine with the given clock and point multiplier.
func New(clock *tradingday.Clock, mult float64) *Engine {
	if mult <= 0 {
		mult = DefaultPointMultiplier
	}
	return &Engine{
		books: make(map[string]*book),
		clock: clock,
		mult:  mult,
	}
}

// AttachLedger routes durable mutations to the sqlite writer.
func (e *Engine) AttachLedger(ch chan<- model.LedgerEvent) { e.ledgerCh = ch }

// Apply matches trade against both discipline books. Replays of an
// already-seen (trading_day, seq_id) key are silent no-ops. An unknown
// symbol gets a fresh book, not an error. Results are indexed FIFO=0,
// LIFO=1 matching model.Disciplines.
func (e *Engine) Apply(tr model.Trade) [2]model.MatchResult {
	day := e.clock.Day(tr.TS)
	b := e.book(tr.Symbol)

	var results [2]model.MatchResult
	var events []model.LedgerEvent

	b.mu.Lock()
	key := tr.Key(day)
	if _, dup := b.seen[key]; dup {
		b.mu.Unlock()
		log.Printf("[matching] duplicate trade %s %s ignored", tr.Symbol, key)
		if e.OnDuplicate != nil {
			e.OnDuplicate()
		}
		results[0].Duplicate = true
		results[1].Duplicate = true
		return results
	}
	b.seen[key] = struct{}{}

	if day == b.lastDay && tr.SeqID < b.lastSeq {
		log.Printf("[matching] WARNING: %s seq %d arrived after %d on %s", tr.Symbol, tr.SeqID, b.lastSeq, day)
	}
	b.lastDay, b.lastSeq = day, tr.SeqID

	events = append(events, model.LedgerEvent{Kind: model.LedgerTrade, Trade: &tr, TradingDay: day})
	nReal := 0
	for i, disc := range model.Disciplines {
		results[i] = b.apply(&tr, day, disc, e.mult, &events)
		nReal += len(results[i].Realizations)
	}

	// Emit while still holding the book lock: a concurrent Apply on the
	// same symbol must not interleave its lot upserts/deletes with ours,
	// or recovery could resurrect a closed lot.
	if e.ledgerCh != nil {
		for _, ev := range events {
			e.ledgerCh <- ev
		}
	}
	b.mu.Unlock()

	if e.OnRealization != nil && nReal > 0 {
		e.OnRealization(nReal)
	}
	if e.OnChange != nil {
		e.OnChange()
	}
	return results
}

// OpenLots returns a copy of the open lots for (symbol, discipline),
// ascending by SeqID.
func (e *Engine) OpenLots(symbol string, disc model.Discipline) []model.Lot {
	e.mu.RLock()
	b, ok := e.books[symbol]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLots(disc)
}

// NetQty returns the signed sum of open lot quantities for (symbol, discipline).
func (e *Engine) NetQty(symbol string, disc model.Discipline) int64 {
	e.mu.RLock()
	b, ok := e.books[symbol]
	e.mu.RUnlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.netQty(disc)
}

// Totals returns the realized aggregate for (symbol, discipline).
func (e *Engine) Totals(symbol string, disc model.Discipline) model.RealizedTotal {
	e.mu.RLock()
	b, ok := e.books[symbol]
	e.mu.RUnlock()
	if !ok {
		return model.RealizedTotal{Symbol: symbol, Discipline: disc}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.realized[disc]
	return model.RealizedTotal{
		Symbol:      symbol,
		Discipline:  disc,
		ClosedQty:   t.closedQty,
		RealizedPnL: model.Round2(t.realizedPnL),
	}
}

// Symbols returns every symbol with a book, sorted for stable iteration.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Restore rebuilds books from persisted state. Must be called before
// any Apply; no ledger events or notifications are emitted.
func (e *Engine) Restore(lots []model.Lot, realized []model.RealizedTotal, keys []model.TradeKey) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range lots {
		l := lots[i]
		b := e.bookLocked(l.Symbol)
		b.lots[l.Discipline] = append(b.lots[l.Discipline], &l)
	}
	for _, b := range e.books {
		for _, disc := range model.Disciplines {
			ls := b.lots[disc]
			sort.Slice(ls, func(i, j int) bool {
				if ls[i].TradingDay != ls[j].TradingDay {
					return ls[i].TradingDay < ls[j].TradingDay
				}
				return ls[i].SeqID < ls[j].SeqID
			})
		}
	}
	for _, rt := range realized {
		b := e.bookLocked(rt.Symbol)
		b.realized[rt.Discipline] = &totals{closedQty: rt.ClosedQty, realizedPnL: rt.RealizedPnL}
	}
	for _, k := range keys {
		b := e.bookLocked(k.Symbol)
		b.seen[tradeKeyString(k)] = struct{}{}
	}
	log.Printf("[matching] restored %d symbols, %d lots, %d trade keys", len(e.books), len(lots), len(keys))
}

func (e *Engine) book(symbol string) *book {
	e.mu.RLock()
	b, ok := e.books[symbol]
	e.mu.RUnlock()
	if ok {
		return b
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bookLocked(symbol)
}

func (e *Engine) bookLocked(symbol string) *book {
	b, ok := e.books[symbol]
	if !ok {
		b = newBook(symbol)
		e.books[symbol] = b
	}
	return b
}

func tradeKeyString(k model.TradeKey) string {
	t := model.Trade{SeqID: k.SeqID}
	return t.Key(k.TradingDay)
}
