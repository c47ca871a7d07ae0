package matching

import (
	"sync"

	"pnl-enginev1/internal/model"
)

// totals accumulates realized figures for one (symbol, discipline).
type totals struct {
	closedQty   int64
	realizedPnL float64
}

// book owns all matching state for one symbol: both discipline lot
// lists, realized totals, and the dedup set of applied trade keys.
// Its mutex serializes trade application per symbol; different symbols
// proceed in parallel.
type book struct {
	mu     sync.Mutex
	symbol string

	// lots are kept ordered by ascending SeqID. FIFO consumes from the
	// front, LIFO from the back. All open lots for one discipline share
	// the same direction: an opposite trade always consumes before it
	// can open.
	lots map[model.Discipline][]*model.Lot

	realized map[model.Discipline]*totals

	seen    map[string]struct{} // "trading_day#seq_id"
	lastDay string
	lastSeq int64
}

func newBook(symbol string) *book {
	return &book{
		symbol: symbol,
		lots: map[model.Discipline][]*model.Lot{
			model.FIFO: nil,
			model.LIFO: nil,
		},
		realized: map[model.Discipline]*totals{
			model.FIFO: {},
			model.LIFO: {},
		},
		seen: make(map[string]struct{}),
	}
}

// apply matches one trade against one discipline's lots. Caller holds b.mu.
func (b *book) apply(tr *model.Trade, day string, disc model.Discipline, mult float64, out *[]model.LedgerEvent) model.MatchResult {
	var res model.MatchResult
	remaining := tr.Qty
	lots := b.lots[disc]
	tot := b.realized[disc]

	for remaining != 0 && len(lots) > 0 {
		var lot *model.Lot
		if disc == model.FIFO {
			lot = lots[0]
		} else {
			lot = lots[len(lots)-1]
		}
		if sameSign(lot.RemainingQty, remaining) {
			break // nothing left to offset; remainder opens a new lot
		}

		matched := minAbs(remaining, lot.RemainingQty)
		dir := int64(1)
		if !lot.Long() {
			dir = -1
		}
		// Totals accumulate unrounded so both disciplines agree to the
		// cent once a position is flat, however the entry/exit pairing
		// differed; rounding happens on the stored row and at the
		// Totals read edge.
		pnl := (tr.Price - lot.EntryPrice) * float64(matched) * mult * float64(dir)

		r := model.Realization{
			Symbol:      b.symbol,
			Discipline:  disc,
			EntryPrice:  lot.EntryPrice,
			ExitPrice:   tr.Price,
			MatchedQty:  matched,
			RealizedPnL: model.Round2(pnl),
			TradingDay:  day,
			MatchedAt:   tr.TS,
		}
		res.Realizations = append(res.Realizations, r)
		*out = append(*out, model.LedgerEvent{Kind: model.LedgerRealization, Realization: &r})

		tot.closedQty += matched
		tot.realizedPnL += pnl

		// Shrink both sides toward zero.
		lot.RemainingQty -= matched * dir
		remaining += matched * dir

		if lot.RemainingQty == 0 {
			if disc == model.FIFO {
				lots = lots[1:]
			} else {
				lots = lots[:len(lots)-1]
			}
			*out = append(*out, model.LedgerEvent{Kind: model.LedgerLotDelete, Lot: lot})
		} else {
			cp := *lot
			*out = append(*out, model.LedgerEvent{Kind: model.LedgerLotUpsert, Lot: &cp})
		}
	}

	if remaining != 0 {
		// Unmatched quantity opens a new lot; the position may have
		// flipped direction within this single trade.
		lot := &model.Lot{
			Symbol:       b.symbol,
			Discipline:   disc,
			EntryPrice:   tr.Price,
			RemainingQty: remaining,
			SeqID:        tr.SeqID,
			TradingDay:   day,
			OpenedAt:     tr.TS,
		}
		lots = append(lots, lot)
		res.ResidualLot = lot
		cp := *lot
		*out = append(*out, model.LedgerEvent{Kind: model.LedgerLotUpsert, Lot: &cp})
	}

	b.lots[disc] = lots
	return res
}

// openLots returns a copy of the open lots for one discipline,
// ascending by SeqID. Caller holds b.mu.
func (b *book) openLots(disc model.Discipline) []model.Lot {
	src := b.lots[disc]
	out := make([]model.Lot, len(src))
	for i, l := range src {
		out[i] = *l
	}
	return out
}

// netQty returns the signed sum of open lot quantities. Caller holds b.mu.
func (b *book) netQty(disc model.Discipline) int64 {
	var n int64
	for _, l := range b.lots[disc] {
		n += l.RemainingQty
	}
	return n
}

func sameSign(a, b int64) bool {
	return (a > 0) == (b > 0)
}

func minAbs(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a < b {
		return a
	}
	return b
}
