// Package tradingday maps wall-clock time to logical trading days.
//
// A trading day rolls at a fixed cutover hour: activity at or after the
// cutover belongs to the NEXT calendar date's trading day. A separate
// intraday boundary hour decides which start-of-day price slot stands in
// as the intermediate reference for unrealized P&L.
package tradingday

import "time"

const (
	// DefaultCutoverHour is the trading-day cutover (17:00 local).
	DefaultCutoverHour = 17

	// DefaultIntradayHour is the intraday price-slot boundary (15:00 local).
	DefaultIntradayHour = 15
)

// DayFormat is the canonical trading-day string layout.
const DayFormat = "2006-01-02"

// Clock converts wall-clock instants to trading days for one venue.
// The zero value is not usable; construct with New.
type Clock struct {
	loc          *time.Location
	cutoverHour  int
	intradayHour int
}

// New creates a Clock for the given location and boundary hours.
// A nil location defaults to time.Local.
func New(loc *time.Location, cutoverHour, intradayHour int) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc, cutoverHour: cutoverHour, intradayHour: intradayHour}
}

// Day returns the logical trading day containing t: the calendar date if
// hour(t) < cutover, otherwise the next date. A trade one minute before
// the cutover belongs to the current day, one minute after to the next.
func (c *Clock) Day(t time.Time) string {
	lt := t.In(c.loc)
	if lt.Hour() >= c.cutoverHour {
		lt = lt.AddDate(0, 0, 1)
	}
	return lt.Format(DayFormat)
}

// SessionStart returns the cutover instant that opened Day(t). Lots
// opened before this instant were carried in from a prior session and
// are marked from the sodTod reference instead of their trade price.
func (c *Clock) SessionStart(t time.Time) time.Time {
	lt := t.In(c.loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), c.cutoverHour, 0, 0, 0, c.loc)
	if lt.Hour() < c.cutoverHour {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// Carried reports whether a lot opened at openedAt was carried into the
// session containing now.
func (c *Clock) Carried(openedAt, now time.Time) bool {
	return openedAt.Before(c.SessionStart(now))
}

// UseSodTom reports whether the intermediate price reference has rolled
// to the sodTom slot. The boundary is inclusive: exactly at the
// intraday hour already selects sodTom.
func (c *Clock) UseSodTom(t time.Time) bool {
	return t.In(c.loc).Hour() >= c.intradayHour
}

// NextHour returns the next instant at which hour h occurs in the
// clock's location, strictly after t. Used to schedule the daily
// rollover wakeup.
func (c *Clock) NextHour(t time.Time, h int) time.Time {
	lt := t.In(c.loc)
	next := time.Date(lt.Year(), lt.Month(), lt.Day(), h, 0, 0, 0, c.loc)
	if !next.After(lt) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Location returns the clock's time zone.
func (c *Clock) Location() *time.Location { return c.loc }
