package tradingday

import (
	"testing"
	"time"
)

var chicago = time.FixedZone("CST", -6*3600)

func mk(h, m int) time.Time {
	return time.Date(2024, 3, 12, h, m, 0, 0, chicago)
}

func TestDay_BeforeCutover(t *testing.T) {
	c := New(chicago, DefaultCutoverHour, DefaultIntradayHour)

	// One minute before the 17:00 cutover — still today's trading day.
	if got := c.Day(mk(16, 59)); got != "2024-03-12" {
		t.Fatalf("16:59: expected 2024-03-12, got %s", got)
	}
}

func TestDay_AfterCutover(t *testing.T) {
	c := New(chicago, DefaultCutoverHour, DefaultIntradayHour)

	// One minute after the cutover — next trading day.
	if got := c.Day(mk(17, 1)); got != "2024-03-13" {
		t.Fatalf("17:01: expected 2024-03-13, got %s", got)
	}
	// Exactly at the cutover also rolls forward.
	if got := c.Day(mk(17, 0)); got != "2024-03-13" {
		t.Fatalf("17:00: expected 2024-03-13, got %s", got)
	}
}

func TestDay_MonthRollover(t *testing.T) {
	c := New(chicago, DefaultCutoverHour, DefaultIntradayHour)
	endOfMonth := time.Date(2024, 2, 29, 18, 0, 0, 0, chicago)
	if got := c.Day(endOfMonth); got != "2024-03-01" {
		t.Fatalf("expected 2024-03-01, got %s", got)
	}
}

func TestSessionStart(t *testing.T) {
	c := New(chicago, DefaultCutoverHour, DefaultIntradayHour)

	// Morning of the 12th: session started at 17:00 on the 11th.
	start := c.SessionStart(mk(9, 30))
	want := time.Date(2024, 3, 11, 17, 0, 0, 0, chicago)
	if !start.Equal(want) {
		t.Fatalf("expected session start %v, got %v", want, start)
	}

	// Evening of the 12th: session started at 17:00 today.
	start = c.SessionStart(mk(18, 0))
	want = time.Date(2024, 3, 12, 17, 0, 0, 0, chicago)
	if !start.Equal(want) {
		t.Fatalf("expected session start %v, got %v", want, start)
	}
}

func TestCarried(t *testing.T) {
	c := New(chicago, DefaultCutoverHour, DefaultIntradayHour)
	now := mk(10, 0)

	// Opened yesterday afternoon, before yesterday's 17:00 cutover.
	old := time.Date(2024, 3, 11, 14, 0, 0, 0, chicago)
	if !c.Carried(old, now) {
		t.Error("lot opened before session start should be carried")
	}

	// Opened this morning — same session.
	fresh := mk(8, 0)
	if c.Carried(fresh, now) {
		t.Error("lot opened within the session should not be carried")
	}
}

func TestUseSodTom_BoundaryInclusive(t *testing.T) {
	c := New(chicago, DefaultCutoverHour, DefaultIntradayHour)

	if c.UseSodTom(mk(14, 59)) {
		t.Error("before intraday boundary should select sodTod")
	}
	if !c.UseSodTom(mk(15, 0)) {
		t.Error("exactly at the intraday boundary should select sodTom")
	}
	if !c.UseSodTom(mk(16, 30)) {
		t.Error("after intraday boundary should select sodTom")
	}
}

func TestNextHour(t *testing.T) {
	c := New(chicago, DefaultCutoverHour, DefaultIntradayHour)

	next := c.NextHour(mk(10, 0), 16)
	want := mk(16, 0)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}

	// Already past the hour — next fire is tomorrow.
	next = c.NextHour(mk(16, 30), 16)
	want = time.Date(2024, 3, 13, 16, 0, 0, 0, chicago)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}
