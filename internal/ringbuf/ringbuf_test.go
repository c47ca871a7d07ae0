package ringbuf

import (
	"sync"
	"testing"

	"pnl-enginev1/internal/model"
)

func snap(symbol string, open int64) model.PositionSnapshot {
	return model.PositionSnapshot{
		Symbol: symbol,
		FIFO:   model.DisciplineView{OpenQty: open},
	}
}

func TestRing_BasicPushPop(t *testing.T) {
	r := New(4)

	if !r.Push(snap("ZN", 1)) {
		t.Fatal("push ZN should succeed")
	}
	if !r.Push(snap("ES", 2)) {
		t.Fatal("push ES should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.Symbol != "ZN" {
		t.Fatalf("expected ZN, got %v ok=%v", got.Symbol, ok)
	}

	got, ok = r.Pop()
	if !ok || got.Symbol != "ES" {
		t.Fatalf("expected ES, got %v ok=%v", got.Symbol, ok)
	}

	_, ok = r.Pop()
	if ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New(2)

	r.Push(snap("1", 0))
	r.Push(snap("2", 0))

	// Buffer is full
	ok := r.Push(snap("3", 0))
	if ok {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	// Fill and drain multiple times to test wraparound
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(snap("X", int64(round*10+i))) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			s, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if s.FIFO.OpenQty != int64(round*10+i) {
				t.Fatalf("round %d pop %d: expected open=%d, got %d", round, i, round*10+i, s.FIFO.OpenQty)
			}
		}
	}
}

func TestRing_SPSCConcurrent(t *testing.T) {
	r := New(64)
	const total = 10000

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for !r.Push(snap("ZN", int64(i))) {
			}
		}
	}()

	go func() {
		defer wg.Done()
		next := int64(0)
		for next < total {
			s, ok := r.Pop()
			if !ok {
				continue
			}
			if s.FIFO.OpenQty != next {
				t.Errorf("expected %d, got %d", next, s.FIFO.OpenQty)
				return
			}
			next++
		}
	}()

	wg.Wait()
}
