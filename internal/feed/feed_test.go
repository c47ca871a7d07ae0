package feed

import (
	"strings"
	"testing"
	"time"

	"pnl-enginev1/internal/model"
)

func TestDecode_TradeFrame(t *testing.T) {
	raw := []byte(`{"type":"trade","symbol":"ZN","qty":-3,"price":111.20,"seq_id":42,"ts":"2024-03-12T14:30:00Z"}`)
	tr, pu, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pu != nil {
		t.Fatal("trade frame must not yield a price update")
	}
	if tr.Symbol != "ZN" || tr.Qty != -3 || tr.Price != 111.20 || tr.SeqID != 42 {
		t.Errorf("unexpected trade: %+v", tr)
	}
	want := time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC)
	if !tr.TS.Equal(want) {
		t.Errorf("expected ts %v, got %v", want, tr.TS)
	}
}

func TestDecode_PriceFrame(t *testing.T) {
	raw := []byte(`{"type":"price","symbol":"ES","value":5200.25,"ts":"2024-03-12T14:30:00Z"}`)
	tr, pu, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr != nil {
		t.Fatal("price frame must not yield a trade")
	}
	if pu.Symbol != "ES" || pu.Value != 5200.25 {
		t.Errorf("unexpected price update: %+v", pu)
	}
	if pu.Slot != model.SlotNow {
		t.Errorf("missing slot should default to now, got %q", pu.Slot)
	}
}

func TestDecode_PriceFrameNamedSlot(t *testing.T) {
	raw := []byte(`{"type":"price","symbol":"ES","slot":"sodTod","value":5190.00,"ts":"2024-03-12T14:30:00Z"}`)
	_, pu, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pu.Slot != model.SlotSodTod {
		t.Errorf("expected sodTod, got %q", pu.Slot)
	}
}

func TestDecode_RejectsInvalidFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"garbage", `not json`, "parse frame"},
		{"missing symbol", `{"type":"trade","qty":1,"price":1,"seq_id":1}`, "symbol"},
		{"zero qty", `{"type":"trade","symbol":"ZN","qty":0,"price":111.2,"seq_id":1}`, "quantity"},
		{"negative price", `{"type":"trade","symbol":"ZN","qty":1,"price":-1,"seq_id":1}`, "price"},
		{"zero seq", `{"type":"trade","symbol":"ZN","qty":1,"price":111.2,"seq_id":0}`, "seq_id"},
		{"zero value", `{"type":"price","symbol":"ZN","value":0}`, "value"},
		{"unknown slot", `{"type":"price","symbol":"ZN","slot":"open","value":111.2}`, "unknown slot"},
		{"unknown type", `{"type":"candle","symbol":"ZN"}`, "unknown frame type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, pu, err := Decode([]byte(tc.raw))
			if err == nil {
				t.Fatalf("expected error, got trade=%+v price=%+v", tr, pu)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestDecode_DefaultsMissingTimestamp(t *testing.T) {
	raw := []byte(`{"type":"price","symbol":"ZN","value":111.20}`)
	_, pu, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pu.ObservedAt.IsZero() {
		t.Error("missing ts should default to now")
	}
}
