// cmd/feedsim — Demo WebSocket feed server.
// Broadcasts simulated trade and price frames for testing pnlengine
// without a real upstream feed.
//
// Frame JSON shapes match internal/feed.Frame:
//
//	{"type":"trade","symbol":"ZN","qty":-3,"price":111.20,"seq_id":42,"ts":"..."}
//	{"type":"price","symbol":"ZN","value":111.25,"ts":"..."}
//
// Config (env vars):
//
//	FEEDSIM_ADDR         — listen address (default: ":9001")
//	FEEDSIM_SYMBOLS      — comma-separated SYMBOL:PRICE pairs (default: "ZN:111.20,ES:5200.00")
//	FEEDSIM_PRICE_MS     — price broadcast interval milliseconds (default: "250")
//	FEEDSIM_TRADE_MS     — trade broadcast interval milliseconds (default: "2000")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	Type   string    `json:"type"`
	Symbol string    `json:"symbol"`
	Qty    int64     `json:"qty,omitempty"`
	Price  float64   `json:"price,omitempty"`
	SeqID  int64     `json:"seq_id,omitempty"`
	Value  float64   `json:"value,omitempty"`
	TS     time.Time `json:"ts"`
}

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64 // current simulated price
}

// book guards the simulated prices; the price and trade generators run
// in separate goroutines.
type book struct {
	mu          sync.Mutex
	instruments []instrument
}

func (b *book) walk(i int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instruments[i].Price = walkPrice(b.instruments[i].Price)
	return b.instruments[i].Price
}

func (b *book) pick() (string, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inst := &b.instruments[rand.Intn(len(b.instruments))]
	return inst.Symbol, inst.Price
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop frame
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends frame JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Frame generators ─────────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price * (1 + pct)
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	return newPrice
}

func runPriceGenerator(h *hub, bk *book, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range bk.instruments {
			price := bk.walk(i)
			b, err := json.Marshal(frame{
				Type:   "price",
				Symbol: bk.instruments[i].Symbol,
				Value:  price,
				TS:     time.Now().UTC(),
			})
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

func runTradeGenerator(h *hub, bk *book, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	var seq int64
	for range ticker.C {
		symbol, price := bk.pick()
		seq++
		qty := int64(rand.Intn(10) + 1)
		if rand.Intn(2) == 0 {
			qty = -qty
		}
		b, err := json.Marshal(frame{
			Type:   "trade",
			Symbol: symbol,
			Qty:    qty,
			Price:  price,
			SeqID:  seq,
			TS:     time.Now().UTC(),
		})
		if err != nil {
			continue
		}
		h.broadcast(b)
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo feed server...")

	addr := envOrDefault("FEEDSIM_ADDR", ":9001")
	symbolsEnv := envOrDefault("FEEDSIM_SYMBOLS", "ZN:111.20,ES:5200.00")
	priceMs := envIntOrDefault("FEEDSIM_PRICE_MS", 250)
	tradeMs := envIntOrDefault("FEEDSIM_TRADE_MS", 2000)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[feedsim] no symbols configured via FEEDSIM_SYMBOLS")
	}
	log.Printf("[feedsim] instruments: %+v", instruments)
	log.Printf("[feedsim] price interval: %dms, trade interval: %dms", priceMs, tradeMs)

	h := newHub()
	bk := &book{instruments: instruments}

	go runPriceGenerator(h, bk, priceMs)
	go runTradeGenerator(h, bk, tradeMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 2)
		if len(seg) != 2 {
			log.Printf("[feedsim] skipping invalid symbol spec: %q", part)
			continue
		}
		symbol := strings.TrimSpace(seg[0])
		price, err := strconv.ParseFloat(strings.TrimSpace(seg[1]), 64)
		if err != nil || price <= 0 {
			log.Printf("[feedsim] skipping invalid price in spec: %q", part)
			continue
		}
		result = append(result, instrument{Symbol: symbol, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
