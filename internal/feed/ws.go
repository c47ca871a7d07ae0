package feed

import (
	"context"
	"log"
	"net/url"
	"time"

	"pnl-enginev1/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds configuration for the WebSocket ingest.
type Config struct {
	// URL of the feed server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to a JSON WebSocket feed and pushes validated trades
// and price updates into the provided channels.
type Ingest struct {
	cfg Config

	// Optional hooks for metrics.
	OnReconnect func()
	OnReject    func(err error)
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects to the feed and streams frames into tradeCh and
// priceCh. Blocks until ctx is cancelled. Reconnects automatically on
// disconnect with exponential backoff.
func (ing *Ingest) Start(ctx context.Context, tradeCh chan<- model.Trade, priceCh chan<- PriceUpdate) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, tradeCh, priceCh)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect
// or ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, tradeCh chan<- model.Trade, priceCh chan<- PriceUpdate) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", ing.cfg.URL)

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		tr, pu, err := Decode(raw)
		if err != nil {
			log.Printf("[feed] rejected frame: %v (raw: %s)", err, raw)
			if ing.OnReject != nil {
				ing.OnReject(err)
			}
			continue
		}

		// Trades must never be dropped: block until the engine accepts.
		// Prices are best-effort; a dropped tick is superseded by the
		// next one.
		if tr != nil {
			select {
			case tradeCh <- *tr:
			case <-ctx.Done():
				return nil
			}
			continue
		}

		select {
		case priceCh <- *pu:
		default:
			log.Printf("[feed] priceCh full, dropping %s tick", pu.Symbol)
		}
	}
}
