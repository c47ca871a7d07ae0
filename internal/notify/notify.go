// Package notify implements the change-notification channel: a minimal
// fire-and-coalesce publish/subscribe primitive. The redis-backed
// implementation carries signals across processes; the in-process
// implementation is the degraded fallback when redis is unavailable.
package notify

import (
	"context"
	"sync"
)

// InProc is a process-local Notifier. Each topic is a 1-slot signal
// channel: publishing while a signal is already pending coalesces into
// that pending signal, which is exactly the delivery guarantee the
// aggregator needs.
type InProc struct {
	mu     sync.Mutex
	topics map[string]chan struct{}
}

// NewInProc creates an in-process Notifier.
func NewInProc() *InProc {
	return &InProc{topics: make(map[string]chan struct{})}
}

func (n *InProc) topic(name string) chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.topics[name]
	if !ok {
		ch = make(chan struct{}, 1)
		n.topics[name] = ch
	}
	return ch
}

// Publish signals the topic, coalescing with any pending signal.
func (n *InProc) Publish(_ context.Context, topic string) {
	select {
	case n.topic(topic) <- struct{}{}:
	default: // signal already pending
	}
}

// Subscribe invokes fn for every delivered signal until ctx is cancelled.
func (n *InProc) Subscribe(ctx context.Context, topic string, fn func()) error {
	ch := n.topic(topic)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			fn()
		}
	}
}

// Close implements model.Notifier; nothing to release.
func (n *InProc) Close() error { return nil }
