package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Redis is a Notifier backed by Redis PubSub. Signals fan out to every
// subscribed process; payloads are empty because the aggregator always
// recomputes in full from authoritative state.
type Redis struct {
	client  *goredis.Client
	breaker *Breaker
}

// NewRedis connects to Redis and pings the server.
func NewRedis(addr, password string) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	breaker := NewBreaker(5, 10*time.Second)
	breaker.OnStateChange = func(from, to State) {
		log.Printf("[notify] redis breaker %s -> %s", from, to)
	}

	log.Printf("[notify] connected to redis at %s", addr)
	return &Redis{client: client, breaker: breaker}, nil
}

// Breaker exposes the publish breaker so other redis producers can
// share its outage detection.
func (n *Redis) Breaker() *Breaker { return n.breaker }

// Client returns the underlying client for health checks and the
// snapshot publisher.
func (n *Redis) Client() *goredis.Client { return n.client }

// Publish signals the topic. Errors are logged, not returned: a lost
// signal only delays the next recompute until the following trigger.
// During an outage the breaker skips publishes instead of blocking on
// connect timeouts.
func (n *Redis) Publish(ctx context.Context, topic string) {
	err := n.breaker.Execute(func() error {
		return n.client.Publish(ctx, topic, "").Err()
	})
	if err != nil && err != ErrBreakerOpen {
		log.Printf("[notify] publish %s: %v", topic, err)
	}
}

// Subscribe invokes fn for every message on topic. Blocks until ctx is
// cancelled.
func (n *Redis) Subscribe(ctx context.Context, topic string, fn func()) error {
	pubsub := n.client.Subscribe(ctx, topic)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			fn()
		}
	}
}

// Close closes the redis connection.
func (n *Redis) Close() error { return n.client.Close() }
