package aggregator

import (
	"context"
	"log"

	"pnl-enginev1/internal/model"
	"pnl-enginev1/internal/notify"

	goredis "github.com/go-redis/redis/v8"
)

// Publisher pushes recomputed snapshots to redis so reporting layers
// can read the latest state without touching sqlite: SET of the latest
// value per symbol plus a PUBLISH for live subscribers, batched into
// one pipeline per recompute pass.
type Publisher struct {
	client  *goredis.Client
	breaker *notify.Breaker
}

// NewPublisher wraps an existing redis client. breaker may be nil;
// sharing the notifier's breaker keeps snapshot pipelines from
// stalling recompute passes during a redis outage.
func NewPublisher(client *goredis.Client, breaker *notify.Breaker) *Publisher {
	return &Publisher{client: client, breaker: breaker}
}

// PublishBatch writes all snapshots in a single pipeline. Errors are
// logged, not returned: sqlite remains the system of record.
func (p *Publisher) PublishBatch(ctx context.Context, snaps []model.PositionSnapshot) {
	if len(snaps) == 0 {
		return
	}

	exec := func() error {
		pipe := p.client.Pipeline()
		for i := range snaps {
			s := &snaps[i]
			data := string(s.JSON())
			pipe.Set(ctx, "pos:latest:"+s.Symbol, data, 0)
			pipe.Publish(ctx, "pub:pos:"+s.Symbol, data)
		}
		_, err := pipe.Exec(ctx)
		return err
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(exec)
	} else {
		err = exec()
	}
	if err != nil && err != notify.ErrBreakerOpen {
		log.Printf("[aggregator] snapshot publish pipeline error (%d symbols): %v", len(snaps), err)
	}
}
