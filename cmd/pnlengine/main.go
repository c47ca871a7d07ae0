// cmd/pnlengine — trading positions & P&L engine.
//
// Pipeline:
//
//	[Feed WS] → [validate] → [matching engine (FIFO+LIFO)] ─┐
//	            [price store (now/close/sodTod/sodTom)] ────┤→ [notify] → [aggregator] → [redis / sqlite]
//	                                                        └→ [ledger → sqlite writer]
//
// On startup all state is rebuilt from sqlite before live frames are
// consumed, so a crash or restart never loses accepted trades and
// replayed frames are ignored via the (trading_day, seq_id) key.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pnl-enginev1/config"
	"pnl-enginev1/internal/aggregator"
	"pnl-enginev1/internal/feed"
	"pnl-enginev1/internal/matching"
	"pnl-enginev1/internal/metrics"
	"pnl-enginev1/internal/model"
	"pnl-enginev1/internal/notify"
	"pnl-enginev1/internal/pnl"
	"pnl-enginev1/internal/pricestore"
	sqlitestore "pnl-enginev1/internal/store/sqlite"
	"pnl-enginev1/internal/tradingday"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[pnlengine] starting...")

	cfg := config.Load()
	loc := cfg.Location()
	clock := tradingday.New(loc, cfg.CutoverHour, cfg.IntradayHour)
	log.Printf("[pnlengine] session tz=%s cutover=%02d:00 intraday=%02d:00 rollover=%02d:00 mult=%v",
		cfg.Timezone, cfg.CutoverHour, cfg.IntradayHour, cfg.RolloverHour, cfg.PointMultiplier)

	// ---- Pipeline channels ----
	tradeCh := make(chan model.Trade, 10000)
	priceCh := make(chan feed.PriceUpdate, 10000)
	ledgerCh := make(chan model.LedgerEvent, 10000)
	snapCh := make(chan model.PositionSnapshot, 5000)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite writer (off hot path) ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[pnlengine] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(d time.Duration, rows int) {
		prom.SQLiteCommitDur.Observe(d.Seconds())
	}
	sqlWriter.OnRetry = func() { prom.SQLiteRetries.Inc() }
	sqlWriter.OnPending = func(n int) { prom.SnapshotQueueLen.Set(float64(n)) }
	health.SetSQLiteOK(true)
	log.Println("[pnlengine] sqlite writer ready")

	// ---- Change notifier: redis pubsub, in-process fallback ----
	var notifier model.Notifier
	var redisNotify *notify.Redis
	redisNotify, err = notify.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Printf("[pnlengine] WARNING: redis init failed: %v (continuing with in-process notify)", err)
		health.SetRedisConnected(false)
		notifier = notify.NewInProc()
	} else {
		health.SetRedisConnected(true)
		notifier = redisNotify
		log.Println("[pnlengine] redis notifier ready")
	}

	// ---- Periodic liveness checks ----
	if redisNotify != nil {
		health.StartLivenessChecker(ctx, redisNotify.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Matching engine ----
	engine := matching.New(clock, cfg.PointMultiplier)
	engine.AttachLedger(ledgerCh)
	engine.OnChange = func() {
		prom.TradesApplied.Inc()
		notifier.Publish(ctx, aggregator.DefaultTopic)
	}
	engine.OnDuplicate = func() { prom.TradesDuplicate.Inc() }
	engine.OnRealization = func(n int) { prom.Realizations.Add(float64(n)) }

	// ---- Price store + daily rollover ----
	prices := pricestore.New()
	prices.AttachLedger(ledgerCh)
	prices.OnChange = func() {
		prom.PriceUpdates.Inc()
		notifier.Publish(ctx, aggregator.DefaultTopic)
	}

	rollover := pricestore.NewScheduler(prices, clock, cfg.RolloverHour)
	rollover.OnRollover = func(rolled int) {
		prom.RolloversTotal.Inc()
		log.Printf("[pnlengine] day-close rollover done (%d symbols)", rolled)
	}

	// ---- P&L calculator ----
	calc := pnl.New(clock, cfg.PointMultiplier)
	calc.OnFallback = func(symbol string, slot model.Slot) {
		prom.MissingPriceFallbacks.WithLabelValues(string(slot)).Inc()
	}

	// ---- Aggregator ----
	agg := aggregator.New(
		aggregator.Config{Debounce: cfg.Debounce()},
		engine, prices, calc, notifier, snapCh,
	)
	agg.OnRecompute = func(d time.Duration, symbols, degraded int) {
		prom.RecomputeDur.Observe(d.Seconds())
		prom.RecomputesTotal.Inc()
		prom.DegradedSymbols.Set(float64(degraded))
	}
	agg.OnCoalesce = func() { prom.RecomputeCoalesce.Inc() }
	if redisNotify != nil {
		agg.Publisher = aggregator.NewPublisher(redisNotify.Client(), redisNotify.Breaker())
	}

	// ---- Recover state from sqlite BEFORE consuming live frames ----
	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[pnlengine] sqlite reader init failed: %v", err)
	}
	if err := agg.Bootstrap(ctx, reader); err != nil {
		log.Fatalf("[pnlengine] bootstrap failed: %v", err)
	}
	reader.Close()

	// ---- Start persistence and aggregation loops ----
	go sqlWriter.RunLedger(ctx, ledgerCh)
	go sqlWriter.Run(ctx, snapCh)
	go agg.Run(ctx)
	go rollover.Run(ctx)

	// ---- Ingest dispatch: trades and prices off the feed channels ----
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tr := <-tradeCh:
				health.SetLastTradeTime(time.Now())
				engine.Apply(tr)
			case pu := <-priceCh:
				prices.Set(pu.Symbol, pu.Slot, pu.Value, pu.ObservedAt)
			}
		}
	}()

	// ---- Feed WS ----
	ingest, err := feed.New(feed.Config{URL: cfg.FeedURL})
	if err != nil {
		log.Fatalf("[pnlengine] feed init failed: %v", err)
	}
	ingest.OnReconnect = func() {
		prom.FeedReconnects.Inc()
		health.SetFeedConnected(false)
	}
	ingest.OnReject = func(error) { prom.TradesRejected.Inc() }
	health.SetFeedConnected(true)

	go func() {
		if err := ingest.Start(ctx, tradeCh, priceCh); err != nil {
			log.Printf("[pnlengine] feed error: %v", err)
			health.SetFeedConnected(false)
		}
	}()

	log.Printf("[pnlengine] pipeline ready, feed=%s metrics=%s", cfg.FeedURL, cfg.MetricsAddr)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[pnlengine] shutdown signal received, cleaning up...")
	cancel()

	// Give the writer loops time to flush their batches.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	time.Sleep(500 * time.Millisecond)

	if redisNotify != nil {
		redisNotify.Close()
	}

	log.Println("[pnlengine] shutdown complete.")
}
