// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and carries a
// trade correlation tag through context.Context so every log line
// emitted while processing one fill can be tied back to it.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

type ctxKey string

const tradeTagKey ctxKey = "trade_tag"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// WithTradeTag stores a trade correlation tag in the context.
func WithTradeTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, tradeTagKey, tag)
}

// TradeTag extracts the correlation tag from context. Returns "" if not set.
func TradeTag(ctx context.Context) string {
	if v, ok := ctx.Value(tradeTagKey).(string); ok {
		return v
	}
	return ""
}

// TagFor builds a correlation tag for one fill. Format:
// "{symbol}/{tradingDay}#{seqID}" — matches the engine's dedup key so
// log lines and ledger rows line up.
func TagFor(symbol, tradingDay string, seqID int64) string {
	return fmt.Sprintf("%s/%s#%d", symbol, tradingDay, seqID)
}

// WithTag returns slog attributes including the trade tag from context.
// Usage: slog.Info("msg", logger.WithTag(ctx)...)
func WithTag(ctx context.Context) []any {
	tag := TradeTag(ctx)
	if tag == "" {
		return nil
	}
	return []any{slog.String("trade_tag", tag)}
}
