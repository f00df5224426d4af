// Package feed connects to the venue trade stream, normalizes raw trade
// events into ticks, and pushes them into the price cache, the broadcast hub
// and the tick-driven workers.
package feed

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/argo-exchange/internal/logger"
	"github.com/rxtech-lab/argo-exchange/internal/market/cache"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"go.uber.org/zap"
)

// StreamFunc opens a combined trade stream for the given symbols. It matches
// binance.WsCombinedTradeServe so tests can substitute a fake stream.
type StreamFunc func(symbols []string, handler binance.WsCombinedTradeHandler, errHandler binance.ErrHandler) (doneC, stopC chan struct{}, err error)

// Broadcaster is the hub surface the ingester needs.
type Broadcaster interface {
	Broadcast(payload any)
}

// TickSink receives every accepted tick. Implementations must not block.
type TickSink interface {
	OnTick(tick types.PriceTick)
}

// Ingester owns the stream lifecycle: connect, consume, and on any failure
// reconnect with exponential backoff.
type Ingester struct {
	symbols []string
	cache   *cache.PriceCache
	hub     Broadcaster
	sinks   []TickSink
	stream  StreamFunc
	logger  *logger.Logger
}

func NewIngester(symbols []string, priceCache *cache.PriceCache, broadcaster Broadcaster, log *logger.Logger, sinks ...TickSink) *Ingester {
	return &Ingester{
		symbols: symbols,
		cache:   priceCache,
		hub:     broadcaster,
		sinks:   sinks,
		stream:  binance.WsCombinedTradeServe,
		logger:  log,
	}
}

// SetStream replaces the stream opener. Used by tests.
func (in *Ingester) SetStream(stream StreamFunc) {
	in.stream = stream
}

// Run consumes the stream until ctx is cancelled, reconnecting on failure.
func (in *Ingester) Run(ctx context.Context) {
	consecutiveFailures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		doneC, stopC, err := in.stream(in.symbols, in.handleTradeEvent, in.handleStreamError)
		if err != nil {
			consecutiveFailures++
			delay := backoffDelay(consecutiveFailures)
			in.logger.Error("failed to open trade stream",
				zap.Error(err),
				zap.Int("consecutive_failures", consecutiveFailures),
				zap.Duration("retry_in", delay))

			if !in.sleep(ctx, delay) {
				return
			}
			continue
		}

		consecutiveFailures = 0
		in.logger.Info("trade stream connected", zap.Strings("symbols", in.symbols))
		in.hub.Broadcast(types.StatusMessage{
			Type:   types.MessageTypeStatus,
			Status: types.FeedStatusConnected,
		})

		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}

		consecutiveFailures++
		delay := backoffDelay(consecutiveFailures)
		in.logger.Warn("trade stream closed, reconnecting",
			zap.Int("consecutive_failures", consecutiveFailures),
			zap.Duration("retry_in", delay))
		in.hub.Broadcast(types.StatusMessage{
			Type:   types.MessageTypeStatus,
			Status: types.FeedStatusDisconnected,
		})

		if !in.sleep(ctx, delay) {
			return
		}
	}
}

func (in *Ingester) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// handleTradeEvent normalizes a raw combined trade event. Malformed events
// are logged and skipped; the stream keeps running.
func (in *Ingester) handleTradeEvent(event *binance.WsCombinedTradeEvent) {
	if event == nil {
		return
	}

	trade := event.Data
	if trade.Symbol == "" {
		in.logger.Warn("skipping trade event without symbol", zap.String("stream", event.Stream))
		return
	}

	price, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil || price <= 0 {
		in.logger.Warn("skipping trade event with unparseable price",
			zap.String("symbol", trade.Symbol),
			zap.String("price", trade.Price),
			zap.Error(err))
		return
	}

	quantity, err := strconv.ParseFloat(trade.Quantity, 64)
	if err != nil {
		in.logger.Warn("skipping trade event with unparseable quantity",
			zap.String("symbol", trade.Symbol),
			zap.String("quantity", trade.Quantity),
			zap.Error(err))
		return
	}

	tick := types.PriceTick{
		Symbol:    trade.Symbol,
		Price:     price,
		Quantity:  quantity,
		Timestamp: time.UnixMilli(trade.TradeTime),
	}

	in.cache.Update(tick)

	in.hub.Broadcast(types.PriceUpdateMessage{
		Type:      types.MessageTypePriceUpdate,
		Symbol:    tick.Symbol,
		Price:     tick.Price,
		Timestamp: tick.Timestamp,
	})

	for _, sink := range in.sinks {
		sink.OnTick(tick)
	}
}

func (in *Ingester) handleStreamError(err error) {
	in.logger.Error("trade stream error", zap.Error(err))
}
