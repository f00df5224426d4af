package engine

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-exchange/internal/types"
	"go.uber.org/zap"
)

// tickQueueSize bounds the evaluator's inbox. The feed must never block on a
// slow evaluation pass, so overflow ticks are dropped; the next tick carries
// a fresher price anyway.
const tickQueueSize = 256

// Evaluator drives liquidations and resting-order execution from the price
// stream. One worker goroutine consumes ticks in order.
type Evaluator struct {
	engine *Engine
	ticks  chan types.PriceTick
}

func NewEvaluator(engine *Engine) *Evaluator {
	return &Evaluator{
		engine: engine,
		ticks:  make(chan types.PriceTick, tickQueueSize),
	}
}

// OnTick enqueues a tick for evaluation without blocking the caller.
func (ev *Evaluator) OnTick(tick types.PriceTick) {
	select {
	case ev.ticks <- tick:
	default:
		ev.engine.logger.Warn("evaluator queue full, dropping tick",
			zap.String("symbol", tick.Symbol))
	}
}

// Run consumes ticks until ctx is cancelled.
func (ev *Evaluator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ev.ticks:
			ev.processTick(ctx, tick)
		}
	}
}

// processTick liquidates crossed contracts first, then walks the symbol's
// resting orders: overdue ones expire, triggered ones execute at their
// best-execution price.
func (ev *Evaluator) processTick(ctx context.Context, tick types.PriceTick) {
	e := ev.engine

	e.Sweep(ctx, tick)

	pending, err := e.store.ListActivePendingOrdersBySymbol(e.store.DB(), tick.Symbol)
	if err != nil {
		e.logger.Error("failed to load pending orders",
			zap.String("symbol", tick.Symbol),
			zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for i := range pending {
		po := pending[i]

		if po.IsExpired(now) {
			expired, err := e.store.ExpirePendingOrder(e.store.DB(), po.ID, now)
			if err != nil {
				e.logger.Error("failed to expire pending order",
					zap.String("order_number", po.OrderNumber),
					zap.Error(err))
			} else if expired {
				e.logger.Info("pending order expired",
					zap.String("order_number", po.OrderNumber))
			}
			continue
		}

		if !po.ShouldExecute(tick.Price) {
			continue
		}

		executionPrice := po.GetExecutionPrice(tick.Price)
		if _, err := e.ExecutePendingOrder(ctx, &po, executionPrice); err != nil {
			e.logger.Warn("pending order execution failed",
				zap.String("order_number", po.OrderNumber),
				zap.Float64("execution_price", executionPrice),
				zap.Error(err))
		}
	}
}
