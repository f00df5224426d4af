package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

func (s *EngineTestSuite) createPendingStopLimitBuy(account types.Account, trigger, limit float64, expiresAt *time.Time) *types.PendingOrder {
	po, err := s.engine.CreatePendingOrder(context.Background(), &types.CreatePendingOrderRequest{
		AccountID:    account.ID,
		Symbol:       "BTCUSDT",
		Type:         types.PendingOrderTypeStopLimit,
		Side:         types.OrderSideBuy,
		Quantity:     0.5,
		TriggerPrice: trigger,
		LimitPrice:   &limit,
		Leverage:     10,
		ProductType:  types.ProductTypeCFD,
		ExpiresAt:    expiresAt,
	})
	s.Require().NoError(err)
	return po
}

func (s *EngineTestSuite) TestCreateAndCancelPendingOrder() {
	account := s.newAccount(10000)
	po := s.createPendingStopLimitBuy(account, 50000, 51000, nil)
	s.Equal(types.PendingOrderStatusPending, po.Status)

	s.Require().NoError(s.engine.CancelPendingOrder(context.Background(), account.ID, po.ID))

	// Cancelling again loses the status guard.
	err := s.engine.CancelPendingOrder(context.Background(), account.ID, po.ID)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeNotPending))
}

func (s *EngineTestSuite) TestCancelPendingOrderOwnership() {
	owner := s.newAccount(10000)
	other := s.newAccount(10000)
	po := s.createPendingStopLimitBuy(owner, 50000, 51000, nil)

	err := s.engine.CancelPendingOrder(context.Background(), other.ID, po.ID)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeForbidden))
}

func (s *EngineTestSuite) TestCancelPendingOrderNotFound() {
	account := s.newAccount(10000)
	err := s.engine.CancelPendingOrder(context.Background(), account.ID, uuid.New())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeOrderNotFound))
}

func (s *EngineTestSuite) TestCreatePendingOrderUnknownInstrument() {
	account := s.newAccount(10000)
	limit := 1.0
	_, err := s.engine.CreatePendingOrder(context.Background(), &types.CreatePendingOrderRequest{
		AccountID:    account.ID,
		Symbol:       "DOGEUSDT",
		Type:         types.PendingOrderTypeStopLimit,
		Side:         types.OrderSideBuy,
		Quantity:     1,
		TriggerPrice: 0.9,
		LimitPrice:   &limit,
		Leverage:     5,
		ProductType:  types.ProductTypeCFD,
	})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInstrumentNotFound))
}

func (s *EngineTestSuite) TestExecutePendingOrderAtMostOnce() {
	account := s.newAccount(10000)
	po := s.createPendingStopLimitBuy(account, 50000, 51000, nil)

	executed, err := s.engine.ExecutePendingOrder(context.Background(), po, 50500)
	s.Require().NoError(err)
	s.True(executed)

	// The losing attempt reports a lost race, not an error.
	executed, err = s.engine.ExecutePendingOrder(context.Background(), po, 50600)
	s.Require().NoError(err)
	s.False(executed)

	contracts, err := s.store.ListOpenContractsByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Require().Len(contracts, 1)
	s.Equal(50500.0, contracts[0].EntryPrice)
}

func (s *EngineTestSuite) TestExecutePendingOrderConcurrentAttempts() {
	account := s.newAccount(10000)
	po := s.createPendingStopLimitBuy(account, 50000, 51000, nil)

	// Fan out concurrent attempts on the same order. The status-guarded
	// claim lets exactly one through; the rest lose the race or abort.
	const attempts = 8
	results := make(chan bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			executed, err := s.engine.ExecutePendingOrder(context.Background(), po, 50500)
			results <- err == nil && executed
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for won := range results {
		if won {
			wins++
		}
	}
	s.Equal(1, wins)

	got, err := s.store.GetPendingOrderByID(s.store.DB(), po.ID)
	s.Require().NoError(err)
	s.Equal(types.PendingOrderStatusExecuted, got.Unwrap().Status)

	contracts, err := s.store.ListOpenContractsByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Len(contracts, 1)
}

func (s *EngineTestSuite) TestExecutePendingOrderBusinessFailureMarksFailed() {
	account := s.newAccount(100)
	po := s.createPendingStopLimitBuy(account, 50000, 51000, nil)

	executed, err := s.engine.ExecutePendingOrder(context.Background(), po, 50500)
	s.Require().Error(err)
	s.False(executed)
	s.True(errors.HasCode(err, errors.ErrCodeInsufficientBalance))

	got, err := s.store.GetPendingOrderByID(s.store.DB(), po.ID)
	s.Require().NoError(err)
	failed := got.Unwrap()
	s.Equal(types.PendingOrderStatusFailed, failed.Status)
	s.Require().NotNil(failed.FailureReason)
	s.Equal("insufficient balance for margin and fee", *failed.FailureReason)

	// The claim rolled back with the fill: no contract, balance untouched.
	contracts, err := s.store.ListOpenContractsByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Empty(contracts)
	s.InDelta(100.0, s.balance(account.ID, "USDT"), 1e-9)
}

func (s *EngineTestSuite) TestProcessTickExecutesTriggeredOrders() {
	account := s.newAccount(10000)
	s.createPendingStopLimitBuy(account, 50000, 51000, nil)
	ev := NewEvaluator(s.engine)

	// Below the trigger: nothing happens.
	ev.processTick(context.Background(), types.PriceTick{Symbol: "BTCUSDT", Price: 49000, Timestamp: time.Now()})
	pending, err := s.store.ListActivePendingOrdersBySymbol(s.store.DB(), "BTCUSDT")
	s.Require().NoError(err)
	s.Len(pending, 1)

	// Gapped past the limit: gap protection holds the order.
	ev.processTick(context.Background(), types.PriceTick{Symbol: "BTCUSDT", Price: 52000, Timestamp: time.Now()})
	pending, err = s.store.ListActivePendingOrdersBySymbol(s.store.DB(), "BTCUSDT")
	s.Require().NoError(err)
	s.Len(pending, 1)

	// Inside the window: executes at the tick price.
	ev.processTick(context.Background(), types.PriceTick{Symbol: "BTCUSDT", Price: 50500, Timestamp: time.Now()})
	pending, err = s.store.ListActivePendingOrdersBySymbol(s.store.DB(), "BTCUSDT")
	s.Require().NoError(err)
	s.Empty(pending)

	contracts, err := s.store.ListOpenContractsByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Require().Len(contracts, 1)
	s.Equal(50500.0, contracts[0].EntryPrice)
}

func (s *EngineTestSuite) TestProcessTickExpiresOverdueOrders() {
	account := s.newAccount(10000)
	past := time.Now().UTC().Add(-time.Minute)
	po := s.createPendingStopLimitBuy(account, 50000, 51000, &past)
	ev := NewEvaluator(s.engine)

	// The price would trigger, but expiry wins.
	ev.processTick(context.Background(), types.PriceTick{Symbol: "BTCUSDT", Price: 50500, Timestamp: time.Now()})

	got, err := s.store.GetPendingOrderByID(s.store.DB(), po.ID)
	s.Require().NoError(err)
	s.Equal(types.PendingOrderStatusExpired, got.Unwrap().Status)

	contracts, err := s.store.ListOpenContractsByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Empty(contracts)
}

func (s *EngineTestSuite) TestSweepLiquidatesCrossedContracts() {
	account := s.newAccount(10000)
	s.setPrice("BTCUSDT", 50000)
	contract := s.openLong(account.ID, 0.5, 10)
	s.Require().NotNil(contract.LiquidationPrice)

	balanceAfterOpen := s.balance(account.ID, "USDT")

	// Tick through the liquidation price (45500 at 10x).
	ev := NewEvaluator(s.engine)
	ev.processTick(context.Background(), types.PriceTick{Symbol: "BTCUSDT", Price: 45400, Timestamp: time.Now()})

	got, err := s.store.GetContractByID(s.store.DB(), contract.ID)
	s.Require().NoError(err)
	liquidated := got.Unwrap()
	s.Equal(types.ContractStatusLiquidated, liquidated.Status)
	s.Require().NotNil(liquidated.PnL)
	s.InDelta(-2300.0, *liquidated.PnL, 1e-9)

	// Margin 2500 + PnL -2300: 200 released.
	s.InDelta(balanceAfterOpen+200.0, s.balance(account.ID, "USDT"), 1e-9)

	// Audit row and broadcast.
	txs, err := s.store.ListTransactionsByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Require().Len(txs, 1)
	s.Equal(types.TransactionTypeLiquidation, txs[0].Type)

	var sawLiquidation bool
	for _, p := range s.broadcaster.all() {
		if msg, ok := p.(types.PositionClosedMessage); ok && msg.Type == types.MessageTypePositionLiquidated {
			sawLiquidation = true
			s.Equal(contract.ID, msg.Contract.ID)
			s.Equal(types.ContractStatusLiquidated, msg.Contract.Status)
			s.Require().NotNil(msg.Contract.ClosePrice)
			s.Equal(45400.0, *msg.Contract.ClosePrice)
		}
	}
	s.True(sawLiquidation)
}

func (s *EngineTestSuite) TestSweepIgnoresHealthyContracts() {
	account := s.newAccount(10000)
	s.setPrice("BTCUSDT", 50000)
	contract := s.openLong(account.ID, 0.5, 10)

	ev := NewEvaluator(s.engine)
	ev.processTick(context.Background(), types.PriceTick{Symbol: "BTCUSDT", Price: 49000, Timestamp: time.Now()})

	got, err := s.store.GetContractByID(s.store.DB(), contract.ID)
	s.Require().NoError(err)
	s.Equal(types.ContractStatusOpen, got.Unwrap().Status)
}

func (s *EngineTestSuite) TestEvaluatorOnTickNeverBlocks() {
	ev := NewEvaluator(s.engine)

	// Without a running worker the queue fills; further ticks drop.
	for i := 0; i < tickQueueSize+50; i++ {
		ev.OnTick(types.PriceTick{Symbol: "BTCUSDT", Price: float64(50000 + i), Timestamp: time.Now()})
	}
	s.Equal(tickQueueSize, len(ev.ticks))
}

func (s *EngineTestSuite) TestEvaluatorRunStopsOnCancel() {
	ev := NewEvaluator(s.engine)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		ev.Run(ctx)
		close(done)
	}()

	ev.OnTick(types.PriceTick{Symbol: "BTCUSDT", Price: 50000, Timestamp: time.Now()})
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.Fail("evaluator did not stop on cancel")
	}
}
