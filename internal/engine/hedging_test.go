package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

func (s *EngineTestSuite) openLong(accountID uuid.UUID, lotSize float64, leverage int) types.Contract {
	order, err := s.engine.ExecuteOrder(context.Background(), &types.PlaceOrderRequest{
		AccountID:   accountID,
		Symbol:      "BTCUSDT",
		Side:        types.OrderSideBuy,
		Type:        types.OrderTypeMarket,
		ProductType: types.ProductTypeCFD,
		AmountBase:  lotSize,
		Leverage:    leverage,
	})
	s.Require().NoError(err)
	s.Require().NotNil(order)

	contracts, err := s.store.ListOpenContractsByAccount(s.store.DB(), accountID)
	s.Require().NoError(err)
	s.Require().NotEmpty(contracts)
	return contracts[len(contracts)-1]
}

func (s *EngineTestSuite) TestClosePositionWithProfit() {
	account := s.newAccount(10000)
	s.setPrice("BTCUSDT", 50000)
	contract := s.openLong(account.ID, 0.5, 10)

	// Margin 2500 + fee 25 posted; price rises 1000 -> PnL +500.
	s.setPrice("BTCUSDT", 51000)
	closed, err := s.engine.ClosePosition(context.Background(), account.ID, contract.ID)
	s.Require().NoError(err)
	s.Equal(types.ContractStatusClosed, closed.Status)
	s.Require().NotNil(closed.PnL)
	s.InDelta(500.0, *closed.PnL, 1e-9)

	// 7475 after open, plus margin 2500 plus PnL 500 back.
	s.InDelta(10475.0, s.balance(account.ID, "USDT"), 1e-9)

	// One audit row with the realized PnL.
	txs, err := s.store.ListTransactionsByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Require().Len(txs, 1)
	s.Equal(types.TransactionTypePositionClose, txs[0].Type)
	s.InDelta(500.0, txs[0].Amount, 1e-9)

	// Subscribers get the full closed contract, not just an id.
	var sawClose bool
	for _, p := range s.broadcaster.all() {
		if msg, ok := p.(types.PositionClosedMessage); ok && msg.Type == types.MessageTypePositionClosed {
			sawClose = true
			s.Equal(contract.ID, msg.Contract.ID)
			s.Equal(types.ContractStatusClosed, msg.Contract.Status)
			s.Require().NotNil(msg.Contract.PnL)
			s.InDelta(500.0, *msg.Contract.PnL, 1e-9)
			s.Equal(account.ID, msg.AccountID)
		}
	}
	s.True(sawClose)
}

func (s *EngineTestSuite) TestClosePositionTwiceLosesRace() {
	account := s.newAccount(10000)
	s.setPrice("BTCUSDT", 50000)
	contract := s.openLong(account.ID, 0.5, 10)

	_, err := s.engine.ClosePosition(context.Background(), account.ID, contract.ID)
	s.Require().NoError(err)

	_, err = s.engine.ClosePosition(context.Background(), account.ID, contract.ID)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeNotOpen))
}

func (s *EngineTestSuite) TestClosePositionReleaseNeverNegative() {
	account := s.newAccount(10000)
	s.setPrice("BTCUSDT", 50000)
	contract := s.openLong(account.ID, 0.5, 10)

	// Loss of 3000 exceeds the 2500 margin: the release clamps to zero
	// rather than clawing back from the balance.
	s.setPrice("BTCUSDT", 44000)
	closed, err := s.engine.ClosePosition(context.Background(), account.ID, contract.ID)
	s.Require().NoError(err)
	s.InDelta(-3000.0, *closed.PnL, 1e-9)
	s.InDelta(7475.0, s.balance(account.ID, "USDT"), 1e-9)
}

func (s *EngineTestSuite) TestClosePositionOwnership() {
	owner := s.newAccount(10000)
	other := s.newAccount(10000)
	s.setPrice("BTCUSDT", 50000)
	contract := s.openLong(owner.ID, 0.5, 10)

	_, err := s.engine.ClosePosition(context.Background(), other.ID, contract.ID)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeForbidden))
}

func (s *EngineTestSuite) TestOpenHedgedPair() {
	account := s.newAccount(10000)
	s.setPrice("BTCUSDT", 50000)

	pair, err := s.engine.OpenHedgedPair(context.Background(), &types.OpenHedgedPairRequest{
		AccountID: account.ID,
		Symbol:    "BTCUSDT",
		Quantity:  0.5,
		Leverage:  10,
		Product:   types.ProductTypeCFD,
	})
	s.Require().NoError(err)
	s.Equal(types.ContractSideLong, pair.Long.Side)
	s.Equal(types.ContractSideShort, pair.Short.Side)
	s.Require().NotNil(pair.Long.PairID)
	s.Require().NotNil(pair.Short.PairID)
	s.Equal(pair.PairID, *pair.Long.PairID)
	s.Equal(pair.PairID, *pair.Short.PairID)

	// Two legs, each margin 2500 + fee 25.
	s.InDelta(4950.0, s.balance(account.ID, "USDT"), 1e-9)
}

func (s *EngineTestSuite) TestOpenHedgedPairAtomicOnInsufficientBalance() {
	// Enough for one leg but not two: nothing must open.
	account := s.newAccount(3000)
	s.setPrice("BTCUSDT", 50000)

	_, err := s.engine.OpenHedgedPair(context.Background(), &types.OpenHedgedPairRequest{
		AccountID: account.ID,
		Symbol:    "BTCUSDT",
		Quantity:  0.5,
		Leverage:  10,
		Product:   types.ProductTypeCFD,
	})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInsufficientBalance))

	contracts, err := s.store.ListOpenContractsByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Empty(contracts)
	s.InDelta(3000.0, s.balance(account.ID, "USDT"), 1e-9)
}

func (s *EngineTestSuite) TestClosePairCombinedSettlement() {
	account := s.newAccount(10000)
	s.setPrice("BTCUSDT", 50000)

	pair, err := s.engine.OpenHedgedPair(context.Background(), &types.OpenHedgedPairRequest{
		AccountID: account.ID,
		Symbol:    "BTCUSDT",
		Quantity:  0.5,
		Leverage:  10,
		Product:   types.ProductTypeCFD,
	})
	s.Require().NoError(err)

	// A hedged pair nets to zero PnL wherever the price goes; both margins
	// come back.
	s.setPrice("BTCUSDT", 52000)
	legs, err := s.engine.ClosePair(context.Background(), account.ID, pair.PairID)
	s.Require().NoError(err)
	s.Require().Len(legs, 2)

	s.InDelta(9950.0, s.balance(account.ID, "USDT"), 1e-9)

	var sawPairClose bool
	for _, p := range s.broadcaster.all() {
		if msg, ok := p.(types.PairClosedMessage); ok {
			sawPairClose = true
			s.Equal(pair.PairID, msg.PairID)
			s.InDelta(0.0, msg.CombinedPnL, 1e-9)
			s.Require().Len(msg.Contracts, 2)
			for _, leg := range msg.Contracts {
				s.Equal(types.ContractStatusClosed, leg.Status)
				s.Require().NotNil(leg.ClosePrice)
				s.Equal(52000.0, *leg.ClosePrice)
			}
		}
	}
	s.True(sawPairClose)

	// A second close finds only closed legs.
	_, err = s.engine.ClosePair(context.Background(), account.ID, pair.PairID)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodePairNotOpen))
}

func (s *EngineTestSuite) TestClosePairRejectsPartiallyClosedPair() {
	account := s.newAccount(10000)
	s.setPrice("BTCUSDT", 50000)

	pair, err := s.engine.OpenHedgedPair(context.Background(), &types.OpenHedgedPairRequest{
		AccountID: account.ID,
		Symbol:    "BTCUSDT",
		Quantity:  0.5,
		Leverage:  10,
		Product:   types.ProductTypeCFD,
	})
	s.Require().NoError(err)

	// One leg closed individually breaks the pair's atomicity contract.
	_, err = s.engine.ClosePosition(context.Background(), account.ID, pair.Long.ID)
	s.Require().NoError(err)
	balanceBefore := s.balance(account.ID, "USDT")

	_, err = s.engine.ClosePair(context.Background(), account.ID, pair.PairID)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodePairNotOpen))

	// The surviving short leg stays open and no money moved.
	got, err := s.store.GetContractByID(s.store.DB(), pair.Short.ID)
	s.Require().NoError(err)
	s.Equal(types.ContractStatusOpen, got.Unwrap().Status)
	s.InDelta(balanceBefore, s.balance(account.ID, "USDT"), 1e-9)
}

func (s *EngineTestSuite) TestClosePairUnknownPair() {
	account := s.newAccount(10000)

	_, err := s.engine.ClosePair(context.Background(), account.ID, uuid.New())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodePairNotFound))
}
