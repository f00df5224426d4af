package store

import (
	"context"
	"database/sql"
	goerrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/internal/logger"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	store, err := NewStore(":memory:", logger.NewNopLogger())
	s.Require().NoError(err)
	s.Require().NoError(store.Initialize())
	s.store = store
}

func (s *StoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreTestSuite) newAccount(usdt float64) types.Account {
	account, err := s.store.CreateAccount(s.store.DB(), "trader@example.com")
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetBalance(s.store.DB(), account.ID, "USDT", usdt))
	return account
}

func (s *StoreTestSuite) newOrder(accountID uuid.UUID) types.Order {
	number, err := s.store.NextOrderNumber(s.store.DB())
	s.Require().NoError(err)

	now := time.Now().UTC()
	order := types.Order{
		ID:          uuid.New(),
		AccountID:   accountID,
		OrderNumber: number,
		Symbol:      "BTCUSDT",
		Side:        types.OrderSideBuy,
		Type:        types.OrderTypeMarket,
		Status:      types.OrderStatusPending,
		AmountBase:  0.5,
		Leverage:    10,
		ProductType: types.ProductTypeCFD,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.Require().NoError(s.store.InsertOrder(s.store.DB(), &order))
	return order
}

func (s *StoreTestSuite) TestSequenceNumbers() {
	first, err := s.store.NextOrderNumber(s.store.DB())
	s.Require().NoError(err)
	second, err := s.store.NextOrderNumber(s.store.DB())
	s.Require().NoError(err)

	s.Equal("ORD-000001", first)
	s.Equal("ORD-000002", second)

	contract, err := s.store.NextContractNumber(s.store.DB())
	s.Require().NoError(err)
	s.Equal("CTR-000001", contract)

	txn, err := s.store.NextTransactionNumber(s.store.DB())
	s.Require().NoError(err)
	s.Equal("TXN-000001", txn)
}

func (s *StoreTestSuite) TestAccountAndBalances() {
	account := s.newAccount(1000)

	got, err := s.store.GetAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Require().True(got.IsSome())
	s.Equal(account.Email, got.Unwrap().Email)

	missing, err := s.store.GetAccount(s.store.DB(), uuid.New())
	s.Require().NoError(err)
	s.True(missing.IsNone())

	balance, err := s.store.GetBalance(s.store.DB(), account.ID, "USDT")
	s.Require().NoError(err)
	s.Require().True(balance.IsSome())
	s.Equal(1000.0, balance.Unwrap().Amount)

	// SetBalance replaces an existing row instead of inserting a second one.
	s.Require().NoError(s.store.SetBalance(s.store.DB(), account.ID, "USDT", 1500))
	balances, err := s.store.ListBalances(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Require().Len(balances, 1)
	s.Equal(1500.0, balances[0].Amount)
}

func (s *StoreTestSuite) TestAdjustBalanceGuardsNegative() {
	account := s.newAccount(100)

	ok, err := s.store.AdjustBalance(s.store.DB(), account.ID, "USDT", -60)
	s.Require().NoError(err)
	s.True(ok)

	// Another 60 would go negative; the guarded update must refuse.
	ok, err = s.store.AdjustBalance(s.store.DB(), account.ID, "USDT", -60)
	s.Require().NoError(err)
	s.False(ok)

	balance, err := s.store.GetBalance(s.store.DB(), account.ID, "USDT")
	s.Require().NoError(err)
	s.Equal(40.0, balance.Unwrap().Amount)

	// Unknown asset is a refusal, not an error.
	ok, err = s.store.AdjustBalance(s.store.DB(), account.ID, "BTC", -1)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *StoreTestSuite) TestOrderStatusTransitions() {
	account := s.newAccount(1000)
	order := s.newOrder(account.ID)

	ok, err := s.store.MarkOrderFilled(s.store.DB(), order.ID, 50000, 0.5)
	s.Require().NoError(err)
	s.True(ok)

	// Terminal orders refuse further transitions.
	ok, err = s.store.MarkOrderRejected(s.store.DB(), order.ID, "late rejection")
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.store.GetOrderByID(s.store.DB(), order.ID)
	s.Require().NoError(err)
	s.Require().True(got.IsSome())
	filled := got.Unwrap()
	s.Equal(types.OrderStatusFilled, filled.Status)
	s.Require().NotNil(filled.AverageFillPrice)
	s.Equal(50000.0, *filled.AverageFillPrice)

	orders, err := s.store.ListOrdersByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Len(orders, 1)
}

func (s *StoreTestSuite) insertPendingOrder(accountID uuid.UUID, expiresAt *time.Time) types.PendingOrder {
	number, err := s.store.NextOrderNumber(s.store.DB())
	s.Require().NoError(err)

	now := time.Now().UTC()
	limit := 51000.0
	po := types.PendingOrder{
		ID:           uuid.New(),
		AccountID:    accountID,
		OrderNumber:  number,
		Symbol:       "BTCUSDT",
		Type:         types.PendingOrderTypeStopLimit,
		Side:         types.OrderSideBuy,
		Quantity:     0.5,
		TriggerPrice: 50000,
		LimitPrice:   &limit,
		Leverage:     10,
		ProductType:  types.ProductTypeCFD,
		Status:       types.PendingOrderStatusPending,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.Require().NoError(s.store.InsertPendingOrder(s.store.DB(), &po))
	return po
}

func (s *StoreTestSuite) TestPendingOrderClaimIsAtMostOnce() {
	account := s.newAccount(1000)
	po := s.insertPendingOrder(account.ID, nil)

	active, err := s.store.ListActivePendingOrdersBySymbol(s.store.DB(), "BTCUSDT")
	s.Require().NoError(err)
	s.Require().Len(active, 1)

	ok, err := s.store.ClaimPendingOrderExecuted(s.store.DB(), po.ID, 50500)
	s.Require().NoError(err)
	s.True(ok)

	// The losing writer sees zero rows, not an error.
	ok, err = s.store.ClaimPendingOrderExecuted(s.store.DB(), po.ID, 50600)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.store.CancelPendingOrder(s.store.DB(), po.ID)
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.store.GetPendingOrderByID(s.store.DB(), po.ID)
	s.Require().NoError(err)
	executed := got.Unwrap()
	s.Equal(types.PendingOrderStatusExecuted, executed.Status)
	s.Require().NotNil(executed.ExecutedPrice)
	s.Equal(50500.0, *executed.ExecutedPrice)

	active, err = s.store.ListActivePendingOrdersBySymbol(s.store.DB(), "BTCUSDT")
	s.Require().NoError(err)
	s.Empty(active)
}

func (s *StoreTestSuite) TestPendingOrderCancelAndFail() {
	account := s.newAccount(1000)

	cancelled := s.insertPendingOrder(account.ID, nil)
	ok, err := s.store.CancelPendingOrder(s.store.DB(), cancelled.ID)
	s.Require().NoError(err)
	s.True(ok)

	failed := s.insertPendingOrder(account.ID, nil)
	ok, err = s.store.MarkPendingOrderFailed(s.store.DB(), failed.ID, "insufficient balance")
	s.Require().NoError(err)
	s.True(ok)

	got, err := s.store.GetPendingOrderByID(s.store.DB(), failed.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.Unwrap().FailureReason)
	s.Equal("insufficient balance", *got.Unwrap().FailureReason)

	all, err := s.store.ListPendingOrdersByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *StoreTestSuite) TestPendingOrderExpiryGuard() {
	account := s.newAccount(1000)
	now := time.Now().UTC()

	future := now.Add(time.Hour)
	notDue := s.insertPendingOrder(account.ID, &future)
	ok, err := s.store.ExpirePendingOrder(s.store.DB(), notDue.ID, now)
	s.Require().NoError(err)
	s.False(ok)

	past := now.Add(-time.Hour)
	due := s.insertPendingOrder(account.ID, &past)
	ok, err = s.store.ExpirePendingOrder(s.store.DB(), due.ID, now)
	s.Require().NoError(err)
	s.True(ok)

	got, err := s.store.GetPendingOrderByID(s.store.DB(), due.ID)
	s.Require().NoError(err)
	s.Equal(types.PendingOrderStatusExpired, got.Unwrap().Status)
}

func (s *StoreTestSuite) insertContract(accountID uuid.UUID, side types.ContractSide, pairID *uuid.UUID) types.Contract {
	number, err := s.store.NextContractNumber(s.store.DB())
	s.Require().NoError(err)

	now := time.Now().UTC()
	liq := 45500.0
	c := types.Contract{
		ID:               uuid.New(),
		AccountID:        accountID,
		ContractNumber:   number,
		Symbol:           "BTCUSDT",
		Side:             side,
		Status:           types.ContractStatusOpen,
		LotSize:          0.5,
		EntryPrice:       50000,
		MarginUsed:       2500,
		Leverage:         10,
		Commission:       25,
		LiquidationPrice: &liq,
		PairID:           pairID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.Require().NoError(s.store.InsertContract(s.store.DB(), &c))
	return c
}

func (s *StoreTestSuite) TestContractCloseIsAtMostOnce() {
	account := s.newAccount(1000)
	c := s.insertContract(account.ID, types.ContractSideLong, nil)

	ok, err := s.store.CloseContract(s.store.DB(), c.ID, types.ContractStatusClosed, 51000, 500)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.CloseContract(s.store.DB(), c.ID, types.ContractStatusClosed, 52000, 1000)
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.store.GetContractByID(s.store.DB(), c.ID)
	s.Require().NoError(err)
	closed := got.Unwrap()
	s.Equal(types.ContractStatusClosed, closed.Status)
	s.Require().NotNil(closed.PnL)
	s.Equal(500.0, *closed.PnL)
	s.NotNil(closed.ClosedAt)
}

func (s *StoreTestSuite) TestContractPairListing() {
	account := s.newAccount(1000)
	pairID := uuid.New()

	long := s.insertContract(account.ID, types.ContractSideLong, &pairID)
	short := s.insertContract(account.ID, types.ContractSideShort, &pairID)
	s.insertContract(account.ID, types.ContractSideLong, nil)

	legs, err := s.store.ListContractsByPair(s.store.DB(), pairID)
	s.Require().NoError(err)
	s.Require().Len(legs, 2)

	open, err := s.store.ListOpenContractsBySymbol(s.store.DB(), "BTCUSDT")
	s.Require().NoError(err)
	s.Len(open, 3)

	ok, err := s.store.CloseContract(s.store.DB(), long.ID, types.ContractStatusClosed, 51000, 500)
	s.Require().NoError(err)
	s.True(ok)

	// Closed legs stay visible; the pair lookup reports every status.
	legs, err = s.store.ListContractsByPair(s.store.DB(), pairID)
	s.Require().NoError(err)
	s.Require().Len(legs, 2)

	statuses := map[uuid.UUID]types.ContractStatus{}
	for _, leg := range legs {
		statuses[leg.ID] = leg.Status
	}
	s.Equal(types.ContractStatusClosed, statuses[long.ID])
	s.Equal(types.ContractStatusOpen, statuses[short.ID])
}

func (s *StoreTestSuite) TestInstrumentUpsert() {
	inst := types.Instrument{
		Symbol:      "BTCUSDT",
		Name:        "Bitcoin",
		ProductType: types.ProductTypeCFD,
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		MaxLeverage: 50,
		IsTradeable: true,
	}
	s.Require().NoError(s.store.UpsertInstrument(s.store.DB(), inst))

	inst.MaxLeverage = 20
	inst.IsTradeable = false
	s.Require().NoError(s.store.UpsertInstrument(s.store.DB(), inst))

	got, err := s.store.GetInstrumentBySymbol(s.store.DB(), "BTCUSDT")
	s.Require().NoError(err)
	s.Require().True(got.IsSome())
	s.Equal(20, got.Unwrap().MaxLeverage)
	s.False(got.Unwrap().IsTradeable)

	all, err := s.store.ListInstruments(s.store.DB())
	s.Require().NoError(err)
	s.Len(all, 1)

	missing, err := s.store.GetInstrumentBySymbol(s.store.DB(), "DOGEUSDT")
	s.Require().NoError(err)
	s.True(missing.IsNone())
}

func (s *StoreTestSuite) TestTransactionsAudit() {
	account := s.newAccount(1000)

	number, err := s.store.NextTransactionNumber(s.store.DB())
	s.Require().NoError(err)

	row := types.Transaction{
		ID:                uuid.New(),
		TransactionNumber: number,
		AccountID:         account.ID,
		Type:              types.TransactionTypePositionClose,
		Asset:             "USDT",
		Amount:            500,
		Metadata:          `{"entry_price":50000,"close_price":51000}`,
		CreatedAt:         time.Now().UTC(),
	}
	s.Require().NoError(s.store.InsertTransaction(s.store.DB(), &row))

	rows, err := s.store.ListTransactionsByAccount(s.store.DB(), account.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("TXN-000001", rows[0].TransactionNumber)
	s.Equal(types.TransactionTypePositionClose, rows[0].Type)
	s.Equal(500.0, rows[0].Amount)
}

func (s *StoreTestSuite) TestWithTxRollsBackOnError() {
	account := s.newAccount(100)

	boom := goerrors.New("boom")
	err := s.store.WithTx(context.Background(), func(tx *sql.Tx) error {
		ok, err := s.store.AdjustBalance(tx, account.ID, "USDT", -50)
		s.Require().NoError(err)
		s.Require().True(ok)
		return boom
	})
	s.Require().ErrorIs(err, boom)

	// The deduction rolled back with the transaction.
	balance, err := s.store.GetBalance(s.store.DB(), account.ID, "USDT")
	s.Require().NoError(err)
	s.Equal(100.0, balance.Unwrap().Amount)
}

func (s *StoreTestSuite) TestWithTxCommits() {
	account := s.newAccount(100)

	err := s.store.WithTx(context.Background(), func(tx *sql.Tx) error {
		ok, err := s.store.AdjustBalance(tx, account.ID, "USDT", -50)
		s.Require().NoError(err)
		s.Require().True(ok)
		return nil
	})
	s.Require().NoError(err)

	balance, err := s.store.GetBalance(s.store.DB(), account.ID, "USDT")
	s.Require().NoError(err)
	s.Equal(50.0, balance.Unwrap().Amount)
}
