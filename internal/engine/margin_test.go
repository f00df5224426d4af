package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/internal/types"
)

func (s *EngineTestSuite) insertOpenContract(accountID uuid.UUID, symbol string, side types.ContractSide, lotSize, entryPrice, marginUsed float64) types.Contract {
	number, err := s.store.NextContractNumber(s.store.DB())
	s.Require().NoError(err)

	now := time.Now().UTC()
	c := types.Contract{
		ID:             uuid.New(),
		AccountID:      accountID,
		ContractNumber: number,
		Symbol:         symbol,
		Side:           side,
		Status:         types.ContractStatusOpen,
		LotSize:        lotSize,
		EntryPrice:     entryPrice,
		MarginUsed:     marginUsed,
		Leverage:       10,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.Require().NoError(s.store.InsertContract(s.store.DB(), &c))
	return c
}

func (s *EngineTestSuite) TestCalculateMarginWorkedExample() {
	account := s.newAccount(1000)

	// One position: margin 200, entry 50000, 0.05 lots. Price at 51000
	// gives +50 unrealized.
	s.insertOpenContract(account.ID, "BTCUSDT", types.ContractSideLong, 0.05, 50000, 200)
	s.setPrice("BTCUSDT", 51000)

	m, err := s.engine.CalculateMargin(account.ID)
	s.Require().NoError(err)
	s.InDelta(1000.0, m.Balance, 1e-9)
	s.InDelta(200.0, m.UsedMargin, 1e-9)
	s.InDelta(50.0, m.UnrealizedPnL, 1e-9)
	s.InDelta(1050.0, m.Equity, 1e-9)
	s.InDelta(850.0, m.FreeMargin, 1e-9)
	s.InDelta(525.0, m.MarginLevel, 1e-9)
}

func (s *EngineTestSuite) TestCalculateMarginNoOpenPositions() {
	account := s.newAccount(1000)

	m, err := s.engine.CalculateMargin(account.ID)
	s.Require().NoError(err)
	s.InDelta(1000.0, m.Balance, 1e-9)
	s.Zero(m.UsedMargin)
	s.Zero(m.UnrealizedPnL)
	s.InDelta(1000.0, m.Equity, 1e-9)
	s.InDelta(1000.0, m.FreeMargin, 1e-9)

	// No margin in use: the level is the 0 sentinel, not infinity.
	s.Zero(m.MarginLevel)
}

func (s *EngineTestSuite) TestCalculateMarginMissingPrice() {
	account := s.newAccount(1000)
	s.insertOpenContract(account.ID, "ETHUSDT", types.ContractSideLong, 1, 3000, 300)

	// No cached price for ETHUSDT: the position still locks margin but
	// contributes zero unrealized PnL.
	m, err := s.engine.CalculateMargin(account.ID)
	s.Require().NoError(err)
	s.InDelta(300.0, m.UsedMargin, 1e-9)
	s.Zero(m.UnrealizedPnL)
	s.InDelta(1000.0, m.Equity, 1e-9)
	s.InDelta(700.0, m.FreeMargin, 1e-9)
}

func (s *EngineTestSuite) TestCalculateMarginCombinesUSDAndUSDT() {
	account, err := s.store.CreateAccount(s.store.DB(), "mixed@example.com")
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetBalance(s.store.DB(), account.ID, "USDT", 600))
	s.Require().NoError(s.store.SetBalance(s.store.DB(), account.ID, "USD", 400))

	m, err := s.engine.CalculateMargin(account.ID)
	s.Require().NoError(err)
	s.InDelta(1000.0, m.Balance, 1e-9)
}
