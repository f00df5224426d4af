package engine

import (
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/shopspring/decimal"
)

// CalculateMargin computes the account's margin snapshot from its quote
// balances, open contracts and the price cache. Read-only; nothing is
// persisted.
//
// A contract whose symbol has no cached price contributes zero unrealized
// PnL but still counts toward used margin. With no margin in use the margin
// level is reported as 0, a sentinel meaning "not applicable" rather than
// distress.
func (e *Engine) CalculateMargin(accountID uuid.UUID) (types.MarginMetrics, error) {
	db := e.store.DB()

	balance := decimal.Zero
	for _, asset := range equivalentAssets("USDT") {
		opt, err := e.store.GetBalance(db, accountID, asset)
		if err != nil {
			return types.MarginMetrics{}, err
		}
		if opt.IsSome() {
			balance = balance.Add(decimal.NewFromFloat(opt.Unwrap().Amount))
		}
	}

	contracts, err := e.store.ListOpenContractsByAccount(db, accountID)
	if err != nil {
		return types.MarginMetrics{}, err
	}

	usedMargin := decimal.Zero
	unrealized := decimal.Zero
	for _, c := range contracts {
		usedMargin = usedMargin.Add(decimal.NewFromFloat(c.MarginUsed))

		price, err := e.cache.GetPrice(c.Symbol)
		if err != nil {
			// Unknown price: the position cannot be marked, contribute zero.
			continue
		}
		unrealized = unrealized.Add(decimal.NewFromFloat(c.UnrealizedPnL(price)))
	}

	equity := balance.Add(unrealized)
	freeMargin := equity.Sub(usedMargin)

	marginLevel := decimal.Zero
	if usedMargin.IsPositive() {
		marginLevel = equity.Div(usedMargin).Mul(decimal.NewFromInt(100))
	}

	out := types.MarginMetrics{}
	out.Balance, _ = balance.Float64()
	out.UsedMargin, _ = usedMargin.Float64()
	out.UnrealizedPnL, _ = unrealized.Float64()
	out.Equity, _ = equity.Float64()
	out.FreeMargin, _ = freeMargin.Float64()
	out.MarginLevel, _ = marginLevel.Float64()

	return out, nil
}
