package engine

import (
	"context"
	"database/sql"

	"github.com/rxtech-lab/argo-exchange/internal/types"
	"go.uber.org/zap"
)

// Sweep closes contracts whose liquidation price has been crossed. It runs
// on every tick, before pending-order evaluation, so forced closes observe
// the same price that triggered them.
//
// It scans the open contracts on the tick's symbol and liquidates every
// crossed one. Each liquidation is its own guarded transaction; one failure
// does not stop the rest of the sweep.
func (e *Engine) Sweep(ctx context.Context, tick types.PriceTick) {
	contracts, err := e.store.ListOpenContractsBySymbol(e.store.DB(), tick.Symbol)
	if err != nil {
		e.logger.Error("liquidation sweep query failed",
			zap.String("symbol", tick.Symbol),
			zap.Error(err))
		return
	}

	for i := range contracts {
		contract := contracts[i]
		if !contract.ShouldLiquidate(tick.Price) {
			continue
		}

		var pnl float64
		err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			var err error
			pnl, err = e.closeContractTx(tx, &contract, tick.Price, types.ContractStatusLiquidated, types.TransactionTypeLiquidation)
			return err
		})
		if err != nil {
			// Losing the close race is fine: someone else already closed it.
			e.logger.Warn("liquidation skipped",
				zap.String("contract_number", contract.ContractNumber),
				zap.Error(err))
			continue
		}

		contract.Status = types.ContractStatusLiquidated
		contract.ClosePrice = &tick.Price
		contract.PnL = &pnl

		e.hub.Broadcast(types.PositionClosedMessage{
			Type:      types.MessageTypePositionLiquidated,
			Contract:  contract,
			AccountID: contract.AccountID,
		})

		e.logger.Warn("position liquidated",
			zap.String("contract_number", contract.ContractNumber),
			zap.Float64("price", tick.Price),
			zap.Float64("pnl", pnl))
	}
}
