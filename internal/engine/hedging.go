package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	goerrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/internal/store"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OpenHedgedPair opens a long and a short contract of the same size in one
// transaction. Either both legs open or neither does; the account posts
// margin and fee for each leg.
func (e *Engine) OpenHedgedPair(ctx context.Context, req *types.OpenHedgedPairRequest) (*types.HedgedPair, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, dualLegTimeout)
	defer cancel()

	price, err := e.cache.GetPrice(req.Symbol)
	if err != nil {
		return nil, err
	}

	pairID := uuid.New()
	var pair types.HedgedPair

	execErr := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		inst, err := e.validateInstrument(tx, req.Symbol, req.Leverage, req.Product)
		if err != nil {
			return err
		}

		long, err := e.openContract(tx, req.AccountID, inst, types.ContractSideLong, req.Quantity, price, req.Leverage, &pairID)
		if err != nil {
			return err
		}

		short, err := e.openContract(tx, req.AccountID, inst, types.ContractSideShort, req.Quantity, price, req.Leverage, &pairID)
		if err != nil {
			return err
		}

		pair = types.HedgedPair{PairID: pairID, Long: *long, Short: *short}
		return nil
	})

	var bizErr *businessError
	if goerrors.As(execErr, &bizErr) {
		return nil, errors.New(bizErr.code, bizErr.reason)
	}
	if execErr != nil {
		return nil, execErr
	}

	e.logger.Info("hedged pair opened",
		zap.String("pair_id", pairID.String()),
		zap.String("symbol", req.Symbol),
		zap.Float64("entry_price", price))

	return &pair, nil
}

// ClosePosition closes a single contract at the cached price, releasing the
// posted margin plus realized PnL back to the balance. The close is guarded
// on the contract still being open; a lost race returns a state error.
func (e *Engine) ClosePosition(ctx context.Context, accountID, contractID uuid.UUID) (*types.Contract, error) {
	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	opt, err := e.store.GetContractByID(e.store.DB(), contractID)
	if err != nil {
		return nil, err
	}
	if opt.IsNone() {
		return nil, errors.New(errors.ErrCodeContractNotFound, "contract not found")
	}

	contract := opt.Unwrap()
	if contract.AccountID != accountID {
		return nil, errors.New(errors.ErrCodeForbidden, "contract belongs to another account")
	}

	price, err := e.cache.GetPrice(contract.Symbol)
	if err != nil {
		return nil, err
	}

	var pnl float64
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		pnl, err = e.closeContractTx(tx, &contract, price, types.ContractStatusClosed, types.TransactionTypePositionClose)
		return err
	})
	if err != nil {
		return nil, err
	}

	contract.Status = types.ContractStatusClosed
	contract.ClosePrice = &price
	contract.PnL = &pnl

	e.hub.Broadcast(types.PositionClosedMessage{
		Type:      types.MessageTypePositionClosed,
		Contract:  contract,
		AccountID: contract.AccountID,
	})

	e.logger.Info("position closed",
		zap.String("contract_number", contract.ContractNumber),
		zap.Float64("close_price", price),
		zap.Float64("pnl", pnl))

	return &contract, nil
}

// ClosePair closes both legs of a hedged pair in one transaction with a
// single combined settlement. The pair must still be fully open: when any
// leg has already left the open state, nothing is closed and the caller
// gets a state error.
func (e *Engine) ClosePair(ctx context.Context, accountID, pairID uuid.UUID) ([]types.Contract, error) {
	ctx, cancel := context.WithTimeout(ctx, dualLegTimeout)
	defer cancel()

	legs, err := e.store.ListContractsByPair(e.store.DB(), pairID)
	if err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return nil, errors.New(errors.ErrCodePairNotFound, "pair not found")
	}

	for _, leg := range legs {
		if leg.AccountID != accountID {
			return nil, errors.New(errors.ErrCodeForbidden, "pair belongs to another account")
		}
	}
	for _, leg := range legs {
		if leg.Status != types.ContractStatusOpen {
			return nil, errors.Newf(errors.ErrCodePairNotOpen,
				"cannot close pair atomically: contract %s already left open state", leg.ContractNumber)
		}
	}

	price, err := e.cache.GetPrice(legs[0].Symbol)
	if err != nil {
		return nil, err
	}

	combined := decimal.Zero
	released := decimal.Zero
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for i := range legs {
			leg := &legs[i]
			pnl := leg.UnrealizedPnL(price)

			claimed, err := e.store.CloseContract(tx, leg.ID, types.ContractStatusClosed, price, pnl)
			if err != nil {
				return err
			}
			if !claimed {
				return errors.Newf(errors.ErrCodePairNotOpen, "contract %s already left open state", leg.ContractNumber)
			}

			leg.Status = types.ContractStatusClosed
			leg.ClosePrice = &price
			leg.PnL = &pnl

			combined = combined.Add(decimal.NewFromFloat(pnl))
			released = released.Add(decimal.NewFromFloat(leg.MarginUsed).Add(decimal.NewFromFloat(pnl)))
		}

		if released.IsNegative() {
			released = decimal.Zero
		}
		releasedF, _ := released.Float64()
		if err := e.store.CreditBalance(tx, accountID, e.settlementAsset(tx, legs[0].Symbol), releasedF); err != nil {
			return err
		}

		combinedF, _ := combined.Float64()
		return e.recordSettlement(tx, accountID, types.TransactionTypePairClose, e.settlementAsset(tx, legs[0].Symbol), combinedF, map[string]any{
			"pair_id":     pairID.String(),
			"symbol":      legs[0].Symbol,
			"close_price": price,
			"legs":        len(legs),
		})
	})
	if err != nil {
		return nil, err
	}

	combinedF, _ := combined.Float64()
	e.hub.Broadcast(types.PairClosedMessage{
		Type:        types.MessageTypePairClosed,
		Contracts:   legs,
		PairID:      pairID,
		AccountID:   accountID,
		CombinedPnL: combinedF,
	})

	e.logger.Info("hedged pair closed",
		zap.String("pair_id", pairID.String()),
		zap.Float64("close_price", price),
		zap.Float64("combined_pnl", combinedF))

	return legs, nil
}

// closeContractTx performs the guarded close, the margin release and the
// audit row for one contract inside the caller's transaction. Returns the
// realized PnL.
func (e *Engine) closeContractTx(tx *sql.Tx, contract *types.Contract, closePrice float64, toStatus types.ContractStatus, txType types.TransactionType) (float64, error) {
	pnl := contract.UnrealizedPnL(closePrice)

	claimed, err := e.store.CloseContract(tx, contract.ID, toStatus, closePrice, pnl)
	if err != nil {
		return 0, err
	}
	if !claimed {
		return 0, errors.New(errors.ErrCodeNotOpen, "contract is not open")
	}

	release := decimal.NewFromFloat(contract.MarginUsed).Add(decimal.NewFromFloat(pnl))
	if release.IsNegative() {
		release = decimal.Zero
	}
	releaseF, _ := release.Float64()

	if err := e.store.CreditBalance(tx, contract.AccountID, e.settlementAsset(tx, contract.Symbol), releaseF); err != nil {
		return 0, err
	}

	err = e.recordSettlement(tx, contract.AccountID, txType, e.settlementAsset(tx, contract.Symbol), pnl, map[string]any{
		"contract_number": contract.ContractNumber,
		"symbol":          contract.Symbol,
		"side":            contract.Side,
		"entry_price":     contract.EntryPrice,
		"close_price":     closePrice,
		"lot_size":        contract.LotSize,
		"leverage":        contract.Leverage,
		"margin_used":     contract.MarginUsed,
	})
	if err != nil {
		return 0, err
	}

	return pnl, nil
}

// settlementAsset resolves the quote asset contracts on this symbol settle
// in, defaulting to USDT when the instrument row is missing.
func (e *Engine) settlementAsset(q store.Queryer, symbol string) string {
	opt, err := e.store.GetInstrumentBySymbol(q, symbol)
	if err != nil || opt.IsNone() {
		return "USDT"
	}

	return opt.Unwrap().QuoteAsset
}

// recordSettlement writes one transaction audit row.
func (e *Engine) recordSettlement(tx *sql.Tx, accountID uuid.UUID, txType types.TransactionType, asset string, amount float64, metadata map[string]any) error {
	number, err := e.store.NextTransactionNumber(tx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return errors.Wrap(errors.ErrCodeUnknown, "failed to marshal settlement metadata", err)
	}

	return e.store.InsertTransaction(tx, &types.Transaction{
		ID:                uuid.New(),
		TransactionNumber: number,
		AccountID:         accountID,
		Type:              txType,
		Asset:             asset,
		Amount:            amount,
		Metadata:          string(raw),
		CreatedAt:         time.Now().UTC(),
	})
}
