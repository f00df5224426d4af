package engine

import (
	"context"
	"database/sql"
	goerrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
	"go.uber.org/zap"
)

// ExecuteOrder validates, prices and executes an order in one transaction.
// Business failures (unknown instrument, insufficient balance, unmet limit)
// persist the order as rejected with a reason and return a typed error;
// infrastructure failures persist nothing.
func (e *Engine) ExecuteOrder(ctx context.Context, req *types.PlaceOrderRequest) (*types.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	price, err := e.cache.GetPrice(req.Symbol)
	if err != nil {
		return nil, err
	}

	var order *types.Order
	execErr := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		order, err = e.executeOrderTx(tx, req, price)
		return err
	})

	var bizErr *businessError
	if goerrors.As(execErr, &bizErr) {
		rejected, recordErr := e.recordRejectedOrder(ctx, req, bizErr.reason)
		if recordErr != nil {
			e.logger.Error("failed to record rejected order",
				zap.String("symbol", req.Symbol),
				zap.Error(recordErr))
		}

		return rejected, errors.New(bizErr.code, bizErr.reason)
	}
	if execErr != nil {
		return nil, execErr
	}

	e.logger.Info("order executed",
		zap.String("order_number", order.OrderNumber),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("fill_price", *order.AverageFillPrice))

	return order, nil
}

// executeOrderTx runs the full execution inside one transaction: persist the
// order, move funds or open a contract, then mark it filled.
func (e *Engine) executeOrderTx(tx *sql.Tx, req *types.PlaceOrderRequest, currentPrice float64) (*types.Order, error) {
	inst, err := e.validateInstrument(tx, req.Symbol, req.Leverage, req.ProductType)
	if err != nil {
		return nil, err
	}

	order, err := e.buildOrder(tx, req)
	if err != nil {
		return nil, err
	}
	if err := e.store.InsertOrder(tx, order); err != nil {
		return nil, err
	}

	canExecute, reason := order.CanExecuteAt(currentPrice)
	if !canExecute {
		return nil, rejectf(errors.ErrCodeExecutionFailed, reason)
	}

	fillPrice := e.fillPrice(order, currentPrice)

	if req.ProductType == types.ProductTypeSpot {
		if err := e.settleSpot(tx, order.AccountID, inst, order.Side, order.AmountBase, fillPrice); err != nil {
			return nil, err
		}
	} else {
		side := types.ContractSideLong
		if req.Side == types.OrderSideSell {
			side = types.ContractSideShort
		}
		if _, err := e.openContract(tx, order.AccountID, inst, side, req.AmountBase, fillPrice, req.Leverage, nil); err != nil {
			return nil, err
		}
	}

	claimed, err := e.store.MarkOrderFilled(tx, order.ID, fillPrice, order.AmountBase)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, errors.New(errors.ErrCodeNotPending, "order left pending state during execution")
	}

	order.Status = types.OrderStatusFilled
	order.FilledAmount = order.AmountBase
	order.AverageFillPrice = &fillPrice

	return order, nil
}

func (e *Engine) buildOrder(tx *sql.Tx, req *types.PlaceOrderRequest) (*types.Order, error) {
	number, err := e.store.NextOrderNumber(tx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &types.Order{
		ID:          uuid.New(),
		AccountID:   req.AccountID,
		OrderNumber: number,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Status:      types.OrderStatusPending,
		AmountBase:  req.AmountBase,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		Leverage:    req.Leverage,
		ProductType: req.ProductType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// fillPrice applies best execution: a limit order never fills worse than its
// limit, and price improvement goes to the account.
func (e *Engine) fillPrice(order *types.Order, currentPrice float64) float64 {
	if order.LimitPrice == nil {
		return currentPrice
	}

	if order.Side == types.OrderSideBuy {
		if currentPrice < *order.LimitPrice {
			return currentPrice
		}
		return *order.LimitPrice
	}

	if currentPrice > *order.LimitPrice {
		return currentPrice
	}
	return *order.LimitPrice
}

// settleSpot moves quote against base for an unleveraged fill. The fee is
// always charged in the quote asset.
func (e *Engine) settleSpot(tx *sql.Tx, accountID uuid.UUID, inst types.Instrument, side types.OrderSide, quantity, fillPrice float64) error {
	notional := computeNotional(quantity, fillPrice)
	fee := computeFee(notional)

	if side == types.OrderSideBuy {
		ok, err := e.debitBalance(tx, accountID, inst.QuoteAsset, notional+fee)
		if err != nil {
			return err
		}
		if !ok {
			return rejectf(errors.ErrCodeInsufficientBalance, "insufficient quote balance")
		}

		return e.store.CreditBalance(tx, accountID, inst.BaseAsset, quantity)
	}

	ok, err := e.store.AdjustBalance(tx, accountID, inst.BaseAsset, -quantity)
	if err != nil {
		return err
	}
	if !ok {
		return rejectf(errors.ErrCodeInsufficientBalance, "insufficient base balance")
	}

	return e.store.CreditBalance(tx, accountID, inst.QuoteAsset, notional-fee)
}

// openContract posts margin plus fee and inserts the open contract row.
func (e *Engine) openContract(tx *sql.Tx, accountID uuid.UUID, inst types.Instrument, side types.ContractSide, lotSize, entryPrice float64, leverage int, pairID *uuid.UUID) (*types.Contract, error) {
	notional := computeNotional(lotSize, entryPrice)
	fee := computeFee(notional)
	margin := computeMargin(notional, leverage)

	ok, err := e.debitBalance(tx, accountID, inst.QuoteAsset, margin+fee)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rejectf(errors.ErrCodeInsufficientBalance, "insufficient balance for margin and fee")
	}

	number, err := e.store.NextContractNumber(tx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	liq := computeLiquidationPrice(entryPrice, leverage, side)
	contract := &types.Contract{
		ID:               uuid.New(),
		AccountID:        accountID,
		ContractNumber:   number,
		Symbol:           inst.Symbol,
		Side:             side,
		Status:           types.ContractStatusOpen,
		LotSize:          lotSize,
		EntryPrice:       entryPrice,
		MarginUsed:       margin,
		Leverage:         leverage,
		Commission:       fee,
		LiquidationPrice: &liq,
		PairID:           pairID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := e.store.InsertContract(tx, contract); err != nil {
		return nil, err
	}

	return contract, nil
}

// recordRejectedOrder persists the order row with a rejection reason after
// the execution transaction rolled back. The row goes through the same
// pending -> terminal transition as every other order.
func (e *Engine) recordRejectedOrder(ctx context.Context, req *types.PlaceOrderRequest, reason string) (*types.Order, error) {
	var order *types.Order
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		order, err = e.buildOrder(tx, req)
		if err != nil {
			return err
		}
		if err := e.store.InsertOrder(tx, order); err != nil {
			return err
		}

		claimed, err := e.store.MarkOrderRejected(tx, order.ID, reason)
		if err != nil {
			return err
		}
		if !claimed {
			return errors.New(errors.ErrCodeNotPending, "order left pending state before rejection")
		}

		order.Status = types.OrderStatusRejected
		order.RejectReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}
