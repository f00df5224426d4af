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

// CreatePendingOrder validates and persists a resting order. The order sits
// in the book until a tick satisfies its trigger, it expires, or the account
// cancels it.
func (e *Engine) CreatePendingOrder(ctx context.Context, req *types.CreatePendingOrderRequest) (*types.PendingOrder, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	var po *types.PendingOrder
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.validateInstrument(tx, req.Symbol, req.Leverage, req.ProductType); err != nil {
			return err
		}

		number, err := e.store.NextOrderNumber(tx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		po = &types.PendingOrder{
			ID:           uuid.New(),
			AccountID:    req.AccountID,
			OrderNumber:  number,
			Symbol:       req.Symbol,
			Type:         req.Type,
			Side:         req.Side,
			Quantity:     req.Quantity,
			TriggerPrice: req.TriggerPrice,
			LimitPrice:   req.LimitPrice,
			Leverage:     req.Leverage,
			ProductType:  req.ProductType,
			Status:       types.PendingOrderStatusPending,
			ExpiresAt:    req.ExpiresAt,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		return e.store.InsertPendingOrder(tx, po)
	})

	var bizErr *businessError
	if goerrors.As(err, &bizErr) {
		return nil, errors.New(bizErr.code, bizErr.reason)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("pending order created",
		zap.String("order_number", po.OrderNumber),
		zap.String("symbol", po.Symbol),
		zap.Float64("trigger_price", po.TriggerPrice))

	return po, nil
}

// CancelPendingOrder cancels a resting order. A lost race against execution
// or expiry surfaces as a state error, never as a silent success.
func (e *Engine) CancelPendingOrder(ctx context.Context, accountID, pendingOrderID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	opt, err := e.store.GetPendingOrderByID(e.store.DB(), pendingOrderID)
	if err != nil {
		return err
	}
	if opt.IsNone() {
		return errors.New(errors.ErrCodeOrderNotFound, "pending order not found")
	}
	if opt.Unwrap().AccountID != accountID {
		return errors.New(errors.ErrCodeForbidden, "pending order belongs to another account")
	}

	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		claimed, err := e.store.CancelPendingOrder(tx, pendingOrderID)
		if err != nil {
			return err
		}
		if !claimed {
			return errors.New(errors.ErrCodeNotPending, "pending order already left pending state")
		}
		return nil
	})
}

// ExecutePendingOrder attempts to execute a triggered resting order at the
// given price. The pending -> executed claim and the resulting fill commit
// in one transaction, so the order executes at most once. Returns false when
// another writer claimed the order first.
//
// A business failure (instrument gone, insufficient balance) rolls the claim
// back and marks the order failed with the reason.
func (e *Engine) ExecutePendingOrder(ctx context.Context, po *types.PendingOrder, executionPrice float64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	lostRace := false
	execErr := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		claimed, err := e.store.ClaimPendingOrderExecuted(tx, po.ID, executionPrice)
		if err != nil {
			return err
		}
		if !claimed {
			lostRace = true
			return nil
		}

		inst, err := e.validateInstrument(tx, po.Symbol, po.Leverage, po.ProductType)
		if err != nil {
			return err
		}

		if po.ProductType == types.ProductTypeSpot {
			return e.settleSpot(tx, po.AccountID, inst, po.Side, po.Quantity, executionPrice)
		}

		side := types.ContractSideLong
		if po.Side == types.OrderSideSell {
			side = types.ContractSideShort
		}
		_, err = e.openContract(tx, po.AccountID, inst, side, po.Quantity, executionPrice, po.Leverage, nil)
		return err
	})

	if lostRace {
		return false, nil
	}

	var bizErr *businessError
	if goerrors.As(execErr, &bizErr) {
		if _, markErr := e.store.MarkPendingOrderFailed(e.store.DB(), po.ID, bizErr.reason); markErr != nil {
			e.logger.Error("failed to mark pending order failed",
				zap.String("order_number", po.OrderNumber),
				zap.Error(markErr))
		}
		return false, errors.New(bizErr.code, bizErr.reason)
	}
	if execErr != nil {
		return false, execErr
	}

	e.logger.Info("pending order executed",
		zap.String("order_number", po.OrderNumber),
		zap.String("symbol", po.Symbol),
		zap.Float64("execution_price", executionPrice))

	return true, nil
}
