package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

// InsertPendingOrder persists a new resting order.
func (s *Store) InsertPendingOrder(q Queryer, po *types.PendingOrder) error {
	_, err := s.sq.
		Insert("pending_orders").
		Columns(
			"id", "account_id", "order_number", "symbol", "order_type", "side",
			"quantity", "trigger_price", "limit_price", "leverage", "product_type",
			"status", "executed_at", "executed_price", "failure_reason",
			"expires_at", "created_at", "updated_at",
		).
		Values(
			po.ID.String(), po.AccountID.String(), po.OrderNumber, po.Symbol,
			po.Type, po.Side, po.Quantity, po.TriggerPrice, nullFloat(po.LimitPrice),
			po.Leverage, po.ProductType, po.Status, nullTime(po.ExecutedAt),
			nullFloat(po.ExecutedPrice), nullString(po.FailureReason),
			nullTime(po.ExpiresAt), po.CreatedAt, po.UpdatedAt,
		).
		RunWith(q).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert pending order", err)
	}

	return nil
}

// GetPendingOrderByID looks up a resting order by id.
func (s *Store) GetPendingOrderByID(q Queryer, id uuid.UUID) (optional.Option[types.PendingOrder], error) {
	query, args, err := s.sq.
		Select(pendingOrderColumns...).
		From("pending_orders").
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return optional.None[types.PendingOrder](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to build pending order query", err)
	}

	po, err := scanPendingOrder(q.QueryRow(query, args...))
	if err != nil {
		if isNoRows(err) {
			return optional.None[types.PendingOrder](), nil
		}
		return optional.None[types.PendingOrder](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to get pending order", err)
	}

	return optional.Some(po), nil
}

// ListActivePendingOrdersBySymbol returns resting orders still pending for a
// symbol. This is the evaluator's per-tick candidate set.
func (s *Store) ListActivePendingOrdersBySymbol(q Queryer, symbol string) ([]types.PendingOrder, error) {
	return s.listPendingOrders(q, "symbol = ? AND status = ?", symbol, types.PendingOrderStatusPending)
}

// ListPendingOrdersByAccount returns all resting orders for an account.
func (s *Store) ListPendingOrdersByAccount(q Queryer, accountID uuid.UUID) ([]types.PendingOrder, error) {
	return s.listPendingOrders(q, "account_id = ?", accountID.String())
}

func (s *Store) listPendingOrders(q Queryer, where string, args ...interface{}) ([]types.PendingOrder, error) {
	query, qargs, err := s.sq.
		Select(pendingOrderColumns...).
		From("pending_orders").
		Where(where, args...).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to build pending orders query", err)
	}

	rows, err := q.Query(query, qargs...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to list pending orders", err)
	}
	defer rows.Close()

	var out []types.PendingOrder
	for rows.Next() {
		po, err := scanPendingOrder(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to scan pending order", err)
		}
		out = append(out, po)
	}

	return out, rows.Err()
}

// ClaimPendingOrderExecuted transitions pending -> executed. ok=false means
// another writer already moved the order out of pending; the caller must not
// execute.
func (s *Store) ClaimPendingOrderExecuted(q Queryer, id uuid.UUID, executedPrice float64) (bool, error) {
	now := time.Now().UTC()

	res, err := s.sq.
		Update("pending_orders").
		Set("status", types.PendingOrderStatusExecuted).
		Set("executed_at", now).
		Set("executed_price", executedPrice).
		Set("updated_at", now).
		Where("id = ? AND status = ?", id.String(), types.PendingOrderStatusPending).
		RunWith(q).
		Exec()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to claim pending order", err)
	}

	return rowsAffected(res)
}

// MarkPendingOrderFailed transitions pending -> failed with a reason.
func (s *Store) MarkPendingOrderFailed(q Queryer, id uuid.UUID, reason string) (bool, error) {
	res, err := s.sq.
		Update("pending_orders").
		Set("status", types.PendingOrderStatusFailed).
		Set("failure_reason", reason).
		Set("updated_at", time.Now().UTC()).
		Where("id = ? AND status = ?", id.String(), types.PendingOrderStatusPending).
		RunWith(q).
		Exec()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to mark pending order failed", err)
	}

	return rowsAffected(res)
}

// CancelPendingOrder transitions pending -> cancelled. ok=false means the
// order already left pending (executed, expired, failed or cancelled).
func (s *Store) CancelPendingOrder(q Queryer, id uuid.UUID) (bool, error) {
	res, err := s.sq.
		Update("pending_orders").
		Set("status", types.PendingOrderStatusCancelled).
		Set("updated_at", time.Now().UTC()).
		Where("id = ? AND status = ?", id.String(), types.PendingOrderStatusPending).
		RunWith(q).
		Exec()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to cancel pending order", err)
	}

	return rowsAffected(res)
}

// ExpirePendingOrder transitions pending -> expired, guarded on the expiry
// actually being due.
func (s *Store) ExpirePendingOrder(q Queryer, id uuid.UUID, now time.Time) (bool, error) {
	res, err := s.sq.
		Update("pending_orders").
		Set("status", types.PendingOrderStatusExpired).
		Set("updated_at", now.UTC()).
		Where("id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			id.String(), types.PendingOrderStatusPending, now.UTC()).
		RunWith(q).
		Exec()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to expire pending order", err)
	}

	return rowsAffected(res)
}

var pendingOrderColumns = []string{
	"id", "account_id", "order_number", "symbol", "order_type", "side",
	"quantity", "trigger_price", "limit_price", "leverage", "product_type",
	"status", "executed_at", "executed_price", "failure_reason",
	"expires_at", "created_at", "updated_at",
}

func scanPendingOrder(row rowScanner) (types.PendingOrder, error) {
	var (
		po                    types.PendingOrder
		rawID, rawAccountID   string
		limitPrice, execPrice sql.NullFloat64
		executedAt, expiresAt sql.NullTime
		failureReason         sql.NullString
	)

	err := row.Scan(
		&rawID, &rawAccountID, &po.OrderNumber, &po.Symbol, &po.Type, &po.Side,
		&po.Quantity, &po.TriggerPrice, &limitPrice, &po.Leverage, &po.ProductType,
		&po.Status, &executedAt, &execPrice, &failureReason, &expiresAt,
		&po.CreatedAt, &po.UpdatedAt,
	)
	if err != nil {
		return types.PendingOrder{}, err
	}

	if po.ID, err = uuid.Parse(rawID); err != nil {
		return types.PendingOrder{}, err
	}
	if po.AccountID, err = uuid.Parse(rawAccountID); err != nil {
		return types.PendingOrder{}, err
	}
	po.LimitPrice = floatPtr(limitPrice)
	po.ExecutedPrice = floatPtr(execPrice)
	po.ExecutedAt = timePtr(executedAt)
	po.ExpiresAt = timePtr(expiresAt)
	po.FailureReason = stringPtr(failureReason)

	return po, nil
}
