package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

// InsertOrder persists a new order row. The caller owns the id, number and
// timestamps.
func (s *Store) InsertOrder(q Queryer, order *types.Order) error {
	_, err := s.sq.
		Insert("orders").
		Columns(
			"id", "account_id", "order_number", "symbol", "side", "order_type",
			"status", "amount_base", "limit_price", "stop_price", "leverage",
			"product_type", "filled_amount", "average_fill_price", "reject_reason",
			"created_at", "updated_at",
		).
		Values(
			order.ID.String(), order.AccountID.String(), order.OrderNumber,
			order.Symbol, order.Side, order.Type, order.Status, order.AmountBase,
			nullFloat(order.LimitPrice), nullFloat(order.StopPrice), order.Leverage,
			order.ProductType, order.FilledAmount, nullFloat(order.AverageFillPrice),
			nullString(order.RejectReason), order.CreatedAt, order.UpdatedAt,
		).
		RunWith(q).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert order", err)
	}

	return nil
}

// MarkOrderFilled transitions a pending order to filled. ok=false means the
// order was no longer pending.
func (s *Store) MarkOrderFilled(q Queryer, id uuid.UUID, fillPrice, filledAmount float64) (bool, error) {
	res, err := s.sq.
		Update("orders").
		Set("status", types.OrderStatusFilled).
		Set("average_fill_price", fillPrice).
		Set("filled_amount", filledAmount).
		Set("updated_at", time.Now().UTC()).
		Where("id = ? AND status = ?", id.String(), types.OrderStatusPending).
		RunWith(q).
		Exec()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to mark order filled", err)
	}

	return rowsAffected(res)
}

// MarkOrderRejected transitions a pending order to rejected with a reason.
func (s *Store) MarkOrderRejected(q Queryer, id uuid.UUID, reason string) (bool, error) {
	res, err := s.sq.
		Update("orders").
		Set("status", types.OrderStatusRejected).
		Set("reject_reason", reason).
		Set("updated_at", time.Now().UTC()).
		Where("id = ? AND status = ?", id.String(), types.OrderStatusPending).
		RunWith(q).
		Exec()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to mark order rejected", err)
	}

	return rowsAffected(res)
}

// GetOrderByID looks up an order by id.
func (s *Store) GetOrderByID(q Queryer, id uuid.UUID) (optional.Option[types.Order], error) {
	query, args, err := s.sq.
		Select(orderColumns...).
		From("orders").
		Where("id = ?", id.String()).
		ToSql()
	if err != nil {
		return optional.None[types.Order](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to build order query", err)
	}

	order, err := scanOrder(q.QueryRow(query, args...))
	if err != nil {
		if isNoRows(err) {
			return optional.None[types.Order](), nil
		}
		return optional.None[types.Order](), errors.Wrap(errors.ErrCodeStorageFailed, "failed to get order", err)
	}

	return optional.Some(order), nil
}

// ListOrdersByAccount returns the account's orders, newest first.
func (s *Store) ListOrdersByAccount(q Queryer, accountID uuid.UUID) ([]types.Order, error) {
	query, args, err := s.sq.
		Select(orderColumns...).
		From("orders").
		Where("account_id = ?", accountID.String()).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to build orders query", err)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to list orders", err)
	}
	defer rows.Close()

	var orders []types.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to scan order", err)
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

var orderColumns = []string{
	"id", "account_id", "order_number", "symbol", "side", "order_type",
	"status", "amount_base", "limit_price", "stop_price", "leverage",
	"product_type", "filled_amount", "average_fill_price", "reject_reason",
	"created_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (types.Order, error) {
	var (
		order                 types.Order
		rawID, rawAccountID   string
		limitPrice, stopPrice sql.NullFloat64
		avgFillPrice          sql.NullFloat64
		rejectReason          sql.NullString
	)

	err := row.Scan(
		&rawID, &rawAccountID, &order.OrderNumber, &order.Symbol, &order.Side,
		&order.Type, &order.Status, &order.AmountBase, &limitPrice, &stopPrice,
		&order.Leverage, &order.ProductType, &order.FilledAmount, &avgFillPrice,
		&rejectReason, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return types.Order{}, err
	}

	if order.ID, err = uuid.Parse(rawID); err != nil {
		return types.Order{}, err
	}
	if order.AccountID, err = uuid.Parse(rawAccountID); err != nil {
		return types.Order{}, err
	}
	order.LimitPrice = floatPtr(limitPrice)
	order.StopPrice = floatPtr(stopPrice)
	order.AverageFillPrice = floatPtr(avgFillPrice)
	order.RejectReason = stringPtr(rejectReason)

	return order, nil
}

func rowsAffected(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeStorageFailed, "failed to read rows affected", err)
	}

	return affected > 0, nil
}
