package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

type OrderSide string

type OrderType string

type OrderStatus string

type ProductType string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
)

const (
	ProductTypeSpot    ProductType = "spot"
	ProductTypeCFD     ProductType = "cfd"
	ProductTypeFutures ProductType = "futures"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// Order is a trading order. Terminal orders (filled, cancelled, rejected) are
// immutable; all transitions out of pending are status-guarded updates.
type Order struct {
	ID               uuid.UUID   `json:"id"`
	AccountID        uuid.UUID   `json:"account_id"`
	OrderNumber      string      `json:"order_number"`
	Symbol           string      `json:"symbol"`
	Side             OrderSide   `json:"side"`
	Type             OrderType   `json:"type"`
	Status           OrderStatus `json:"status"`
	AmountBase       float64     `json:"amount_base"`
	LimitPrice       *float64    `json:"limit_price,omitempty"`
	StopPrice        *float64    `json:"stop_price,omitempty"`
	Leverage         int         `json:"leverage"`
	ProductType      ProductType `json:"product_type"`
	FilledAmount     float64     `json:"filled_amount"`
	AverageFillPrice *float64    `json:"average_fill_price,omitempty"`
	RejectReason     *string     `json:"reject_reason,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// CanExecuteAt decides whether an order of this type may fill at the given
// market price, returning a human-readable reason either way.
func (o *Order) CanExecuteAt(currentPrice float64) (bool, string) {
	switch o.Type {
	case OrderTypeMarket:
		return true, "market order"

	case OrderTypeLimit:
		if o.LimitPrice == nil {
			return false, "limit price not set"
		}
		// Buy limit fills at or below the limit, sell limit at or above.
		if o.Side == OrderSideBuy && currentPrice <= *o.LimitPrice {
			return true, "buy limit triggered"
		}
		if o.Side == OrderSideSell && currentPrice >= *o.LimitPrice {
			return true, "sell limit triggered"
		}

		return false, "limit price not reached"

	case OrderTypeStop:
		if o.StopPrice == nil {
			return false, "stop price not set"
		}
		if o.Side == OrderSideBuy && currentPrice >= *o.StopPrice {
			return true, "buy stop triggered"
		}
		if o.Side == OrderSideSell && currentPrice <= *o.StopPrice {
			return true, "sell stop triggered"
		}

		return false, "stop price not reached"

	case OrderTypeStopLimit:
		if o.StopPrice == nil || o.LimitPrice == nil {
			return false, "stop price or limit price not set"
		}

		stopTriggered := (o.Side == OrderSideBuy && currentPrice >= *o.StopPrice) ||
			(o.Side == OrderSideSell && currentPrice <= *o.StopPrice)
		if !stopTriggered {
			return false, "stop not triggered yet"
		}
		// Gap protection: the limit still caps the fill price.
		if o.Side == OrderSideBuy && currentPrice <= *o.LimitPrice {
			return true, "stop-limit buy triggered"
		}
		if o.Side == OrderSideSell && currentPrice >= *o.LimitPrice {
			return true, "stop-limit sell triggered"
		}

		return false, "stop triggered but limit not met"

	default:
		return false, "unknown order type"
	}
}

// PlaceOrderRequest is the request to create and execute an order.
type PlaceOrderRequest struct {
	AccountID   uuid.UUID   `json:"account_id" validate:"required"`
	Symbol      string      `json:"symbol" validate:"required"`
	Side        OrderSide   `json:"side" validate:"required,oneof=buy sell"`
	Type        OrderType   `json:"type" validate:"required,oneof=market limit stop stop_limit"`
	ProductType ProductType `json:"product_type" validate:"required,oneof=spot cfd futures"`
	AmountBase  float64     `json:"amount_base" validate:"required,gt=0"`
	LimitPrice  *float64    `json:"limit_price,omitempty" validate:"omitempty,gt=0"`
	StopPrice   *float64    `json:"stop_price,omitempty" validate:"omitempty,gt=0"`
	Leverage    int         `json:"leverage" validate:"gte=0"`
}

// Validate validates the PlaceOrderRequest struct.
func (r *PlaceOrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order request", err)
	}

	if r.Type == OrderTypeLimit && r.LimitPrice == nil {
		return errors.New(errors.ErrCodeInvalidOrder, "limit price is required for limit orders")
	}

	if (r.Type == OrderTypeStop || r.Type == OrderTypeStopLimit) && r.StopPrice == nil {
		return errors.New(errors.ErrCodeInvalidOrder, "stop price is required for stop orders")
	}

	if r.Type == OrderTypeStopLimit && r.LimitPrice == nil {
		return errors.New(errors.ErrCodeInvalidOrder, "limit price is required for stop-limit orders")
	}

	return nil
}
