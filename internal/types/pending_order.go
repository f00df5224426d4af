package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

type PendingOrderType string

type PendingOrderStatus string

const (
	PendingOrderTypeLimit     PendingOrderType = "limit"
	PendingOrderTypeStopLimit PendingOrderType = "stop_limit"
)

const (
	PendingOrderStatusPending   PendingOrderStatus = "pending"
	PendingOrderStatusExecuted  PendingOrderStatus = "executed"
	PendingOrderStatusCancelled PendingOrderStatus = "cancelled"
	PendingOrderStatusExpired   PendingOrderStatus = "expired"
	PendingOrderStatusFailed    PendingOrderStatus = "failed"
)

// PendingOrder is a resting limit or stop-limit instruction awaiting a
// qualifying price tick. Exactly one terminal transition is allowed out of
// pending; that transition is the concurrency gate for execution vs cancel.
type PendingOrder struct {
	ID            uuid.UUID          `json:"id"`
	AccountID     uuid.UUID          `json:"account_id"`
	OrderNumber   string             `json:"order_number"`
	Symbol        string             `json:"symbol"`
	Type          PendingOrderType   `json:"type"`
	Side          OrderSide          `json:"side"`
	Quantity      float64            `json:"quantity"`
	TriggerPrice  float64            `json:"trigger_price"`
	LimitPrice    *float64           `json:"limit_price,omitempty"`
	Leverage      int                `json:"leverage"`
	ProductType   ProductType        `json:"product_type"`
	Status        PendingOrderStatus `json:"status"`
	ExecutedAt    *time.Time         `json:"executed_at,omitempty"`
	ExecutedPrice *float64           `json:"executed_price,omitempty"`
	FailureReason *string            `json:"failure_reason,omitempty"`
	ExpiresAt     *time.Time         `json:"expires_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ShouldExecute decides whether the resting order fires at the current price.
// This is the core trigger logic driven by the tick evaluator.
func (po *PendingOrder) ShouldExecute(currentPrice float64) bool {
	if po.Status != PendingOrderStatusPending {
		return false
	}

	switch po.Type {
	case PendingOrderTypeLimit:
		if po.Side == OrderSideBuy {
			// Buy limit fires when price drops to or below the trigger.
			return currentPrice <= po.TriggerPrice
		}
		// Sell limit fires when price rises to or above the trigger.
		return currentPrice >= po.TriggerPrice

	case PendingOrderTypeStopLimit:
		if po.LimitPrice == nil {
			return false
		}

		if po.Side == OrderSideBuy {
			// Buy stop-limit fires once the stop is reached, but never past
			// the limit. A gap through the limit must not fill.
			return currentPrice >= po.TriggerPrice && currentPrice <= *po.LimitPrice
		}
		// Sell stop-limit mirrors with the inequalities reversed.
		return currentPrice <= po.TriggerPrice && currentPrice >= *po.LimitPrice

	default:
		return false
	}
}

// GetExecutionPrice computes the fill price under the best-execution rule:
// price improvement is passed to the user, and the limit always holds as the
// worst case.
func (po *PendingOrder) GetExecutionPrice(currentPrice float64) float64 {
	if po.LimitPrice == nil {
		return currentPrice
	}

	if po.Side == OrderSideBuy {
		// Never pay more than the limit.
		if currentPrice < *po.LimitPrice {
			return currentPrice
		}

		return *po.LimitPrice
	}

	// Never receive less than the limit.
	if currentPrice > *po.LimitPrice {
		return currentPrice
	}

	return *po.LimitPrice
}

// IsExpired reports whether the order carries an expiry in the past.
func (po *PendingOrder) IsExpired(now time.Time) bool {
	return po.ExpiresAt != nil && now.After(*po.ExpiresAt)
}

// CreatePendingOrderRequest is the request to create a resting order.
type CreatePendingOrderRequest struct {
	AccountID    uuid.UUID        `json:"account_id" validate:"required"`
	Symbol       string           `json:"symbol" validate:"required"`
	Type         PendingOrderType `json:"type" validate:"required,oneof=limit stop_limit"`
	Side         OrderSide        `json:"side" validate:"required,oneof=buy sell"`
	Quantity     float64          `json:"quantity" validate:"required,gt=0"`
	TriggerPrice float64          `json:"trigger_price" validate:"required,gt=0"`
	LimitPrice   *float64         `json:"limit_price,omitempty" validate:"omitempty,gt=0"`
	Leverage     int              `json:"leverage" validate:"gte=0"`
	ProductType  ProductType      `json:"product_type" validate:"required,oneof=spot cfd futures"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
}

// Validate validates the CreatePendingOrderRequest struct.
func (r *CreatePendingOrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPendingOrder, "invalid pending order request", err)
	}

	if r.Type == PendingOrderTypeStopLimit && r.LimitPrice == nil {
		return errors.New(errors.ErrCodeInvalidPendingOrder, "limit price is required for stop-limit orders")
	}

	return nil
}
