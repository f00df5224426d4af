package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

type ContractSide string

type ContractStatus string

const (
	ContractSideLong  ContractSide = "long"
	ContractSideShort ContractSide = "short"
)

const (
	ContractStatusOpen       ContractStatus = "open"
	ContractStatusClosed     ContractStatus = "closed"
	ContractStatusLiquidated ContractStatus = "liquidated"
)

// Contract is an open or closed leveraged position. MarginUsed always equals
// (LotSize * EntryPrice) / Leverage. A hedged pair is exactly two contracts
// with opposite sides sharing PairID.
type Contract struct {
	ID               uuid.UUID      `json:"id"`
	AccountID        uuid.UUID      `json:"account_id"`
	ContractNumber   string         `json:"contract_number"`
	Symbol           string         `json:"symbol"`
	Side             ContractSide   `json:"side"`
	Status           ContractStatus `json:"status"`
	LotSize          float64        `json:"lot_size"`
	EntryPrice       float64        `json:"entry_price"`
	MarginUsed       float64        `json:"margin_used"`
	Leverage         int            `json:"leverage"`
	Commission       float64        `json:"commission"`
	LiquidationPrice *float64       `json:"liquidation_price,omitempty"`
	TPPrice          *float64       `json:"tp_price,omitempty"`
	SLPrice          *float64       `json:"sl_price,omitempty"`
	ClosePrice       *float64       `json:"close_price,omitempty"`
	PnL              *float64       `json:"pnl,omitempty"`
	PairID           *uuid.UUID     `json:"pair_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ClosedAt         *time.Time     `json:"closed_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// UnrealizedPnL returns the mark-to-market profit for the contract at the
// given price: long gains when price rises, short when it falls.
func (c *Contract) UnrealizedPnL(currentPrice float64) float64 {
	if c.Side == ContractSideLong {
		return (currentPrice - c.EntryPrice) * c.LotSize
	}

	return (c.EntryPrice - currentPrice) * c.LotSize
}

// ShouldLiquidate reports whether the current price has crossed the contract's
// liquidation price.
func (c *Contract) ShouldLiquidate(currentPrice float64) bool {
	if c.Status != ContractStatusOpen || c.LiquidationPrice == nil {
		return false
	}

	if c.Side == ContractSideLong {
		return currentPrice <= *c.LiquidationPrice
	}

	return currentPrice >= *c.LiquidationPrice
}

// MarginMetrics is the derived account-level margin snapshot. Nothing here is
// stored; it is computed from balances, open contracts and the price cache.
type MarginMetrics struct {
	Balance       float64 `json:"balance"`
	UsedMargin    float64 `json:"used_margin"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Equity        float64 `json:"equity"`
	FreeMargin    float64 `json:"free_margin"`
	MarginLevel   float64 `json:"margin_level"`
}

// OpenHedgedPairRequest opens a long and a short contract of the same size
// atomically.
type OpenHedgedPairRequest struct {
	AccountID uuid.UUID   `json:"account_id" validate:"required"`
	Symbol    string      `json:"symbol" validate:"required"`
	Quantity  float64     `json:"quantity" validate:"required,gt=0"`
	Leverage  int         `json:"leverage" validate:"required,gte=1"`
	Product   ProductType `json:"product_type" validate:"required,oneof=cfd futures"`
}

// Validate validates the OpenHedgedPairRequest struct.
func (r *OpenHedgedPairRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid hedged pair request", err)
	}

	return nil
}

// HedgedPair is the result of an atomic dual open.
type HedgedPair struct {
	PairID uuid.UUID `json:"pair_id"`
	Long   Contract  `json:"long"`
	Short  Contract  `json:"short"`
}
