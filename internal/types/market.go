package types

import (
	"time"

	"github.com/google/uuid"
)

// PriceTick is a normalized trade event from the venue stream.
type PriceTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcast message types pushed to websocket subscribers.
const (
	MessageTypePriceUpdate        = "price_update"
	MessageTypePositionClosed     = "position_closed"
	MessageTypePairClosed         = "pair_closed"
	MessageTypePositionLiquidated = "position_liquidated"
	MessageTypeStatus             = "status"
)

// PriceUpdateMessage is broadcast on every accepted tick.
type PriceUpdateMessage struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionClosedMessage is broadcast when a contract closes or liquidates.
// It carries the full closed contract so subscribers never have to fetch it.
type PositionClosedMessage struct {
	Type      string    `json:"type"`
	Contract  Contract  `json:"contract"`
	AccountID uuid.UUID `json:"account_id"`
}

// PairClosedMessage is broadcast when both legs of a hedged pair close.
type PairClosedMessage struct {
	Type        string     `json:"type"`
	Contracts   []Contract `json:"contracts"`
	PairID      uuid.UUID  `json:"pair_id"`
	AccountID   uuid.UUID  `json:"account_id"`
	CombinedPnL float64    `json:"combined_pnl"`
}

// StatusMessage reports venue feed connectivity transitions.
type StatusMessage struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

const (
	FeedStatusConnected    = "connected"
	FeedStatusDisconnected = "disconnected"
)

// Instrument describes a tradeable symbol and its leverage policy.
type Instrument struct {
	ID          uuid.UUID   `json:"id"`
	Symbol      string      `json:"symbol"`
	Name        string      `json:"name"`
	ProductType ProductType `json:"product_type"`
	BaseAsset   string      `json:"base_asset"`
	QuoteAsset  string      `json:"quote_asset"`
	MaxLeverage int         `json:"max_leverage"`
	IsTradeable bool        `json:"is_tradeable"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Balance is one account's holding of a single asset.
type Balance struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Asset     string    `json:"asset"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is the owner of balances, orders and contracts.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type TransactionType string

const (
	TransactionTypePositionClose TransactionType = "position_close"
	TransactionTypeLiquidation   TransactionType = "liquidation"
	TransactionTypePairClose     TransactionType = "pair_close"
)

// Transaction is an immutable audit row recorded for every realized
// financial mutation.
type Transaction struct {
	ID                uuid.UUID       `json:"id"`
	TransactionNumber string          `json:"transaction_number"`
	AccountID         uuid.UUID       `json:"account_id"`
	Type              TransactionType `json:"type"`
	Asset             string          `json:"asset"`
	Amount            float64         `json:"amount"`
	Metadata          string          `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}
