// Package engine implements trade execution, margin accounting, hedged pairs,
// pending-order evaluation and liquidation on top of the store and the price
// cache.
package engine

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-exchange/internal/logger"
	"github.com/rxtech-lab/argo-exchange/internal/market/cache"
	"github.com/rxtech-lab/argo-exchange/internal/store"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// feeRate is charged on notional for every execution.
	feeRate = 0.001

	// liquidationBuffer leaves 10% of the margin as a buffer: a position is
	// liquidated once 90% of its margin is consumed by adverse movement.
	liquidationBuffer = 0.9

	executeTimeout = 10 * time.Second
	dualLegTimeout = 30 * time.Second
)

// Broadcaster is the hub surface the engine needs.
type Broadcaster interface {
	Broadcast(payload any)
}

// Engine coordinates all trading mutations. Every write path runs inside a
// single store transaction so a failure leaves no partial state.
type Engine struct {
	store  *store.Store
	cache  *cache.PriceCache
	hub    Broadcaster
	logger *logger.Logger
}

func NewEngine(st *store.Store, priceCache *cache.PriceCache, broadcaster Broadcaster, log *logger.Logger) *Engine {
	return &Engine{
		store:  st,
		cache:  priceCache,
		hub:    broadcaster,
		logger: log,
	}
}

// computeFee returns the commission on a notional value.
func computeFee(notional float64) float64 {
	fee, _ := decimal.NewFromFloat(notional).Mul(decimal.NewFromFloat(feeRate)).Float64()
	return fee
}

// computeNotional returns quantity * price without float drift.
func computeNotional(quantity, price float64) float64 {
	notional, _ := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Float64()
	return notional
}

// computeMargin returns notional / leverage.
func computeMargin(notional float64, leverage int) float64 {
	margin, _ := decimal.NewFromFloat(notional).Div(decimal.NewFromInt(int64(leverage))).Float64()
	return margin
}

// computeLiquidationPrice places the liquidation level so that the loss at
// that price equals 90% of the posted margin.
func computeLiquidationPrice(entryPrice float64, leverage int, side types.ContractSide) float64 {
	entry := decimal.NewFromFloat(entryPrice)
	offset := entry.Mul(decimal.NewFromFloat(liquidationBuffer)).Div(decimal.NewFromInt(int64(leverage)))

	var liq decimal.Decimal
	if side == types.ContractSideLong {
		liq = entry.Sub(offset)
	} else {
		liq = entry.Add(offset)
	}

	out, _ := liq.Float64()
	return out
}

// equivalentAssets returns the interchangeable spellings of an asset. USD and
// USDT are treated as 1:1 equivalent.
func equivalentAssets(asset string) []string {
	switch strings.ToUpper(asset) {
	case "USD":
		return []string{"USD", "USDT"}
	case "USDT":
		return []string{"USDT", "USD"}
	default:
		return []string{asset}
	}
}

// debitBalance deducts amount from the first equivalent asset balance with
// sufficient funds. ok=false means no equivalent balance could cover it.
func (e *Engine) debitBalance(tx *sql.Tx, accountID uuid.UUID, asset string, amount float64) (bool, error) {
	for _, candidate := range equivalentAssets(asset) {
		ok, err := e.store.AdjustBalance(tx, accountID, candidate, -amount)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

// businessError marks failures that reject the order rather than abort the
// request: the transaction rolls back and the order is recorded as rejected
// with the reason.
type businessError struct {
	code   errors.ErrorCode
	reason string
}

func (b *businessError) Error() string {
	return b.reason
}

func rejectf(code errors.ErrorCode, reason string) error {
	return &businessError{code: code, reason: reason}
}

// validateInstrument loads the instrument for the symbol and enforces
// tradeability and the leverage cap.
func (e *Engine) validateInstrument(q store.Queryer, symbol string, leverage int, productType types.ProductType) (types.Instrument, error) {
	opt, err := e.store.GetInstrumentBySymbol(q, symbol)
	if err != nil {
		return types.Instrument{}, err
	}
	if opt.IsNone() {
		return types.Instrument{}, rejectf(errors.ErrCodeInstrumentNotFound, "instrument not found: "+symbol)
	}

	inst := opt.Unwrap()
	if !inst.IsTradeable {
		return types.Instrument{}, rejectf(errors.ErrCodeInstrumentNotTradeable, "instrument is not tradeable: "+symbol)
	}

	if productType != types.ProductTypeSpot {
		if leverage < 1 {
			return types.Instrument{}, rejectf(errors.ErrCodeInvalidLeverage, "leverage must be at least 1 for leveraged products")
		}
		if leverage > inst.MaxLeverage {
			return types.Instrument{}, rejectf(errors.ErrCodeLeverageExceeded, "leverage exceeds instrument maximum")
		}
	}

	return inst, nil
}
