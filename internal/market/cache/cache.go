// Package cache holds the latest observed price per symbol. It is the single
// read path for every component that needs a current price; nothing in the
// engine ever talks to the venue directly.
package cache

import (
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-exchange/internal/types"
	"github.com/rxtech-lab/argo-exchange/pkg/errors"
)

// PriceCache is a concurrency-safe map of symbol to last trade tick.
// Reads vastly outnumber writes, so a RWMutex fits.
type PriceCache struct {
	mu    sync.RWMutex
	ticks map[string]types.PriceTick
}

func NewPriceCache() *PriceCache {
	return &PriceCache{
		ticks: make(map[string]types.PriceTick),
	}
}

// Update records the latest tick for its symbol, replacing any prior value.
func (c *PriceCache) Update(tick types.PriceTick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[tick.Symbol] = tick
}

// GetPrice returns the latest price for the symbol. Before the first update
// for a symbol the price is unknown and an error is returned; callers must
// treat that as "cannot price", never as zero.
func (c *PriceCache) GetPrice(symbol string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tick, ok := c.ticks[symbol]
	if !ok {
		return 0, errors.Newf(errors.ErrCodePriceNotFound, "no price for symbol %s", symbol)
	}

	return tick.Price, nil
}

// GetTick returns the full latest tick for the symbol, if any.
func (c *PriceCache) GetTick(symbol string) optional.Option[types.PriceTick] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tick, ok := c.ticks[symbol]
	if !ok {
		return optional.None[types.PriceTick]()
	}

	return optional.Some(tick)
}

// Snapshot copies all known ticks, for status endpoints and debugging.
func (c *PriceCache) Snapshot() map[string]types.PriceTick {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]types.PriceTick, len(c.ticks))
	for symbol, tick := range c.ticks {
		out[symbol] = tick
	}

	return out
}

// Age returns how stale the cached tick for symbol is, or false when unknown.
func (c *PriceCache) Age(symbol string, now time.Time) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tick, ok := c.ticks[symbol]
	if !ok {
		return 0, false
	}

	return now.Sub(tick.Timestamp), true
}
