package engine

import (
	"sync"
	"time"

	"github.com/gridforge/hedgeengine/internal/models"
)

const (
	candleCacheCap       = 200
	candleFreshnessWindow = time.Second
)

// CandleCache holds the most recent candles for one symbol/timeframe pair,
// capped at candleCacheCap, and short-circuits a refetch within
// candleFreshnessWindow of the last successful fetch (spec §4.4: "a
// bounded candle cache with a freshness window avoids hammering the
// exchange on a sub-second tick interval").
type CandleCache struct {
	mu        sync.Mutex
	candles   []models.Candle
	fetchedAt time.Time
}

// Fresh reports whether the cache was populated within the freshness
// window and has data to serve.
func (c *CandleCache) Fresh(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.candles) > 0 && now.Sub(c.fetchedAt) < candleFreshnessWindow
}

// Get returns a copy of the cached candles.
func (c *CandleCache) Get() []models.Candle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Candle, len(c.candles))
	copy(out, c.candles)
	return out
}

// Set replaces the cache, truncating to the most recent candleCacheCap
// entries and stamping the fetch time.
func (c *CandleCache) Set(candles []models.Candle, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(candles) > candleCacheCap {
		candles = candles[len(candles)-candleCacheCap:]
	}
	c.candles = candles
	c.fetchedAt = now
}
