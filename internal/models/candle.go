// Package models provides the shared domain types for the grid-hedging
// trading engine: candles, grid positions, session state, and the
// configuration surface a session is registered with.
package models

import "time"

// Candle represents a single OHLCV bar aligned to a session's timeframe
// boundary. Sequences are ordered by Timestamp ascending.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TypicalPrice returns (H+L+C)/3, the input to CCI.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// WeightedPrice returns (H+L+2C)/4, the input to LWMA.
func (c Candle) WeightedPrice() float64 {
	return (c.High + c.Low + 2*c.Close) / 4
}

// Ticker is the latest traded price for a symbol.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
