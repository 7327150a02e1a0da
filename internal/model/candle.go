package model

import (
	"encoding/json"
	"time"
)

// Candle is one OHLCV bar of a symbol at a fixed interval.
type Candle struct {
	Time   time.Time `json:"time"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// HLCC returns the typical price (high+low+close)/3 the indicators run on.
func (c *Candle) HLCC() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// JSON returns the JSON-encoded candle (ignoring errors for stream writes).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Reverse returns a copy of candles in the opposite order.
func Reverse(candles []Candle) []Candle {
	out := make([]Candle, len(candles))
	for i := range candles {
		out[len(candles)-1-i] = candles[i]
	}
	return out
}

// Bar is a closed candle tagged with the series it belongs to.
type Bar struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Candle
}

// Key returns the "symbol|interval" topic of the bar.
func (b Bar) Key() string { return TopicKey(b.Symbol, b.Interval) }

// TopicKey joins a symbol and interval into the "symbol|interval" form used
// for stream subscriptions.
func TopicKey(symbol, interval string) string { return symbol + "|" + interval }

// Trade is the most recent exchange trade of a symbol.
type Trade struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}
