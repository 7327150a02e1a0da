package gateway

import (
	"time"

	"indicator-dashboardv1/internal/model"
)

// CandleOut is the REST response row for /api/candles.
type CandleOut struct {
	TS     string  `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func candleOut(c model.Candle) CandleOut {
	return CandleOut{
		TS:     c.Time.UTC().Format(time.RFC3339),
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
	}
}

// errorOut is the body of every non-2xx JSON response.
type errorOut struct {
	Error string `json:"error"`
}
