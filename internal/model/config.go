package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidConfig marks an indicator configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid indicator config")

// IndicatorConfig holds the per-symbol indicator parameters. Periods are in
// hours and are scaled to bars by the chart interval (see ScalePeriod).
type IndicatorConfig struct {
	CCIPeriod1 int `json:"cci_period1"`
	CCIPeriod2 int `json:"cci_period2"`
	CCIPeriod3 int `json:"cci_period3"`

	MACDFast1   int     `json:"macd_fast1"`
	MACDSlow1   int     `json:"macd_slow1"`
	MACDSignal1 int     `json:"macd_signal1"`
	MACDFast2   int     `json:"macd_fast2"`
	MACDSlow2   int     `json:"macd_slow2"`
	MACDSignal2 int     `json:"macd_signal2"`
	MACDN1      float64 `json:"macd_n1"`
	MACDN2      float64 `json:"macd_n2"`

	RSIPeriod1 int `json:"rsi_period1"`
	RSIPeriod2 int `json:"rsi_period2"`

	BollPeriod    int     `json:"boll_period"`
	BollDeviation float64 `json:"boll_deviation"`

	EnvPeriod    int     `json:"env_period"`
	EnvDeviation float64 `json:"env_deviation"`
}

// DefaultIndicatorConfig returns the stock parameter set.
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{
		CCIPeriod1: 48,
		CCIPeriod2: 72,
		CCIPeriod3: 168,

		MACDFast1:   48,
		MACDSlow1:   72,
		MACDSignal1: 2,
		MACDFast2:   72,
		MACDSlow2:   168,
		MACDSignal2: 2,
		MACDN1:      2000,
		MACDN2:      1000,

		RSIPeriod1: 48,
		RSIPeriod2: 72,

		BollPeriod:    24,
		BollDeviation: 2.0,

		EnvPeriod:    24,
		EnvDeviation: 2.28,
	}
}

// Validate checks that every period is positive and both deviations are
// positive.
func (c IndicatorConfig) Validate() error {
	periods := []struct {
		name string
		v    int
	}{
		{"cci_period1", c.CCIPeriod1},
		{"cci_period2", c.CCIPeriod2},
		{"cci_period3", c.CCIPeriod3},
		{"macd_fast1", c.MACDFast1},
		{"macd_slow1", c.MACDSlow1},
		{"macd_signal1", c.MACDSignal1},
		{"macd_fast2", c.MACDFast2},
		{"macd_slow2", c.MACDSlow2},
		{"macd_signal2", c.MACDSignal2},
		{"rsi_period1", c.RSIPeriod1},
		{"rsi_period2", c.RSIPeriod2},
		{"boll_period", c.BollPeriod},
		{"env_period", c.EnvPeriod},
	}
	for _, p := range periods {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.v)
		}
	}
	if c.BollDeviation <= 0 {
		return fmt.Errorf("%w: boll_deviation must be positive, got %g", ErrInvalidConfig, c.BollDeviation)
	}
	if c.EnvDeviation <= 0 {
		return fmt.Errorf("%w: env_deviation must be positive, got %g", ErrInvalidConfig, c.EnvDeviation)
	}
	return nil
}

// Merge applies a partial JSON update on top of c. Unknown keys are ignored;
// a value of the wrong type fails with ErrInvalidConfig.
func (c IndicatorConfig) Merge(patch []byte) (IndicatorConfig, error) {
	out := c
	if err := json.Unmarshal(patch, &out); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return out, nil
}
