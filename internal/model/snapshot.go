package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedSnapshot marks a snapshot that cannot be rendered (no candles).
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Oscillator family names as they appear on the wire.
const (
	FamilyCCI  = "cci"
	FamilyMACD = "macd"
	FamilyRSI  = "rsi"
)

// Band family names.
const (
	BandBollinger = "bollinger"
	BandEnvelope  = "envelope"
)

// MACD component keys.
const (
	ComponentMACDLine   = "macd_line"
	ComponentSignalLine = "signal_line"
	ComponentHistogram  = "histogram"
)

// Band is a three-line volatility envelope. Zone is the producer's
// classification of the newest price against the newest band point.
type Band struct {
	Upper  Values `json:"upper"`
	Middle Values `json:"middle"`
	Lower  Values `json:"lower"`
	Zone   int    `json:"zone"`
}

// UnmarshalJSON decodes each line independently; a line of the wrong shape is
// left nil instead of failing the snapshot.
func (b *Band) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*b = Band{}
		return nil
	}
	var out Band
	decodeLine := func(key string, dst *Values) {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				*dst = nil
			}
		}
	}
	decodeLine("upper", &out.Upper)
	decodeLine("middle", &out.Middle)
	decodeLine("lower", &out.Lower)
	if v, ok := raw["zone"]; ok {
		_ = json.Unmarshal(v, &out.Zone)
	}
	*b = out
	return nil
}

// NamedBand pairs a band with its family name and display label.
type NamedBand struct {
	Name  string
	Label string
	Band  *Band
}

// Snapshot is one complete update for a symbol/interval. Candles and every
// indicator array are newest-first: index 0 is the most recent bar.
// A published snapshot is never mutated.
type Snapshot struct {
	Symbol     string    `json:"symbol"`
	Interval   string    `json:"interval,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`
	Candles    []Candle  `json:"klines"`
	CCI        Family    `json:"cci,omitempty"`
	MACD       Family    `json:"macd,omitempty"`
	RSI        Family    `json:"rsi,omitempty"`
	Bollinger  *Band     `json:"bollinger,omitempty"`
	Envelope   *Band     `json:"envelope,omitempty"`
	Volatility float64   `json:"volatility"`
}

// Decode parses one wire message into a Snapshot. Structural JSON errors fail;
// malformed indicator entries are kept raw and resolved lazily by Family.Series.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("model: decode snapshot: %w", err)
	}
	return &s, nil
}

// Validate reports ErrMalformedSnapshot when the snapshot has no candles.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrMalformedSnapshot)
	}
	if len(s.Candles) == 0 {
		return fmt.Errorf("%w: empty candle list", ErrMalformedSnapshot)
	}
	return nil
}

// Len returns the candle count N every array in the snapshot should match.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candles)
}

// Family returns the oscillator family by wire name, or nil.
func (s *Snapshot) Family(name string) Family {
	switch name {
	case FamilyCCI:
		return s.CCI
	case FamilyMACD:
		return s.MACD
	case FamilyRSI:
		return s.RSI
	}
	return nil
}

// BandFamilies returns the present band families in a fixed order.
func (s *Snapshot) BandFamilies() []NamedBand {
	var out []NamedBand
	if s.Bollinger != nil {
		out = append(out, NamedBand{Name: BandBollinger, Label: "BOLL", Band: s.Bollinger})
	}
	if s.Envelope != nil {
		out = append(out, NamedBand{Name: BandEnvelope, Label: "ENV", Band: s.Envelope})
	}
	return out
}

// Band returns the band family by wire name, or nil.
func (s *Snapshot) Band(name string) *Band {
	switch name {
	case BandBollinger:
		return s.Bollinger
	case BandEnvelope:
		return s.Envelope
	}
	return nil
}

// LivePrice returns the last-trade price when the snapshot carries one.
func (s *Snapshot) LivePrice() (float64, bool) {
	if s == nil || math.IsNaN(s.Price) || math.IsInf(s.Price, 0) || s.Price <= 0 {
		return 0, false
	}
	return s.Price, true
}
