package snapshot

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-dashboardv1/internal/chart/zone"
	"indicator-dashboardv1/internal/model"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// history returns n oldest-first hourly candles following a slow sine.
func history(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		mid := 100 + 10*math.Sin(float64(i)/12)
		out[i] = model.Candle{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   mid - 0.5,
			High:   mid + 1,
			Low:    mid - 1,
			Close:  mid + 0.5,
			Volume: float64(i),
		}
	}
	return out
}

func newBuilder() *Builder {
	b := NewBuilder()
	b.now = func() time.Time { return t0.Add(200 * time.Hour) }
	return b
}

func TestBuild_FullHistory(t *testing.T) {
	candles := history(184)
	snap, err := newBuilder().Build("BTCUSDT", "1h", candles, model.DefaultIndicatorConfig())
	require.NoError(t, err)

	n := len(candles)
	require.Equal(t, n, snap.Len())
	assert.Equal(t, candles[n-1].Time, snap.Candles[0].Time, "newest first")
	assert.Equal(t, candles[n-1].Close, snap.Price)
	assert.Equal(t, "1h", snap.Interval)
	assert.Equal(t, t0.Add(200*time.Hour), snap.Timestamp)

	assert.Equal(t, []string{"48", "72", "168"}, snap.CCI.Keys())
	assert.Equal(t, []string{"48", "72"}, snap.RSI.Keys())
	assert.Equal(t, []string{"48_72", "72_168"}, snap.MACD.Keys())

	for _, k := range snap.CCI.Keys() {
		v, ok := snap.CCI.Series(k, "")
		require.True(t, ok, k)
		assert.Len(t, v, n, k)
	}
	for _, c := range []string{model.ComponentMACDLine, model.ComponentSignalLine, model.ComponentHistogram} {
		v, ok := snap.MACD.Series("72_168", c)
		require.True(t, ok, c)
		assert.Len(t, v, n, c)
	}

	require.NotNil(t, snap.Bollinger)
	require.NotNil(t, snap.Envelope)
	b := snap.Bollinger
	assert.Equal(t, zone.Classify(snap.Price, b.Middle[0], b.Upper[0], b.Lower[0]), b.Zone)
	assert.Greater(t, b.Upper[0], b.Middle[0])
	assert.Less(t, b.Lower[0], b.Middle[0])

	// Seven whole days of hourly data leave five complete days before today.
	assert.Greater(t, snap.Volatility, 0.0)
}

func TestBuild_ScalesPeriodsByInterval(t *testing.T) {
	// On 4h bars the 168h CCI needs 42 bars; 60 bars is enough.
	snap, err := newBuilder().Build("ETHUSDT", "4h", history(60), model.DefaultIndicatorConfig())
	require.NoError(t, err)
	v, ok := snap.CCI.Series("168", "")
	require.True(t, ok)
	assert.Len(t, v, 60)
}

func TestBuild_ShortHistory(t *testing.T) {
	snap, err := newBuilder().Build("BTCUSDT", "1h", history(10), model.DefaultIndicatorConfig())
	require.NoError(t, err)

	v, ok := snap.CCI.Series("48", "")
	require.True(t, ok, "too-short series stays present as an empty array")
	assert.Empty(t, v)
	assert.Nil(t, snap.Bollinger)
	assert.Nil(t, snap.Envelope)
	assert.Zero(t, snap.Volatility)
}

func TestBuild_WireCompatible(t *testing.T) {
	snap, err := newBuilder().Build("BTCUSDT", "1h", history(100), model.DefaultIndicatorConfig())
	require.NoError(t, err)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	got, err := model.Decode(data)
	require.NoError(t, err)
	require.NoError(t, got.Validate())
	assert.Equal(t, snap.Len(), got.Len())
	assert.Equal(t, snap.Bollinger.Zone, got.Bollinger.Zone)
	line, ok := got.MACD.Series("48_72", model.ComponentMACDLine)
	require.True(t, ok)
	assert.Len(t, line, 100)
}

func TestBuild_Errors(t *testing.T) {
	b := newBuilder()
	_, err := b.Build("BTCUSDT", "1h", nil, model.DefaultIndicatorConfig())
	assert.ErrorIs(t, err, ErrNoCandles)

	_, err = b.Build("BTCUSDT", "1x", history(5), model.DefaultIndicatorConfig())
	assert.Error(t, err)

	cfg := model.DefaultIndicatorConfig()
	cfg.BollPeriod = 0
	_, err = b.Build("BTCUSDT", "1h", history(5), cfg)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
}
