package binance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-dashboardv1/internal/model"
)

type fakeTail map[string]time.Time

func (f fakeTail) LastTime(_ context.Context, symbol, interval string) (time.Time, bool, error) {
	t, ok := f[model.TopicKey(symbol, interval)]
	return t, ok, nil
}

func newTestSource(t *testing.T) (*Source, *klineServer) {
	t.Helper()
	ks := newKlineServer(t, marketNow, time.Hour)
	src, err := NewSource(newTestClient(t, ks), []string{"BTCUSDT", "ETHUSDT"}, []string{"1h"},
		func(string) int { return 3 }, quiet)
	require.NoError(t, err)
	return src, ks
}

func TestSource_CatchUpResumesStoredSeries(t *testing.T) {
	src, _ := newTestSource(t)
	ctx := context.Background()
	require.NoError(t, src.Prime(ctx, fakeTail{"BTCUSDT|1h": time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)}))

	got := map[string][]time.Time{}
	sink := func(_ context.Context, bars []model.Bar) error {
		for _, b := range bars {
			got[b.Key()] = append(got[b.Key()], b.Time)
		}
		return nil
	}
	n, err := src.CatchUp(ctx, sink)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	h := func(hour int) time.Time { return time.Date(2024, 6, 1, hour, 0, 0, 0, time.UTC) }
	assert.Equal(t, []time.Time{h(8), h(9)}, got["BTCUSDT|1h"])
	assert.Equal(t, []time.Time{h(7), h(8), h(9)}, got["ETHUSDT|1h"], "empty series takes the depth")

	n, err = src.CatchUp(ctx, sink)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing closed since")
}

func TestSource_AcceptDropsDuplicates(t *testing.T) {
	src, _ := newTestSource(t)
	bar := func(hour int) model.Bar {
		return model.Bar{Symbol: "BTCUSDT", Interval: "1h", Candle: model.Candle{Time: time.Date(2024, 6, 1, hour, 0, 0, 0, time.UTC)}}
	}
	assert.True(t, src.Accept(bar(9)))
	assert.False(t, src.Accept(bar(9)))
	assert.False(t, src.Accept(bar(8)))
	assert.True(t, src.Accept(bar(10)))

	pos, ok := src.Position("BTCUSDT", "1h")
	require.True(t, ok)
	assert.Equal(t, 10, pos.Hour())
}

func TestSource_FailedSinkRewinds(t *testing.T) {
	src, _ := newTestSource(t)
	ctx := context.Background()

	_, err := src.CatchUp(ctx, func(context.Context, []model.Bar) error { return errors.New("disk full") })
	assert.ErrorContains(t, err, "disk full")
	_, ok := src.Position("BTCUSDT", "1h")
	assert.False(t, ok, "position rewound")

	n, err := src.CatchUp(ctx, func(context.Context, []model.Bar) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 6, n, "both series retried")
}

func TestNewSource_RejectsInterval(t *testing.T) {
	_, err := NewSource(nil, []string{"BTCUSDT"}, []string{"7m"}, func(string) int { return 1 }, quiet)
	assert.Error(t, err)
}
