package indexmap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDisplay_Reverses(t *testing.T) {
	src := []float64{10, 20, 30}
	got, err := ToDisplay(src)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 20, 10}, got)
	assert.Equal(t, []float64{10, 20, 30}, src, "source must not be mutated")
}

func TestToDisplay_DoubleReversalIsIdentity(t *testing.T) {
	for n := 1; n <= 64; n++ {
		src := make([]int, n)
		for i := range src {
			src[i] = i*7 - 3
		}
		once, err := ToDisplay(src)
		require.NoError(t, err)
		twice, err := ToDisplay(once)
		require.NoError(t, err)
		assert.Equal(t, src, twice, "n=%d", n)
	}
}

func TestSourceIndex_Exhaustive(t *testing.T) {
	for n := 1; n <= 200; n++ {
		seen := make(map[int]bool, n)
		for d := 0; d < n; d++ {
			s, err := SourceIndex(d, n)
			require.NoError(t, err)
			if s+d != n-1 {
				t.Fatalf("n=%d d=%d: source %d + display %d != %d", n, d, s, d, n-1)
			}
			if seen[s] {
				t.Fatalf("n=%d: source index %d produced twice", n, s)
			}
			seen[s] = true
		}
	}
}

func TestSourceIndex_AgreesWithToDisplay(t *testing.T) {
	src := []string{"t4", "t3", "t2", "t1", "t0"}
	disp, err := ToDisplay(src)
	require.NoError(t, err)
	for d := range disp {
		s, err := SourceIndex(d, len(src))
		require.NoError(t, err)
		assert.Equal(t, disp[d], src[s])
	}
}

func TestEmptySeries(t *testing.T) {
	_, err := ToDisplay([]float64{})
	assert.True(t, errors.Is(err, ErrEmptySeries))

	_, err = SourceIndex(0, 0)
	assert.True(t, errors.Is(err, ErrEmptySeries))
}

func TestSourceIndex_OutOfRange(t *testing.T) {
	for _, d := range []int{-1, 3, 100} {
		_, err := SourceIndex(d, 3)
		assert.True(t, errors.Is(err, ErrOutOfRange), "display=%d", d)
	}
}

func TestAt(t *testing.T) {
	src := []float64{10, 20, 30}
	v, ok := At(src, 0, 3)
	assert.True(t, ok)
	assert.Equal(t, 30.0, v)

	v, ok = At(src, 2, 3)
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	_, ok = At(src, 0, 4)
	assert.False(t, ok, "length mismatch must not resolve")

	_, ok = At(src, 3, 3)
	assert.False(t, ok)
}
