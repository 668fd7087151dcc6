package analytics

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService() *Service {
	return NewService(zerolog.Nop())
}

func TestService_Describe(t *testing.T) {
	svc := newService()

	t.Run("empty series", func(t *testing.T) {
		assert.Equal(t, ValueStats{}, svc.Describe(nil))
	})

	t.Run("single value has zero spread", func(t *testing.T) {
		stats := svc.Describe([]float64{42.5})
		assert.Equal(t, 42.5, stats.Mean)
		assert.Equal(t, 0.0, stats.StdDev)
		assert.Equal(t, 42.5, stats.Min)
		assert.Equal(t, 42.5, stats.Max)
	})

	t.Run("known series", func(t *testing.T) {
		stats := svc.Describe([]float64{1, 2, 3, 4})
		assert.InDelta(t, 2.5, stats.Mean, 1e-9)
		assert.InDelta(t, 1.2909944487, stats.StdDev, 1e-9)
		assert.Equal(t, 1.0, stats.Min)
		assert.Equal(t, 4.0, stats.Max)
	})
}

func TestService_Smooth(t *testing.T) {
	svc := newService()

	t.Run("window one passes values through", func(t *testing.T) {
		out := svc.Smooth([]float64{1, 2, 3}, 1)
		require.Len(t, out, 3)
		for i, want := range []float64{1, 2, 3} {
			require.NotNil(t, out[i])
			assert.Equal(t, want, *out[i])
		}
	})

	t.Run("warm-up entries are nil", func(t *testing.T) {
		out := svc.Smooth([]float64{1, 2, 3, 4, 5}, 3)
		require.Len(t, out, 5)
		assert.Nil(t, out[0])
		assert.Nil(t, out[1])
		require.NotNil(t, out[2])
		assert.InDelta(t, 2.0, *out[2], 1e-9)
		require.NotNil(t, out[3])
		assert.InDelta(t, 3.0, *out[3], 1e-9)
		require.NotNil(t, out[4])
		assert.InDelta(t, 4.0, *out[4], 1e-9)
	})

	t.Run("window longer than series smooths nothing", func(t *testing.T) {
		out := svc.Smooth([]float64{1, 2}, 5)
		require.Len(t, out, 2)
		assert.Nil(t, out[0])
		assert.Nil(t, out[1])
	})

	t.Run("empty series", func(t *testing.T) {
		assert.Empty(t, svc.Smooth(nil, 3))
	})
}

func TestService_Drawdown(t *testing.T) {
	svc := newService()

	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"rising", []float64{1, 2, 3}, 0},
		{"single drop", []float64{10, 5, 8, 4}, 0.6},
		{"recovers after trough", []float64{100, 80, 120, 90}, 0.25},
		{"negative values never form a peak", []float64{-5, -2, -10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, svc.Drawdown(tt.values), 1e-9)
		})
	}
}
