package valueobjects

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPosition(t *testing.T) {
	tests := []struct {
		name    string
		x, y    float64
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid position at origin",
			x:       0,
			y:       0,
			wantErr: false,
		},
		{
			name:    "valid positive position",
			x:       100.5,
			y:       200.75,
			wantErr: false,
		},
		{
			name:    "valid negative position",
			x:       -100.5,
			y:       -200.75,
			wantErr: false,
		},
		{
			name:    "very large coordinates",
			x:       1e10,
			y:       -1e10,
			wantErr: false,
		},
		{
			name:    "NaN x coordinate",
			x:       math.NaN(),
			y:       0,
			wantErr: true,
			errMsg:  "invalid coordinates",
		},
		{
			name:    "NaN y coordinate",
			x:       0,
			y:       math.NaN(),
			wantErr: true,
			errMsg:  "invalid coordinates",
		},
		{
			name:    "positive infinity",
			x:       math.Inf(1),
			y:       0,
			wantErr: true,
			errMsg:  "invalid coordinates",
		},
		{
			name:    "negative infinity",
			x:       0,
			y:       math.Inf(-1),
			wantErr: true,
			errMsg:  "invalid coordinates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, err := NewPosition(tt.x, tt.y)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.x, pos.X())
				assert.Equal(t, tt.y, pos.Y())
			}
		})
	}
}

func TestPosition_DistanceTo(t *testing.T) {
	tests := []struct {
		name     string
		from     [2]float64
		to       [2]float64
		expected float64
	}{
		{
			name:     "distance to self is zero",
			from:     [2]float64{10, 20},
			to:       [2]float64{10, 20},
			expected: 0,
		},
		{
			name:     "classic 3-4-5 triangle",
			from:     [2]float64{0, 0},
			to:       [2]float64{3, 4},
			expected: 5,
		},
		{
			name:     "negative coordinates",
			from:     [2]float64{-3, -4},
			to:       [2]float64{0, 0},
			expected: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, err := NewPosition(tt.from[0], tt.from[1])
			require.NoError(t, err)
			to, err := NewPosition(tt.to[0], tt.to[1])
			require.NoError(t, err)

			assert.InDelta(t, tt.expected, from.DistanceTo(to), 1e-9)
		})
	}
}

func TestPosition_Equals(t *testing.T) {
	base, err := NewPosition(10, 20)
	require.NoError(t, err)

	tests := []struct {
		name     string
		other    [2]float64
		expected bool
	}{
		{
			name:     "identical coordinates",
			other:    [2]float64{10, 20},
			expected: true,
		},
		{
			name:     "within epsilon",
			other:    [2]float64{10 + 1e-12, 20 - 1e-12},
			expected: true,
		},
		{
			name:     "clearly different",
			other:    [2]float64{10.001, 20},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other, err := NewPosition(tt.other[0], tt.other[1])
			require.NoError(t, err)

			assert.Equal(t, tt.expected, base.Equals(other))
		})
	}
}

func TestPosition_Translate(t *testing.T) {
	pos, err := NewPosition(10, 20)
	require.NoError(t, err)

	moved, err := pos.Translate(5, -30)
	require.NoError(t, err)

	assert.Equal(t, 15.0, moved.X())
	assert.Equal(t, -10.0, moved.Y())

	// Original is unchanged, Position is a value object
	assert.Equal(t, 10.0, pos.X())
	assert.Equal(t, 20.0, pos.Y())

	_, err = pos.Translate(math.Inf(1), 0)
	assert.Error(t, err)
}

func BenchmarkPosition_DistanceTo(b *testing.B) {
	p1, _ := NewPosition(0, 0)
	p2, _ := NewPosition(100, 200)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p1.DistanceTo(p2)
	}
}
