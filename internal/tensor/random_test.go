package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedSampler float64

func (s fixedSampler) Rand() float64 { return float64(s) }

func TestBelowUpper(t *testing.T) {
	tests := []struct {
		draw  float64
		upper float32
		want  float32
	}{
		{0.5, 1, 0.5},
		{1 - 1e-12, 1, math.Nextafter32(1, 0)},
		{1, 1, math.Nextafter32(1, 0)},
		{2.9999999999, 3, math.Nextafter32(3, 0)},
	}
	for _, tt := range tests {
		got := float32(belowUpper{dist: fixedSampler(tt.draw), upper: tt.upper}.Rand())
		assert.Equal(t, tt.want, got, "draw %v", tt.draw)
		assert.Less(t, got, tt.upper)
	}
}
