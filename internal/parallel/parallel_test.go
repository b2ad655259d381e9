package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRanges(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		n    int
		want [][2]int
	}{
		{"empty", Config{Workers: 4}, 0, nil},
		{"inline", Config{Workers: 1}, 5, [][2]int{{0, 5}}},
		{"even", Config{Workers: 2}, 4, [][2]int{{0, 2}, {2, 4}}},
		{"uneven", Config{Workers: 3}, 7, [][2]int{{0, 3}, {3, 6}, {6, 7}}},
		{"min chunk", Config{Workers: 8, MinChunk: 4}, 10, [][2]int{{0, 4}, {4, 8}, {8, 10}}},
		{"zero workers", Config{}, 3, [][2]int{{0, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Ranges(tt.n))
		})
	}
}

func TestFor_VisitsEveryIndexOnce(t *testing.T) {
	const n = 1000
	hits := make([]int32, n)
	var calls int32
	For(n, Config{Workers: 7}, func(lo, hi int) {
		atomic.AddInt32(&calls, 1)
		for i := lo; i < hi; i++ {
			hits[i]++
		}
	})
	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}
	assert.Equal(t, int32(7), calls)
}

func TestFor_Empty(t *testing.T) {
	For(0, DefaultConfig(), func(_, _ int) { t.Fatal("called for empty range") })
}
