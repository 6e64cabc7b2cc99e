package jfif

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dequantize expands a zig-zag quantized block back to a natural-order
// coefficient block.
func dequantize(coef *[64]int16, qt *[64]int32) [64]int32 {
	var blk [64]int32
	for i := 0; i < 64; i++ {
		n := zigzag[i]
		blk[n] = int32(coef[i]) * qt[n]
	}
	return blk
}

func TestFDCT_FlatBlock(t *testing.T) {
	var blk [64]int32
	for i := range blk {
		blk[i] = 37 // level-shifted constant
	}
	fdct(&blk)

	assert.Equal(t, int32(37*8), blk[0], "DC must be 8x the mean")
	for i := 1; i < 64; i++ {
		assert.Equal(t, int32(0), blk[i], "AC %d of a flat block", i)
	}
}

func TestFDCT_MidGrayIsAllZero(t *testing.T) {
	// A mid-gray block (128 before level shift) quantizes to nothing at any
	// quality.
	var blk [64]int32
	fdct(&blk)

	var qt [64]int32
	scaleQuantTable(&qt, &stdLumaQuant, 100)
	var coef [64]int16
	quantizeBlock(&blk, &qt, &coef)
	for i := 0; i < 64; i++ {
		assert.Equal(t, int16(0), coef[i])
	}
}

func TestQuantTable_Quality100IsUnit(t *testing.T) {
	var qt [64]int32
	scaleQuantTable(&qt, &stdLumaQuant, 100)
	for i := 0; i < 64; i++ {
		require.Equal(t, int32(1), qt[i])
	}
}

func TestQuantTable_ScaleSpotValues(t *testing.T) {
	tests := []struct {
		quality int
		dc      int32 // expected scaled value of ref 16 (luma DC)
	}{
		{1, 255}, // 5000/1 -> clamped
		{25, 32}, // scale 200: (16*200+50)/100
		{50, 16}, // scale 100
		{75, 8},  // scale 50
		{100, 1}, // scale 0 -> clamped up
	}
	for _, tt := range tests {
		var qt [64]int32
		scaleQuantTable(&qt, &stdLumaQuant, tt.quality)
		assert.Equal(t, tt.dc, qt[0], "quality %d", tt.quality)
	}
}

func TestDCT_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	var unitQT [64]int32
	for i := range unitQT {
		unitQT[i] = 1
	}

	tests := []struct {
		name   string
		gen    func(i int) int32
		maxErr int32
	}{
		{"flat 200", func(i int) int32 { return 200 }, 1},
		{"horizontal ramp", func(i int) int32 { return int32((i % 8) * 30) }, 2},
		{"vertical ramp", func(i int) int32 { return int32((i / 8) * 30) }, 2},
		{"checkerboard", func(i int) int32 { return int32(((i + i/8) % 2) * 255) }, 2},
		{"noise", func(i int) int32 { return int32(rng.Intn(256)) }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var src [64]int32
			var blk [64]int32
			for i := 0; i < 64; i++ {
				src[i] = tt.gen(i)
				blk[i] = src[i] - 128
			}
			fdct(&blk)

			var coef [64]int16
			quantizeBlock(&blk, &unitQT, &coef)
			deq := dequantize(&coef, &unitQT)

			var out [64]byte
			idct(&deq, out[:], 8)

			for i := 0; i < 64; i++ {
				diff := int32(out[i]) - src[i]
				if diff < 0 {
					diff = -diff
				}
				require.LessOrEqual(t, diff, tt.maxErr,
					"sample %d: got %d want %d", i, out[i], src[i])
			}
		})
	}
}

func TestIDCT_DCOnly(t *testing.T) {
	var blk [64]int32
	blk[0] = 16 // dequantized DC

	var out [64]byte
	idct(&blk, out[:], 8)
	for i := 0; i < 64; i++ {
		assert.Equal(t, byte(130), out[i])
	}
}
