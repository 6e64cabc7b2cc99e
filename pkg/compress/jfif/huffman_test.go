package jfif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuffCodeTable_Canonical(t *testing.T) {
	var tbl huffCodeTable
	tbl.build(&stdDCLuma)

	// T.81 Annex K canonical codes for the default luma DC table.
	tests := []struct {
		symbol byte
		code   uint32
		size   byte
	}{
		{0, 0b00, 2},
		{1, 0b010, 3},
		{2, 0b011, 3},
		{3, 0b100, 3},
		{4, 0b101, 3},
		{5, 0b110, 3},
		{6, 0b1110, 4},
		{7, 0b11110, 5},
		{8, 0b111110, 6},
		{9, 0b1111110, 7},
		{10, 0b11111110, 8},
		{11, 0b111111110, 9},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, tbl.codes[tt.symbol], "symbol %d code", tt.symbol)
		assert.Equal(t, tt.size, tbl.sizes[tt.symbol], "symbol %d size", tt.symbol)
	}
}

func specInvariants(t *testing.T, spec *huffmanSpec) {
	t.Helper()
	total := 0
	code := 0
	for l := 1; l <= 16; l++ {
		n := int(spec.count[l-1])
		total += n
		code += n
		require.LessOrEqual(t, code, 1<<l, "code space overflow at length %d", l)
		code <<= 1
	}
	require.Equal(t, total, len(spec.values), "count sum must match value count")
}

func TestDefaultSpecs_Invariants(t *testing.T) {
	for name, spec := range map[string]*huffmanSpec{
		"dc-luma":   &stdDCLuma,
		"dc-chroma": &stdDCChroma,
		"ac-luma":   &stdACLuma,
		"ac-chroma": &stdACChroma,
	} {
		t.Run(name, func(t *testing.T) {
			specInvariants(t, spec)
		})
	}
}

func TestOptimizeHuffmanSpec(t *testing.T) {
	tests := []struct {
		name string
		fill func(f *[257]uint32)
	}{
		{
			name: "two symbols",
			fill: func(f *[257]uint32) {
				f[0] = 10
				f[1] = 1
			},
		},
		{
			name: "skewed",
			fill: func(f *[257]uint32) {
				for i := 0; i < 16; i++ {
					f[i] = uint32(1 << uint(i))
				}
			},
		},
		{
			name: "uniform wide",
			fill: func(f *[257]uint32) {
				for i := 0; i < 256; i++ {
					f[i] = 7
				}
			},
		},
		{
			name: "deep tree forced",
			fill: func(f *[257]uint32) {
				// Fibonacci-ish frequencies produce maximally skewed trees,
				// exercising the 16-bit length limiter.
				a, b := uint32(1), uint32(1)
				for i := 0; i < 40; i++ {
					f[i] = a
					a, b = b, a+b
					if a > 1<<28 {
						a, b = 1, 1
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var freq [257]uint32
			tt.fill(&freq)

			expected := 0
			for i := 0; i < 256; i++ {
				if freq[i] != 0 {
					expected++
				}
			}

			spec := optimizeHuffmanSpec(&freq)
			specInvariants(t, &spec)
			assert.Equal(t, expected, len(spec.values), "every used symbol needs a code")

			maxLen := 0
			for l := 16; l >= 1; l-- {
				if spec.count[l-1] != 0 {
					maxLen = l
					break
				}
			}
			assert.LessOrEqual(t, maxLen, 16)

			// The derived code table must round-trip through the decoder
			// tables.
			var enc huffCodeTable
			enc.build(&spec)
			dec, err := buildHuffTable(&spec.count, spec.values, false)
			require.NoError(t, err)
			for _, sym := range spec.values {
				size := int(enc.sizes[sym])
				require.Positive(t, size)
				window := enc.codes[sym] << uint(16-size)
				got, n := dec.decode(window)
				assert.Equal(t, sym, got)
				assert.Equal(t, size, n)
			}
		})
	}
}

func TestBuildHuffTable_Rejects(t *testing.T) {
	var count [16]byte
	_, err := buildHuffTable(&count, nil, false)
	assert.ErrorIs(t, err, StatusBadDHTCounts)

	count[0] = 3 // three codes of length 1 cannot exist
	_, err = buildHuffTable(&count, []byte{1, 2, 3}, false)
	assert.ErrorIs(t, err, StatusBadDHTCounts)
}

func TestBuildHuffTable_DecodesDefaults(t *testing.T) {
	for name, spec := range map[string]*huffmanSpec{
		"dc-luma":  &stdDCLuma,
		"ac-luma":  &stdACLuma,
		"ac-chrom": &stdACChroma,
	} {
		t.Run(name, func(t *testing.T) {
			var enc huffCodeTable
			enc.build(spec)
			dec, err := buildHuffTable(&spec.count, spec.values, true)
			require.NoError(t, err)

			for _, sym := range spec.values {
				size := int(enc.sizes[sym])
				window := enc.codes[sym] << uint(16-size)
				got, n := dec.decode(window)
				require.Equal(t, sym, got, "symbol 0x%02X", sym)
				require.Equal(t, size, n, "symbol 0x%02X length", sym)
			}
		})
	}
}
