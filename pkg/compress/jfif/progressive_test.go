package jfif

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// progressiveStreamBuilder assembles progressive test streams marker by
// marker.
type progressiveStreamBuilder struct {
	buf bytes.Buffer
}

func (b *progressiveStreamBuilder) word(w int) {
	b.buf.WriteByte(byte(w >> 8))
	b.buf.WriteByte(byte(w))
}

func (b *progressiveStreamBuilder) soi() { b.word(MarkerSOI) }
func (b *progressiveStreamBuilder) eoi() { b.word(MarkerEOI) }

func (b *progressiveStreamBuilder) sof2Gray(width, height int) {
	b.word(MarkerSOF2)
	b.word(11)
	b.buf.WriteByte(8)
	b.word(height)
	b.word(width)
	b.buf.WriteByte(1)    // one component
	b.buf.WriteByte(1)    // id
	b.buf.WriteByte(0x11) // 1x1
	b.buf.WriteByte(0)    // quant table 0
}

func (b *progressiveStreamBuilder) dqtUnit() {
	b.word(MarkerDQT)
	b.word(2 + 1 + 64)
	b.buf.WriteByte(0)
	for i := 0; i < 64; i++ {
		b.buf.WriteByte(1)
	}
}

func (b *progressiveStreamBuilder) dht(spec *huffmanSpec, cls byte) {
	b.word(MarkerDHT)
	b.word(2 + 1 + 16 + len(spec.values))
	b.buf.WriteByte(cls)
	for _, c := range spec.count {
		b.buf.WriteByte(c)
	}
	b.buf.Write(spec.values)
}

func (b *progressiveStreamBuilder) sosGray(ss, se, ahal byte, data ...byte) {
	b.word(MarkerSOS)
	b.word(8)
	b.buf.WriteByte(1)
	b.buf.WriteByte(1)    // component id
	b.buf.WriteByte(0x00) // DC table 0, AC table 0
	b.buf.WriteByte(ss)
	b.buf.WriteByte(se)
	b.buf.WriteByte(ahal)
	b.buf.Write(data)
}

// TestProgressive_GrayDCRefineAC decodes a hand-assembled three-scan
// progressive stream: DC first at Al=1, a DC refinement, then the AC band.
// An 8x8 block of the constant value 130 has DC 16 and no AC energy, so
// scan one carries category 4 value 8 ('101' + '1000'), scan two a single
// zero refinement bit, and scan three one EOB ('1010').
func TestProgressive_GrayDCRefineAC(t *testing.T) {
	var b progressiveStreamBuilder
	b.soi()
	b.dqtUnit()
	b.sof2Gray(8, 8)
	b.dht(&stdDCLuma, 0x00)
	b.dht(&stdACLuma, 0x10)
	b.sosGray(0, 0, 0x01, 0xB1)  // DC first, Al=1: 101 1000 + pad
	b.sosGray(0, 0, 0x10, 0x7F)  // DC refine to Al=0: bit 0 + pad
	b.sosGray(1, 63, 0x00, 0xAF) // AC first: EOB 1010 + pad
	b.eoi()

	d := NewDecoder(bytes.NewReader(b.buf.Bytes()))
	require.NoError(t, d.Begin())
	assert.True(t, d.Progressive())
	require.Equal(t, 8, d.Width())
	require.Equal(t, 8, d.Height())

	for y := 0; y < 8; y++ {
		row, err := d.DecodeScanline()
		require.NoError(t, err)
		for x, v := range row {
			assert.Equal(t, byte(130), v, "pixel (%d,%d)", x, y)
		}
	}
}

// TestProgressive_MatchesBaseline encodes the same flat block as baseline
// and expects every decoded pixel within 1 of 130, the value the
// progressive stream above reconstructs.
func TestProgressive_MatchesBaseline(t *testing.T) {
	pix := make([]byte, 8*8)
	for i := range pix {
		pix[i] = 130
	}
	stream := encodeToBytes(t, 8, 8, 1, pix, Params{Quality: 100, Subsampling: YOnly})
	img, err := DecompressFromMemory(stream, 1)
	require.NoError(t, err)

	for i, v := range img.Pix {
		assert.InDelta(t, 130, int(v), 1, "baseline pixel %d", i)
	}
}

// TestProgressive_ACSpectralBand checks a nonzero AC coefficient delivered
// through an AC-first scan. Coefficient (0,1) = 12 at Al=0 is category 4
// with run 0: symbol 0x04 ('1011'), value bits '1100'.
func TestProgressive_ACSpectralBand(t *testing.T) {
	var b progressiveStreamBuilder
	b.soi()
	b.dqtUnit()
	b.sof2Gray(8, 8)
	b.dht(&stdDCLuma, 0x00)
	b.dht(&stdACLuma, 0x10)
	b.sosGray(0, 0, 0x00, 0xB1)        // DC first, Al=0: value 8 -> DC 8
	b.sosGray(1, 63, 0x00, 0xBC, 0xAF) // AC: 1011 1100 then EOB 1010 + pad
	b.eoi()

	d := NewDecoder(bytes.NewReader(b.buf.Bytes()))
	require.NoError(t, d.Begin())

	// Reference reconstruction through the codec's own transform.
	var blk [64]int32
	blk[0] = 8
	blk[1] = 12
	var want [64]byte
	idct(&blk, want[:], 8)

	for y := 0; y < 8; y++ {
		row, err := d.DecodeScanline()
		require.NoError(t, err)
		for x := 0; x < 8; x++ {
			assert.Equal(t, want[y*8+x], row[x], "pixel (%d,%d)", x, y)
		}
	}
}

// TestProgressive_EOBRunSkipsBlocks covers the EOB-run path: a 16x8 gray
// image has two blocks; an AC scan encoding EOB2 (symbol 0x10, one extra
// bit 0) must leave both blocks AC-free. The default AC table carries no
// EOBn symbols, so the scan installs a three-symbol table of its own:
// 0x00 -> '0', 0x10 -> '10', 0x04 -> '11'.
func TestProgressive_EOBRunSkipsBlocks(t *testing.T) {
	acSpec := huffmanSpec{
		count:  [16]byte{1, 2},
		values: []byte{0x00, 0x10, 0x04},
	}

	var b progressiveStreamBuilder
	b.soi()
	b.dqtUnit()
	b.sof2Gray(16, 8)
	b.dht(&stdDCLuma, 0x00)
	b.dht(&acSpec, 0x10)
	// DC first, Al=0: block one: cat 4 '101' value 8 '1000'; block two:
	// diff 0 -> cat 0 '00'. Bits: 1011000 00 + pad -> 0xB0 0x7F.
	b.sosGray(0, 0, 0x00, 0xB0, 0x7F)
	// AC first: EOBRUN of 2 = symbol 0x10 code '10' + 1 extra bit '0'.
	b.sosGray(1, 63, 0x00, 0x9F)
	b.eoi()

	d := NewDecoder(bytes.NewReader(b.buf.Bytes()))
	require.NoError(t, d.Begin())
	// DC of 8 reconstructs to 128 + 8/8 = 129 in both blocks.
	for y := 0; y < 8; y++ {
		row, err := d.DecodeScanline()
		require.NoError(t, err)
		for x := 0; x < 16; x++ {
			assert.Equal(t, byte(129), row[x], "pixel (%d,%d)", x, y)
		}
	}
}
