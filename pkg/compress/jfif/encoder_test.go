package jfif

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeToBytes(t *testing.T, width, height, channels int, pix []byte, p Params) []byte {
	t.Helper()
	var buf bytes.Buffer
	e, err := NewEncoder(&buf, width, height, channels, p)
	require.NoError(t, err)
	rowLen := width * channels
	for pass := 0; pass < e.TotalPasses(); pass++ {
		for y := 0; y < height; y++ {
			require.NoError(t, e.ProcessScanline(pix[y*rowLen:(y+1)*rowLen]))
		}
	}
	return buf.Bytes()
}

func TestParams_Check(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		ok   bool
	}{
		{"defaults", DefaultParams(), true},
		{"min quality", Params{Quality: 1, Subsampling: H1V1}, true},
		{"zero quality", Params{Quality: 0}, false},
		{"quality over", Params{Quality: 101}, false},
		{"bad subsampling", Params{Quality: 50, Subsampling: Subsampling(9)}, false},
		{"restart too large", Params{Quality: 50, RestartInterval: 70000}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Check()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestEncode_OnePixelRed(t *testing.T) {
	pix := []byte{255, 0, 0}
	stream := encodeToBytes(t, 1, 1, 3, pix, Params{Quality: 75, Subsampling: H2V2})

	// JFIF preamble and EOI trailer.
	prefix := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	require.True(t, bytes.HasPrefix(stream, prefix), "stream must start with SOI + JFIF APP0")
	require.True(t, bytes.HasSuffix(stream, []byte{0xFF, 0xD9}), "stream must end with EOI")

	img, err := DecompressFromMemory(stream, 3)
	require.NoError(t, err)
	require.Equal(t, 1, img.Width)
	require.Equal(t, 1, img.Height)

	assert.InDelta(t, 255, int(img.Pix[0]), 3, "R")
	assert.InDelta(t, 0, int(img.Pix[1]), 3, "G")
	assert.InDelta(t, 0, int(img.Pix[2]), 3, "B")
}

func TestEncode_MidGrayLossless(t *testing.T) {
	pix := make([]byte, 8*8)
	for i := range pix {
		pix[i] = 128
	}
	stream := encodeToBytes(t, 8, 8, 1, pix, Params{Quality: 100, Subsampling: YOnly})

	img, err := DecompressFromMemory(stream, 1)
	require.NoError(t, err)
	for i, v := range img.Pix {
		assert.InDelta(t, 128, int(v), 1, "pixel %d", i)
	}
}

func TestEncode_EdgePaddingDoesNotLeak(t *testing.T) {
	// 17x3 forces one padded column block and 13 padded rows at H2V2.
	const w, h = 17, 3
	pix := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		pix[i*3+0] = 200
		pix[i*3+1] = 30
		pix[i*3+2] = 60
	}
	stream := encodeToBytes(t, w, h, 3, pix, Params{Quality: 90, Subsampling: H2V2})

	img, err := DecompressFromMemory(stream, 3)
	require.NoError(t, err)
	for i := 0; i < w*h; i++ {
		for c := 0; c < 3; c++ {
			assert.InDelta(t, int(pix[i*3+c]), int(img.Pix[i*3+c]), 5,
				"pixel %d channel %d", i, c)
		}
	}
}

func TestEncode_Deterministic(t *testing.T) {
	pix := gradientRGB(33, 21)
	for _, optimize := range []bool{false, true} {
		p := Params{Quality: 60, Subsampling: H2V1, TwoPass: optimize}
		a := encodeToBytes(t, 33, 21, 3, pix, p)
		b := encodeToBytes(t, 33, 21, 3, pix, p)
		assert.Equal(t, a, b, "optimize=%v must be byte-for-byte reproducible", optimize)
	}
}

func TestEncode_OptimizedIsSmallerOrEqual(t *testing.T) {
	pix := gradientRGB(64, 64)
	plain := encodeToBytes(t, 64, 64, 3, pix, Params{Quality: 80, Subsampling: H2V2})
	opt := encodeToBytes(t, 64, 64, 3, pix, Params{Quality: 80, Subsampling: H2V2, TwoPass: true})
	assert.LessOrEqual(t, len(opt), len(plain))
}

func TestCompressToMemory_MatchesFile(t *testing.T) {
	pix := gradientRGB(40, 17)
	p := Params{Quality: 70, Subsampling: H2V2}

	buf := make([]byte, 64*1024)
	n, err := CompressToMemory(buf, 40, 17, 3, pix, p)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.jpg")
	require.NoError(t, CompressToFile(path, 40, 17, 3, pix, p))
	fileBytes, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, fileBytes, buf[:n])
}

func TestCompressToMemory_Overflow(t *testing.T) {
	pix := gradientRGB(64, 64)
	small := make([]byte, 16)
	_, err := CompressToMemory(small, 64, 64, 3, pix, Params{Quality: 90, Subsampling: H1V1})
	assert.Error(t, err)
}

func TestEncode_StuffedEntropyData(t *testing.T) {
	// Noisy content at high quality maximizes 0xFF bytes in the entropy
	// segment; every one of them must be followed by a stuff byte.
	pix := noiseRGB(48, 48, 2)
	stream := encodeToBytes(t, 48, 48, 3, pix, Params{Quality: 100, Subsampling: H1V1})

	sos := bytes.Index(stream, []byte{0xFF, 0xDA})
	require.Positive(t, sos)
	hdrLen := int(stream[sos+2])<<8 | int(stream[sos+3])
	entropy := stream[sos+2+hdrLen : len(stream)-2]

	for i := 0; i < len(entropy)-1; i++ {
		if entropy[i] == 0xFF {
			next := entropy[i+1]
			assert.True(t, next == 0x00 || (next >= 0xD0 && next <= 0xD7),
				"unstuffed 0xFF 0x%02X at entropy offset %d", next, i)
			i++
		}
	}
}

func TestEncoder_RejectsBadGeometry(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewEncoder(&buf, 0, 8, 3, DefaultParams())
	assert.Error(t, err)
	_, err = NewEncoder(&buf, 8, maxHeight+1, 3, DefaultParams())
	assert.Error(t, err)
	_, err = NewEncoder(&buf, 8, 8, 2, DefaultParams())
	assert.Error(t, err)
}

func TestEncoder_WriteFailureLatches(t *testing.T) {
	pix := noiseRGB(64, 64, 7)
	w := &failingWriter{failAfter: 1}
	e, err := NewEncoder(w, 64, 64, 3, Params{Quality: 90, Subsampling: H1V1})
	require.NoError(t, err)

	var firstErr error
	for y := 0; y < 64; y++ {
		if err := e.ProcessScanline(pix[y*64*3 : (y+1)*64*3]); err != nil {
			firstErr = err
			break
		}
	}
	require.Error(t, firstErr)
	// Every later call keeps failing without writing more.
	assert.Error(t, e.ProcessScanline(pix[:64*3]))
}

type failingWriter struct {
	writes    int
	failAfter int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	f.writes++
	if f.writes > f.failAfter {
		return 0, os.ErrClosed
	}
	return len(p), nil
}

// gradientRGB builds a deterministic smooth test image.
func gradientRGB(w, h int) []byte {
	pix := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			pix[i+0] = byte((x * 255) / max(w-1, 1))
			pix[i+1] = byte((y * 255) / max(h-1, 1))
			pix[i+2] = byte(((x + y) * 255) / max(w+h-2, 1))
		}
	}
	return pix
}

// noiseRGB builds a deterministic pseudo-random image.
func noiseRGB(w, h int, seed uint32) []byte {
	pix := make([]byte, w*h*3)
	state := seed
	for i := range pix {
		state = state*1664525 + 1013904223
		pix[i] = byte(state >> 24)
	}
	return pix
}
