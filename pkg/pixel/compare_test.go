package pixel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare_Identical(t *testing.T) {
	pix := make([]byte, 8*8*3)
	for i := range pix {
		pix[i] = byte(i)
	}
	res := Compare(8, 8, pix, 3, pix, 3, false)
	assert.Zero(t, res.MaxErr)
	assert.Zero(t, res.Mean)
	assert.Zero(t, res.RMS)
	assert.Equal(t, 1e10, res.PSNR)
}

func TestCompare_KnownError(t *testing.T) {
	a := make([]byte, 4*4*3)
	b := make([]byte, 4*4*3)
	for i := range b {
		b[i] = 10 // uniform error of 10 in every channel
	}
	res := Compare(4, 4, a, 3, b, 3, false)
	assert.Equal(t, 10.0, res.MaxErr)
	// Three channel entries per pixel, each off by ten.
	assert.InDelta(t, 30.0, res.Mean, 1e-9)
	assert.InDelta(t, 300.0, res.MeanSquared, 1e-9)
	assert.Greater(t, res.PSNR, 20.0)
	assert.Less(t, res.PSNR, 30.0)
}

func TestCompare_GrayVsColor(t *testing.T) {
	// A gray buffer against its own RGB replication compares clean.
	gray := make([]byte, 6*2)
	rgb := make([]byte, 6*2*3)
	for i := range gray {
		gray[i] = byte(i * 20)
		rgb[i*3+0] = gray[i]
		rgb[i*3+1] = gray[i]
		rgb[i*3+2] = gray[i]
	}
	res := Compare(6, 2, gray, 1, rgb, 3, false)
	assert.Zero(t, res.MaxErr)
}

func TestCompare_LumaOnly(t *testing.T) {
	// Identical gray pixels compared in luma-only mode give zero error.
	a := []byte{100, 100, 100}
	b := []byte{100, 100, 100}
	res := Compare(1, 1, a, 3, b, 3, true)
	assert.Zero(t, res.MaxErr)
}
