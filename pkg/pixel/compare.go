// Package pixel provides image buffer comparison statistics used by the
// round-trip self tests.
package pixel

import "math"

// Results summarizes the error between two images. MaxErr is the largest
// single-channel difference; Mean and MeanSquared add the three channel
// differences of each pixel and divide by the pixel count, not by the
// sample count.
type Results struct {
	MaxErr      float64
	Mean        float64
	MeanSquared float64
	RMS         float64
	PSNR        float64
}

// lumaWeights match the encoder's Y computation (BT.601, 16-bit fixed
// point).
const (
	lumaR = 19595
	lumaG = 38470
	lumaB = 7471
)

// sample fetches pixel x as an (r, g, b) triple; single-channel buffers
// replicate, and lumaOnly collapses color to the BT.601 luma.
func sample(pix []byte, x, channels int, lumaOnly bool) (int, int, int) {
	p := pix[x*channels:]
	if channels == 1 {
		return int(p[0]), int(p[0]), int(p[0])
	}
	if lumaOnly {
		l := (int(p[0])*lumaR + int(p[1])*lumaG + int(p[2])*lumaB + 32768) / 65536
		return l, l, l
	}
	return int(p[0]), int(p[1]), int(p[2])
}

// Compare computes the error histogram statistics between two width*height
// images with the given channel counts.
func Compare(width, height int, a []byte, aChannels int, b []byte, bChannels int, lumaOnly bool) Results {
	var hist [256]float64

	for y := 0; y < height; y++ {
		arow := a[y*width*aChannels:]
		brow := b[y*width*bChannels:]
		for x := 0; x < width; x++ {
			ar, ag, ab := sample(arow, x, aChannels, lumaOnly)
			br, bg, bb := sample(brow, x, bChannels, lumaOnly)
			hist[abs(ar-br)]++
			hist[abs(ag-bg)]++
			hist[abs(ab-bb)]++
		}
	}

	var res Results
	var sum, sum2 float64
	for i := 0; i < 256; i++ {
		if hist[i] == 0 {
			continue
		}
		if float64(i) > res.MaxErr {
			res.MaxErr = float64(i)
		}
		x := float64(i) * hist[i]
		sum += x
		sum2 += float64(i) * x
	}

	total := float64(width * height)
	res.Mean = sum / total
	res.MeanSquared = sum2 / total
	res.RMS = math.Sqrt(res.MeanSquared)
	if res.RMS == 0 {
		res.PSNR = 1e10
	} else {
		res.PSNR = math.Log10(255.0/res.RMS) * 20.0
	}
	return res
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
