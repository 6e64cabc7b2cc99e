package jfif

// Integer color conversion, 16-bit fixed point.
//
// Encoder direction (RGB -> YCbCr, ITU-R BT.601):
//
//	Y  =  0.29900 R + 0.58700 G + 0.11400 B
//	Cb = -0.16874 R - 0.33126 G + 0.50000 B + 128
//	Cr =  0.50000 R - 0.41869 G - 0.08131 B + 128
const (
	ycY1 = 19595 // 0.29900
	ycY2 = 38470 // 0.58700
	ycY3 = 7471  // 0.11400
	ycB1 = -11059
	ycB2 = -21709
	ycB3 = 32768
	ycR1 = 32768
	ycR2 = -27439
	ycR3 = -5329
)

func rgbToY(r, g, b int32) byte {
	return byte((r*ycY1 + g*ycY2 + b*ycY3 + 32768) >> 16)
}

func rgbToCb(r, g, b int32) byte {
	return clamp(((r*ycB1 + g*ycB2 + b*ycB3 + 32768) >> 16) + 128)
}

func rgbToCr(r, g, b int32) byte {
	return clamp(((r*ycR1 + g*ycR2 + b*ycR3 + 32768) >> 16) + 128)
}

// Decoder direction: per-byte lookup tables so the scanline loop is all adds.
//
//	R = Y + 1.40200 (Cr-128)
//	G = Y - 0.34414 (Cb-128) - 0.71414 (Cr-128)
//	B = Y + 1.77200 (Cb-128)
var (
	crrTab [256]int32
	cbbTab [256]int32
	crgTab [256]int32
	cbgTab [256]int32
)

func init() {
	for i := 0; i < 256; i++ {
		k := int32(i - 128)
		crrTab[i] = (91881*k + 32768) >> 16
		cbbTab[i] = (116130*k + 32768) >> 16
		crgTab[i] = -46802 * k
		cbgTab[i] = -22554*k + 32768
	}
}

func ycbcrToRGB(y, cb, cr int32) (byte, byte, byte) {
	r := clamp(y + crrTab[cr])
	g := clamp(y + ((cbgTab[cb] + crgTab[cr]) >> 16))
	b := clamp(y + cbbTab[cb])
	return r, g, b
}
