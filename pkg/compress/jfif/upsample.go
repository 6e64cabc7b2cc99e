package jfif

// MCU-row reconstruction: dequantize, inverse transform, upsample chroma and
// convert to the output colorspace, one MCU row (up to 16 pixel rows) at a
// time into the scanline slot buffer.

// reconstructMCURow produces the next MCU row of output scanlines.
func (d *Decoder) reconstructMCURow() {
	if !d.progressive {
		d.decodeBaselineMCURow()
	}
	d.transformMCURow()
	d.convertMCURow()
	d.curMCURow++
	d.bufRow = 0
	lines := d.mcuHeight
	if remaining := d.totalLinesLeft; lines > remaining {
		lines = remaining
	}
	d.linesLeftInBuf = lines
}

// blockForTransform returns the coefficient block feeding the transform for
// component ci at block column bx, block row by within the current MCU row.
func (d *Decoder) blockForTransform(ci, bx, by int) []int16 {
	c := &d.comps[ci]
	if d.progressive {
		globalBY := d.curMCURow*c.vSamp + by
		return d.coeffs[ci][(globalBY*c.blocksXPad+bx)*64 : (globalBY*c.blocksXPad+bx)*64+64]
	}
	return d.rowCoeffs[ci][(by*c.blocksXPad+bx)*64 : (by*c.blocksXPad+bx)*64+64]
}

// transformMCURow dequantizes and inverse-transforms every block of the
// current MCU row into the component sample planes.
func (d *Decoder) transformMCURow() {
	var blk [64]int32
	for ci := 0; ci < d.compsInFrame; ci++ {
		c := &d.comps[ci]
		qt := d.quant[c.quantIdx]
		stride := d.sampleStride[ci]
		for by := 0; by < c.vSamp; by++ {
			for bx := 0; bx < c.blocksXPad; bx++ {
				coef := d.blockForTransform(ci, bx, by)
				for i := 0; i < 64; i++ {
					blk[i] = int32(coef[i]) * qt[i]
				}
				out := d.samples[ci][by*8*stride+bx*8:]
				idct(&blk, out, stride)
			}
		}
	}
}

// convertMCURow upsamples chroma by sample replication and converts to the
// output layout. Supported layouts keep chroma at 1x1, so the replication
// factors are maxHSamp and maxVSamp (1:1, 2:1 horizontal, 2:1 vertical, or
// both).
func (d *Decoder) convertMCURow() {
	lines := d.mcuHeight
	if remaining := d.totalLinesLeft; lines > remaining {
		lines = remaining
	}

	if d.compsInFrame == 1 {
		d.grayConvert(lines)
		return
	}

	yStride := d.sampleStride[0]
	cbStride := d.sampleStride[1]
	crStride := d.sampleStride[2]
	hShift := uint(d.maxHSamp - 1) // 1 -> 0, 2 -> 1
	vShift := uint(d.maxVSamp - 1)

	for line := 0; line < lines; line++ {
		yRow := d.samples[0][line*yStride:]
		cbRow := d.samples[1][(line>>vShift)*cbStride:]
		crRow := d.samples[2][(line>>vShift)*crStride:]
		out := d.scanlineBuf[line*d.width*3:]
		for x := 0; x < d.width; x++ {
			y := int32(yRow[x])
			cb := cbRow[x>>hShift]
			cr := crRow[x>>hShift]
			r, g, b := ycbcrToRGB(y, int32(cb), int32(cr))
			out[x*3+0] = r
			out[x*3+1] = g
			out[x*3+2] = b
		}
	}
}

// grayConvert copies luma rows straight to the output.
func (d *Decoder) grayConvert(lines int) {
	stride := d.sampleStride[0]
	for line := 0; line < lines; line++ {
		copy(d.scanlineBuf[line*d.width:(line+1)*d.width], d.samples[0][line*stride:])
	}
}
