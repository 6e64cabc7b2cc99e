package jfif

import (
	"fmt"
	"log/slog"
)

// Entropy-coded data access. Bytes are destuffed (FF 00 -> FF); any other
// marker ends the data segment and is left pending for the marker walker.
// A truncated source behaves as if an EOI marker had been found: the rest
// of the scan is decoded from zero bits padded in place of data, without
// reading past the end of the buffer.

func (d *Decoder) nextDataByte() byte {
	if d.dataEnded {
		return 0
	}
	b, ok := d.readCharNoFault()
	if !ok {
		slog.Warn("entropy data truncated, padding scan")
		d.dataEnded = true
		d.markerPending = mEOI
		return 0
	}
	if b != 0xFF {
		return b
	}
	f, ok := d.readCharNoFault()
	for ok && f == 0xFF {
		f, ok = d.readCharNoFault()
	}
	if !ok {
		slog.Warn("entropy data truncated at 0xFF, padding scan")
		d.dataEnded = true
		d.markerPending = mEOI
		return 0
	}
	if f == 0x00 {
		return 0xFF
	}
	d.markerPending = int(f)
	d.dataEnded = true
	return 0
}

func (d *Decoder) fillBitBuf() {
	for d.bitsLeft <= 24 {
		b := d.nextDataByte()
		d.bitBuf |= uint32(b) << uint(24-d.bitsLeft)
		d.bitsLeft += 8
	}
}

// getBits reads up to 16 bits MSB-first; past the end of the scan data it
// returns zero bits.
func (d *Decoder) getBits(n int) int32 {
	if n == 0 {
		return 0
	}
	if d.bitsLeft < n {
		d.fillBitBuf()
	}
	v := int32(d.bitBuf >> uint(32-n))
	d.bitBuf <<= uint(n)
	d.bitsLeft -= n
	return v
}

func (d *Decoder) peek16() uint32 {
	if d.bitsLeft < 16 {
		d.fillBitBuf()
	}
	return d.bitBuf >> 16
}

func (d *Decoder) dropBits(n int) {
	d.bitBuf <<= uint(n)
	d.bitsLeft -= n
}

func (d *Decoder) huffDecode(h *huffTable) int {
	sym, n := h.decode(d.peek16())
	if n == 0 {
		d.fault(StatusDecodeError, fmt.Errorf("no Huffman code matches"))
	}
	d.dropBits(n)
	return int(sym)
}

// extend converts s magnitude bits into a signed value (T.81 F.2.2.1).
func extend(v int32, s int) int32 {
	if v < int32(1)<<uint(s-1) {
		return v - (int32(1) << uint(s)) + 1
	}
	return v
}

func (d *Decoder) receiveExtend(s int) int32 {
	return extend(d.getBits(s), s)
}

// processRestart validates the next RSTn marker and resets the entropy and
// predictor state (T.81 E.2.4).
func (d *Decoder) processRestart() {
	d.bitBuf = 0
	d.bitsLeft = 0

	var code int
	if d.markerPending >= 0 {
		code = d.markerPending
		d.markerPending = -1
	} else {
		code = d.nextMarkerByte()
	}
	if code < mRST0 || code > mRST7 || code != mRST0+d.nextRestartNum {
		d.fault(StatusBadRestartMarker, fmt.Errorf("marker 0x%02X, expected RST%d", code, d.nextRestartNum))
	}

	for i := 0; i < d.compsInFrame; i++ {
		d.comps[i].dcPred = 0
	}
	d.eobRun = 0
	d.dataEnded = false
	d.restartsLeft = d.restartInterval
	d.nextRestartNum = (d.nextRestartNum + 1) & 7
}

func (d *Decoder) checkRestart() {
	if d.restartInterval > 0 {
		if d.restartsLeft == 0 {
			d.processRestart()
		}
		d.restartsLeft--
	}
}

// --- baseline ---------------------------------------------------------

// decodeBaselineMCURow entropy-decodes one interleaved MCU row into the
// per-component row coefficient buffers.
func (d *Decoder) decodeBaselineMCURow() {
	for i := 0; i < d.compsInFrame; i++ {
		clearBlockRow(d.rowCoeffs[i])
	}
	for mx := 0; mx < d.mcusPerRow; mx++ {
		d.checkRestart()
		for i := 0; i < d.compsInScan; i++ {
			ci := d.compList[i]
			c := &d.comps[ci]
			for by := 0; by < c.vSamp; by++ {
				for bx := 0; bx < c.hSamp; bx++ {
					blockX := mx*c.hSamp + bx
					blk := d.rowCoeffs[ci][(by*c.blocksXPad+blockX)*64:]
					d.decodeBlockBaseline(c, blk[:64])
				}
			}
		}
	}
}

func clearBlockRow(b []int16) {
	for i := range b {
		b[i] = 0
	}
}

func (d *Decoder) decodeBlockBaseline(c *component, coef []int16) {
	s := d.huffDecode(d.huff[c.dcTab])
	if s > 15 {
		d.fault(StatusDecodeError, fmt.Errorf("DC category %d", s))
	}
	var diff int32
	if s != 0 {
		diff = d.receiveExtend(s)
	}
	c.dcPred += diff
	coef[0] = int16(c.dcPred)

	ac := d.huff[4+c.acTab]
	k := 1
	for k < 64 {
		rs := d.huffDecode(ac)
		s := rs & 15
		r := rs >> 4
		if s == 0 {
			if r != 15 {
				break // EOB
			}
			k += 16
			continue
		}
		k += r
		if k > 63 {
			d.fault(StatusDecodeError, fmt.Errorf("AC run past block end"))
		}
		coef[zigzag[k]] = int16(d.receiveExtend(s))
		k++
	}
}

// --- progressive ------------------------------------------------------

// decodeProgressiveScans consumes every scan up to EOI, accumulating
// coefficients in the whole-image buffers.
func (d *Decoder) decodeProgressiveScans() {
	for {
		d.decodeProgressiveScan()

		marker := d.processMarkers()
		if marker == mEOI {
			return
		}
		if marker != mSOS {
			d.fault(StatusUnexpectedMarker, fmt.Errorf("marker 0x%02X between scans", marker))
		}
		d.readSOS()
		d.initScan()
	}
}

// blockAt returns the stored coefficient block of component ci at block
// coordinates (bx, by).
func (d *Decoder) blockAt(ci, bx, by int) []int16 {
	c := &d.comps[ci]
	return d.coeffs[ci][(by*c.blocksXPad+bx)*64 : (by*c.blocksXPad+bx)*64+64]
}

func (d *Decoder) decodeProgressiveScan() {
	dcScan := d.spectralStart == 0
	refine := d.succHigh != 0

	if d.compsInScan > 1 {
		// Interleaved scans (DC only) iterate MCU order over the padded
		// block grid.
		for my := 0; my < d.mcusPerCol; my++ {
			for mx := 0; mx < d.mcusPerRow; mx++ {
				d.checkRestart()
				for i := 0; i < d.compsInScan; i++ {
					ci := d.compList[i]
					c := &d.comps[ci]
					for by := 0; by < c.vSamp; by++ {
						for bx := 0; bx < c.hSamp; bx++ {
							blk := d.blockAt(ci, mx*c.hSamp+bx, my*c.vSamp+by)
							if refine {
								d.decodeBlockDCRefine(blk)
							} else {
								d.decodeBlockDCFirst(c, blk)
							}
						}
					}
				}
			}
		}
		return
	}

	// Non-interleaved scans walk the component's own block raster over the
	// visible image; each block counts as one restart unit.
	ci := d.compList[0]
	c := &d.comps[ci]
	for by := 0; by < c.blocksY; by++ {
		for bx := 0; bx < c.blocksX; bx++ {
			d.checkRestart()
			blk := d.blockAt(ci, bx, by)
			switch {
			case dcScan && refine:
				d.decodeBlockDCRefine(blk)
			case dcScan:
				d.decodeBlockDCFirst(c, blk)
			case refine:
				d.decodeBlockACRefine(blk)
			default:
				d.decodeBlockACFirst(blk)
			}
		}
	}
}

func (d *Decoder) decodeBlockDCFirst(c *component, coef []int16) {
	s := d.huffDecode(d.huff[c.dcTab])
	if s > 15 {
		d.fault(StatusDecodeError, fmt.Errorf("DC category %d", s))
	}
	var diff int32
	if s != 0 {
		diff = d.receiveExtend(s)
	}
	c.dcPred += diff
	coef[0] = int16(c.dcPred << uint(d.succLow))
}

func (d *Decoder) decodeBlockDCRefine(coef []int16) {
	if d.getBits(1) != 0 {
		coef[0] |= int16(1) << uint(d.succLow)
	}
}

func (d *Decoder) decodeBlockACFirst(coef []int16) {
	if d.eobRun > 0 {
		d.eobRun--
		return
	}
	ac := d.huff[4+d.comps[d.compList[0]].acTab]
	al := uint(d.succLow)
	k := d.spectralStart
	for k <= d.spectralEnd {
		rs := d.huffDecode(ac)
		s := rs & 15
		r := rs >> 4
		if s == 0 {
			if r != 15 {
				d.eobRun = 1 << uint(r)
				if r != 0 {
					d.eobRun += int(d.getBits(r))
				}
				d.eobRun--
				return
			}
			k += 16
			continue
		}
		k += r
		if k > d.spectralEnd {
			d.fault(StatusDecodeError, fmt.Errorf("AC run past spectral end"))
		}
		coef[zigzag[k]] = int16(d.receiveExtend(s) << al)
		k++
	}
}

func (d *Decoder) decodeBlockACRefine(coef []int16) {
	ac := d.huff[4+d.comps[d.compList[0]].acTab]
	delta := int16(1) << uint(d.succLow)
	k := d.spectralStart

	if d.eobRun == 0 {
		for k <= d.spectralEnd {
			rs := d.huffDecode(ac)
			s := rs & 15
			r := rs >> 4
			var val int16
			if s == 0 {
				if r != 15 {
					d.eobRun = 1 << uint(r)
					if r != 0 {
						d.eobRun += int(d.getBits(r))
					}
					break
				}
				// ZRL: pass over 16 zero-history positions.
			} else {
				if s != 1 {
					d.fault(StatusDecodeError, fmt.Errorf("refinement size %d", s))
				}
				if d.getBits(1) != 0 {
					val = delta
				} else {
					val = -delta
				}
			}
			k = d.refineNonZeroes(coef, k, r)
			if val != 0 && k <= d.spectralEnd {
				coef[zigzag[k]] = val
			}
			k++
		}
	}
	if d.eobRun > 0 {
		d.refineNonZeroes(coef, k, -1)
		d.eobRun--
	}
}

// refineNonZeroes appends correction bits to already non-zero coefficients
// in zig-zag positions k..spectralEnd, skipping nz zero-history positions
// (every zero position when nz is negative). It returns the position of the
// nz'th zero coefficient, or spectralEnd+1.
func (d *Decoder) refineNonZeroes(coef []int16, k, nz int) int {
	delta := int16(1) << uint(d.succLow)
	for ; k <= d.spectralEnd; k++ {
		u := zigzag[k]
		if coef[u] == 0 {
			if nz == 0 {
				break
			}
			nz--
			continue
		}
		if d.getBits(1) != 0 {
			if coef[u] >= 0 {
				coef[u] += delta
			} else {
				coef[u] -= delta
			}
		}
	}
	return k
}
