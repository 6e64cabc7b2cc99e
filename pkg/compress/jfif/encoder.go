package jfif

import (
	"fmt"
	"io"
)

// Subsampling selects the chroma layout of the emitted stream.
type Subsampling int

const (
	// YOnly emits a single grayscale component.
	YOnly Subsampling = iota
	// H1V1 is 4:4:4 - chroma at full resolution.
	H1V1
	// H2V1 is 4:2:2 - chroma halved horizontally.
	H2V1
	// H2V2 is 4:2:0 - chroma halved in both axes.
	H2V2
)

func (s Subsampling) String() string {
	switch s {
	case YOnly:
		return "Y"
	case H1V1:
		return "H1V1"
	case H2V1:
		return "H2V1"
	case H2V2:
		return "H2V2"
	default:
		return fmt.Sprintf("Subsampling(%d)", int(s))
	}
}

// Params control the encoder.
type Params struct {
	// Quality in [1,100]; scales the reference quantization tables.
	Quality int
	// Subsampling selects the chroma layout.
	Subsampling Subsampling
	// NoChromaDiscrim reuses the luma quantization table for chroma.
	NoChromaDiscrim bool
	// TwoPass collects symbol frequencies on a first pass over the image and
	// re-encodes with Huffman tables built from them.
	TwoPass bool
	// RestartInterval, when non-zero, emits a DRI segment and RSTn markers
	// every that many MCUs.
	RestartInterval int
}

// DefaultParams returns the defaults: quality 85, 4:2:0, single pass.
func DefaultParams() Params {
	return Params{Quality: 85, Subsampling: H2V2}
}

// Check validates the parameter set.
func (p Params) Check() error {
	if p.Quality < 1 || p.Quality > 100 {
		return fmt.Errorf("quality %d out of range [1,100]", p.Quality)
	}
	if p.Subsampling < YOnly || p.Subsampling > H2V2 {
		return fmt.Errorf("bad subsampling %d", int(p.Subsampling))
	}
	if p.RestartInterval < 0 || p.RestartInterval > 65535 {
		return fmt.Errorf("restart interval %d out of range [0,65535]", p.RestartInterval)
	}
	return nil
}

// Encoder compresses an image one scanline at a time into a push sink. The
// caller feeds exactly Height scanlines per pass, TotalPasses times; the last
// scanline of the last pass terminates the stream.
type Encoder struct {
	sink   io.Writer
	params Params

	numComponents int
	compHSamp     [3]int
	compVSamp     [3]int

	imageX, imageY       int
	imageBPP             int // source bytes per pixel
	imageXMCU, imageYMCU int
	imageBPLXlt          int // bytes per translated line
	imageBPLMCU          int // bytes per padded translated line
	mcusPerRow           int
	mcuW, mcuH           int

	mcuLines [16][]byte
	mcuYOfs  int

	sampleArray      [64]int32
	coefficientArray [64]int16
	quantTables      [2][64]int32

	// Table layout: 0 = DC luma, 1 = AC luma, 2 = DC chroma, 3 = AC chroma.
	huffSpecs [4]huffmanSpec
	huffCodes [4]huffCodeTable
	huffCount [4][257]uint32

	lastDCVal [3]int32

	outBuf    [outBufSize]byte
	outOfs    int
	bitBuffer uint32
	bitsIn    int

	passNum        int
	linesInPass    int
	restartsLeft   int
	nextRestartNum int

	allWritesSucceeded bool
	writeErr           error
}

// NewEncoder prepares an encoder over sink. srcChannels is 1 (grayscale), 3
// (RGB) or 4 (RGBA, alpha discarded). In single-pass mode the stream headers
// are emitted immediately.
func NewEncoder(sink io.Writer, width, height, srcChannels int, p Params) (*Encoder, error) {
	if err := p.Check(); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if width < 1 || width > maxWidth {
		return nil, fmt.Errorf("width %d out of range [1,%d]", width, maxWidth)
	}
	if height < 1 || height > maxHeight {
		return nil, fmt.Errorf("height %d out of range [1,%d]", height, maxHeight)
	}
	if srcChannels != 1 && srcChannels != 3 && srcChannels != 4 {
		return nil, fmt.Errorf("source channels must be 1, 3 or 4, got %d", srcChannels)
	}

	e := &Encoder{
		sink:               sink,
		params:             p,
		imageX:             width,
		imageY:             height,
		imageBPP:           srcChannels,
		allWritesSucceeded: true,
	}

	switch p.Subsampling {
	case YOnly:
		e.numComponents = 1
		e.compHSamp, e.compVSamp = [3]int{1, 0, 0}, [3]int{1, 0, 0}
		e.mcuW, e.mcuH = 8, 8
	case H1V1:
		e.numComponents = 3
		e.compHSamp, e.compVSamp = [3]int{1, 1, 1}, [3]int{1, 1, 1}
		e.mcuW, e.mcuH = 8, 8
	case H2V1:
		e.numComponents = 3
		e.compHSamp, e.compVSamp = [3]int{2, 1, 1}, [3]int{1, 1, 1}
		e.mcuW, e.mcuH = 16, 8
	case H2V2:
		e.numComponents = 3
		e.compHSamp, e.compVSamp = [3]int{2, 1, 1}, [3]int{2, 1, 1}
		e.mcuW, e.mcuH = 16, 16
	}

	e.imageXMCU = (width + e.mcuW - 1) / e.mcuW * e.mcuW
	e.imageYMCU = (height + e.mcuH - 1) / e.mcuH * e.mcuH
	e.imageBPLXlt = width * e.numComponents
	e.imageBPLMCU = e.imageXMCU * e.numComponents
	e.mcusPerRow = e.imageXMCU / e.mcuW

	for i := 0; i < e.mcuH; i++ {
		e.mcuLines[i] = make([]byte, e.imageBPLMCU)
	}

	scaleQuantTable(&e.quantTables[0], &stdLumaQuant, p.Quality)
	chromaRef := &stdChromaQuant
	if p.NoChromaDiscrim {
		chromaRef = &stdLumaQuant
	}
	scaleQuantTable(&e.quantTables[1], chromaRef, p.Quality)

	e.restartsLeft = p.RestartInterval

	if p.TwoPass {
		e.passNum = 1
	} else {
		e.useStandardHuffTables()
		e.passNum = 2
		e.emitMarkers()
	}
	return e, e.err()
}

// TotalPasses is 2 when Huffman optimization is on, else 1.
func (e *Encoder) TotalPasses() int {
	if e.params.TwoPass {
		return 2
	}
	return 1
}

// CurrentPass is 1 during frequency collection, 2 while emitting.
func (e *Encoder) CurrentPass() int { return e.passNum }

// Params returns the parameter set the encoder was created with.
func (e *Encoder) Params() Params { return e.params }

func (e *Encoder) err() error {
	if !e.allWritesSucceeded {
		if e.writeErr != nil {
			return e.writeErr
		}
		return fmt.Errorf("jfif: stream write failed")
	}
	return nil
}

// ProcessScanline consumes one source row of Width pixels. The row layout
// matches the srcChannels given at construction. After Height rows the
// current pass terminates; in two-pass mode the caller then feeds all rows
// again, and the second terminator finishes the stream.
func (e *Encoder) ProcessScanline(scanline []byte) error {
	if err := e.err(); err != nil {
		return err
	}
	if e.passNum < 1 || e.passNum > 2 {
		return fmt.Errorf("jfif: encoder already terminated")
	}
	if len(scanline) < e.imageX*e.imageBPP {
		return fmt.Errorf("jfif: scanline is %d bytes, need %d", len(scanline), e.imageX*e.imageBPP)
	}

	e.loadMCU(scanline)
	e.linesInPass++
	if e.linesInPass == e.imageY {
		if err := e.processEndOfImage(); err != nil {
			return err
		}
	}
	return e.err()
}

// loadMCU translates one source row into the MCU line buffer, padding the
// right edge by replicating the last pixel.
func (e *Encoder) loadMCU(src []byte) {
	dst := e.mcuLines[e.mcuYOfs]

	if e.numComponents == 1 {
		switch e.imageBPP {
		case 1:
			copy(dst, src[:e.imageX])
		case 3, 4:
			for x := 0; x < e.imageX; x++ {
				p := src[x*e.imageBPP:]
				dst[x] = rgbToY(int32(p[0]), int32(p[1]), int32(p[2]))
			}
		}
	} else {
		switch e.imageBPP {
		case 1:
			for x := 0; x < e.imageX; x++ {
				dst[x*3+0] = src[x]
				dst[x*3+1] = 128
				dst[x*3+2] = 128
			}
		case 3, 4:
			for x := 0; x < e.imageX; x++ {
				p := src[x*e.imageBPP:]
				r, g, b := int32(p[0]), int32(p[1]), int32(p[2])
				dst[x*3+0] = rgbToY(r, g, b)
				dst[x*3+1] = rgbToCb(r, g, b)
				dst[x*3+2] = rgbToCr(r, g, b)
			}
		}
	}

	last := (e.imageX - 1) * e.numComponents
	for x := e.imageX; x < e.imageXMCU; x++ {
		copy(dst[x*e.numComponents:(x+1)*e.numComponents], dst[last:last+e.numComponents])
	}

	e.mcuYOfs++
	if e.mcuYOfs == e.mcuH {
		e.processMCURow()
		e.mcuYOfs = 0
	}
}

func (e *Encoder) processEndOfImage() error {
	if e.mcuYOfs != 0 {
		last := e.mcuLines[e.mcuYOfs-1]
		for e.mcuYOfs < e.mcuH {
			copy(e.mcuLines[e.mcuYOfs], last)
			e.mcuYOfs++
		}
		e.processMCURow()
		e.mcuYOfs = 0
	}

	if e.passNum == 1 {
		e.terminatePassOne()
	} else {
		e.terminatePassTwo()
	}
	e.linesInPass = 0
	return e.err()
}

func (e *Encoder) terminatePassOne() {
	n := 2
	if e.numComponents == 3 {
		n = 4
	}
	for t := 0; t < n; t++ {
		e.huffSpecs[t] = optimizeHuffmanSpec(&e.huffCount[t])
		e.huffCodes[t].build(&e.huffSpecs[t])
	}
	e.bitBuffer, e.bitsIn = 0, 0
	e.lastDCVal = [3]int32{}
	e.restartsLeft = e.params.RestartInterval
	e.nextRestartNum = 0
	e.passNum = 2
	e.emitMarkers()
}

func (e *Encoder) terminatePassTwo() {
	e.putBits(0x7F, 7) // pad the last byte with 1 bits
	e.flushOutputBuffer()
	e.emitWord(MarkerEOI)
	e.flushOutputBuffer()
	e.passNum = 3
}

func (e *Encoder) useStandardHuffTables() {
	e.huffSpecs[0] = stdDCLuma
	e.huffSpecs[1] = stdACLuma
	e.huffSpecs[2] = stdDCChroma
	e.huffSpecs[3] = stdACChroma
	for t := 0; t < 4; t++ {
		e.huffCodes[t].build(&e.huffSpecs[t])
	}
}

// processMCURow transforms and codes every MCU assembled from the buffered
// lines.
func (e *Encoder) processMCURow() {
	for x := 0; x < e.mcusPerRow; x++ {
		if e.params.RestartInterval > 0 {
			if e.restartsLeft == 0 {
				e.emitRestart()
			}
			e.restartsLeft--
		}
		if e.numComponents == 1 {
			e.loadBlock8x8Grey(x)
			e.codeBlock(0)
			continue
		}
		switch e.params.Subsampling {
		case H1V1:
			e.loadBlock8x8(x, 0, 0)
			e.codeBlock(0)
			e.loadBlock8x8(x, 0, 1)
			e.codeBlock(1)
			e.loadBlock8x8(x, 0, 2)
			e.codeBlock(2)
		case H2V1:
			e.loadBlock8x8(x*2+0, 0, 0)
			e.codeBlock(0)
			e.loadBlock8x8(x*2+1, 0, 0)
			e.codeBlock(0)
			e.loadBlock16x8x8(x, 1)
			e.codeBlock(1)
			e.loadBlock16x8x8(x, 2)
			e.codeBlock(2)
		case H2V2:
			e.loadBlock8x8(x*2+0, 0, 0)
			e.codeBlock(0)
			e.loadBlock8x8(x*2+1, 0, 0)
			e.codeBlock(0)
			e.loadBlock8x8(x*2+0, 1, 0)
			e.codeBlock(0)
			e.loadBlock8x8(x*2+1, 1, 0)
			e.codeBlock(0)
			e.loadBlock16x8(x, 1)
			e.codeBlock(1)
			e.loadBlock16x8(x, 2)
			e.codeBlock(2)
		}
	}
}

// emitRestart byte-aligns the entropy stream and writes the next RSTn
// marker. DC predictors reset in both passes so the two-pass symbol
// statistics match the emitted stream.
func (e *Encoder) emitRestart() {
	if e.passNum == 2 {
		if e.bitsIn > 0 {
			n := 8 - e.bitsIn
			e.putBits(uint32(1<<n)-1, n)
		}
		e.emitWord(MarkerRST0 + e.nextRestartNum)
	}
	e.nextRestartNum = (e.nextRestartNum + 1) & 7
	e.lastDCVal = [3]int32{}
	e.restartsLeft = e.params.RestartInterval
}

// loadBlock8x8Grey loads the 8x8 luma block at block column x.
func (e *Encoder) loadBlock8x8Grey(x int) {
	ofs := x * 8
	for i := 0; i < 8; i++ {
		src := e.mcuLines[i][ofs : ofs+8]
		dst := e.sampleArray[i*8 : i*8+8]
		for j := 0; j < 8; j++ {
			dst[j] = int32(src[j]) - 128
		}
	}
}

// loadBlock8x8 loads the 8x8 block of component c at block coordinates
// (x, y) within the current MCU row.
func (e *Encoder) loadBlock8x8(x, y, c int) {
	ofs := x*8*e.numComponents + c
	for i := 0; i < 8; i++ {
		src := e.mcuLines[y*8+i]
		dst := e.sampleArray[i*8 : i*8+8]
		for j := 0; j < 8; j++ {
			dst[j] = int32(src[ofs+j*e.numComponents]) - 128
		}
	}
}

// loadBlock16x8 loads a chroma block from a 16x16 area by 2x2 averaging
// (H2V2).
func (e *Encoder) loadBlock16x8(x, c int) {
	ofs := x*16*e.numComponents + c
	for i := 0; i < 8; i++ {
		src0 := e.mcuLines[i*2+0]
		src1 := e.mcuLines[i*2+1]
		dst := e.sampleArray[i*8 : i*8+8]
		for j := 0; j < 8; j++ {
			o := ofs + j*2*e.numComponents
			sum := int32(src0[o]) + int32(src0[o+e.numComponents]) +
				int32(src1[o]) + int32(src1[o+e.numComponents])
			dst[j] = ((sum + 2) >> 2) - 128
		}
	}
}

// loadBlock16x8x8 loads a chroma block from a 16x8 area by horizontal pair
// averaging (H2V1).
func (e *Encoder) loadBlock16x8x8(x, c int) {
	ofs := x*16*e.numComponents + c
	for i := 0; i < 8; i++ {
		src := e.mcuLines[i]
		dst := e.sampleArray[i*8 : i*8+8]
		for j := 0; j < 8; j++ {
			o := ofs + j*2*e.numComponents
			sum := int32(src[o]) + int32(src[o+e.numComponents])
			dst[j] = ((sum + 1) >> 1) - 128
		}
	}
}

func (e *Encoder) tableIndices(c int) (dc, ac int) {
	if c == 0 {
		return 0, 1
	}
	return 2, 3
}

func (e *Encoder) codeBlock(c int) {
	fdct(&e.sampleArray)
	q := 0
	if c != 0 {
		q = 1
	}
	quantizeBlock(&e.sampleArray, &e.quantTables[q], &e.coefficientArray)
	if e.passNum == 1 {
		e.codeCoefficientsPassOne(c)
	} else {
		e.codeCoefficientsPassTwo(c)
	}
}

// bitCount returns the JPEG magnitude category of v.
func bitCount(v int32) int {
	if v < 0 {
		v = -v
	}
	n := 0
	for v != 0 {
		v >>= 1
		n++
	}
	return n
}

func (e *Encoder) codeCoefficientsPassOne(c int) {
	dcTab, acTab := e.tableIndices(c)

	dc := int32(e.coefficientArray[0])
	diff := dc - e.lastDCVal[c]
	e.lastDCVal[c] = dc
	e.huffCount[dcTab][bitCount(diff)]++

	run := 0
	for i := 1; i < 64; i++ {
		v := int32(e.coefficientArray[i])
		if v == 0 {
			run++
			continue
		}
		for run >= 16 {
			e.huffCount[acTab][0xF0]++
			run -= 16
		}
		e.huffCount[acTab][(run<<4)|bitCount(v)]++
		run = 0
	}
	if run > 0 {
		e.huffCount[acTab][0x00]++
	}
}

func (e *Encoder) codeCoefficientsPassTwo(c int) {
	dcTab, acTab := e.tableIndices(c)
	dcCodes, acCodes := &e.huffCodes[dcTab], &e.huffCodes[acTab]

	dc := int32(e.coefficientArray[0])
	diff := dc - e.lastDCVal[c]
	e.lastDCVal[c] = dc
	s := bitCount(diff)
	e.putBits(dcCodes.codes[s], int(dcCodes.sizes[s]))
	if s > 0 {
		e.putSignedBits(diff, s)
	}

	run := 0
	for i := 1; i < 64; i++ {
		v := int32(e.coefficientArray[i])
		if v == 0 {
			run++
			continue
		}
		for run >= 16 {
			e.putBits(acCodes.codes[0xF0], int(acCodes.sizes[0xF0]))
			run -= 16
		}
		s = bitCount(v)
		sym := (run << 4) | s
		e.putBits(acCodes.codes[sym], int(acCodes.sizes[sym]))
		e.putSignedBits(v, s)
		run = 0
	}
	if run > 0 {
		e.putBits(acCodes.codes[0x00], int(acCodes.sizes[0x00]))
	}
}

// putSignedBits emits the s magnitude bits of v: v itself when positive,
// v + 2^s - 1 when negative.
func (e *Encoder) putSignedBits(v int32, s int) {
	if v < 0 {
		v--
	}
	e.putBits(uint32(v)&((1<<uint(s))-1), s)
}

// putBits pushes length bits MSB-first, flushing whole bytes with 0xFF
// stuffing.
func (e *Encoder) putBits(bits uint32, length int) {
	e.bitsIn += length
	e.bitBuffer |= bits << uint(24-e.bitsIn)
	for e.bitsIn >= 8 {
		c := byte(e.bitBuffer >> 16)
		e.emitByte(c)
		if c == 0xFF {
			e.emitByte(0x00)
		}
		e.bitBuffer <<= 8
		e.bitsIn -= 8
	}
}

func (e *Encoder) emitByte(b byte) {
	e.outBuf[e.outOfs] = b
	e.outOfs++
	if e.outOfs == outBufSize {
		e.flushOutputBuffer()
	}
}

func (e *Encoder) emitWord(w int) {
	e.emitByte(byte(w >> 8))
	e.emitByte(byte(w))
}

func (e *Encoder) flushOutputBuffer() {
	if e.outOfs == 0 || !e.allWritesSucceeded {
		e.outOfs = 0
		return
	}
	if _, err := e.sink.Write(e.outBuf[:e.outOfs]); err != nil {
		e.allWritesSucceeded = false
		e.writeErr = fmt.Errorf("jfif: stream write: %w", err)
	}
	e.outOfs = 0
}

func (e *Encoder) emitMarkers() {
	e.emitWord(MarkerSOI)
	e.emitJFIFAPP0()
	e.emitDQTs()
	e.emitSOF()
	e.emitDHTs()
	if e.params.RestartInterval > 0 {
		e.emitDRI()
	}
	e.emitSOS()
}

func (e *Encoder) emitJFIFAPP0() {
	e.emitWord(MarkerAPP0)
	e.emitWord(2 + 5 + 2 + 1 + 2 + 2 + 2)
	e.emitByte('J')
	e.emitByte('F')
	e.emitByte('I')
	e.emitByte('F')
	e.emitByte(0)
	e.emitByte(1) // version 1.01
	e.emitByte(1)
	e.emitByte(0) // aspect ratio units
	e.emitWord(1) // 1:1 density
	e.emitWord(1)
	e.emitByte(0) // no thumbnail
	e.emitByte(0)
}

func (e *Encoder) emitDQTs() {
	n := 1
	if e.numComponents == 3 {
		n = 2
	}
	for i := 0; i < n; i++ {
		e.emitWord(MarkerDQT)
		e.emitWord(2 + 1 + 64)
		e.emitByte(byte(i)) // Pq=0 (8-bit), Tq=i
		for j := 0; j < 64; j++ {
			e.emitByte(byte(e.quantTables[i][zigzag[j]]))
		}
	}
}

func (e *Encoder) emitSOF() {
	e.emitWord(MarkerSOF0)
	e.emitWord(2 + 1 + 2 + 2 + 1 + 3*e.numComponents)
	e.emitByte(8) // precision
	e.emitWord(e.imageY)
	e.emitWord(e.imageX)
	e.emitByte(byte(e.numComponents))
	for c := 0; c < e.numComponents; c++ {
		e.emitByte(byte(c + 1))
		e.emitByte(byte(e.compHSamp[c]<<4 | e.compVSamp[c]))
		q := byte(0)
		if c > 0 {
			q = 1
		}
		e.emitByte(q)
	}
}

func (e *Encoder) emitDHT(spec *huffmanSpec, index int, ac bool) {
	e.emitWord(MarkerDHT)
	e.emitWord(2 + 1 + 16 + len(spec.values))
	cls := byte(index)
	if ac {
		cls |= 0x10
	}
	e.emitByte(cls)
	for _, c := range spec.count {
		e.emitByte(c)
	}
	for _, v := range spec.values {
		e.emitByte(v)
	}
}

func (e *Encoder) emitDHTs() {
	e.emitDHT(&e.huffSpecs[0], 0, false)
	e.emitDHT(&e.huffSpecs[1], 0, true)
	if e.numComponents == 3 {
		e.emitDHT(&e.huffSpecs[2], 1, false)
		e.emitDHT(&e.huffSpecs[3], 1, true)
	}
}

func (e *Encoder) emitDRI() {
	e.emitWord(MarkerDRI)
	e.emitWord(4)
	e.emitWord(e.params.RestartInterval)
}

func (e *Encoder) emitSOS() {
	e.emitWord(MarkerSOS)
	e.emitWord(2 + 1 + 2*e.numComponents + 3)
	e.emitByte(byte(e.numComponents))
	for c := 0; c < e.numComponents; c++ {
		e.emitByte(byte(c + 1))
		if c == 0 {
			e.emitByte(0x00)
		} else {
			e.emitByte(0x11)
		}
	}
	e.emitByte(0)  // spectral start
	e.emitByte(63) // spectral end
	e.emitByte(0)  // successive approximation
}
