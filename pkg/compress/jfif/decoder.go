package jfif

import (
	"fmt"
	"io"
	"log/slog"
)

// component carries the per-component frame state.
type component struct {
	ident    int
	hSamp    int
	vSamp    int
	quantIdx int
	dcTab    int
	acTab    int

	// Sample-space and block-space geometry. The padded block counts cover
	// whole MCUs; the actual counts cover the visible image.
	sizeX, sizeY           int
	blocksX, blocksY       int
	blocksXPad, blocksYPad int

	dcPred int32
}

// Decoder pulls a JPEG stream from a reader and reconstructs scanlines.
// Errors during Begin or DecodeScanline latch the decoder failed; subsequent
// calls return the same status.
type Decoder struct {
	src io.Reader

	inBuf          [inBufSize]byte
	inOfs, inSize  int
	eofFlag        bool
	totalBytesRead int

	status Status
	failed bool
	ready  bool

	progressive bool
	width       int
	height      int

	compsInFrame int
	comps        [maxComponents]component
	quant        [maxQuantTables]*[64]int32
	huff         [maxHuffTables]*huffTable

	// Current scan.
	compsInScan   int
	compList      [maxCompsInScan]int
	spectralStart int
	spectralEnd   int
	succLow       int
	succHigh      int

	restartInterval int
	restartsLeft    int
	nextRestartNum  int
	eobRun          int

	maxHSamp, maxVSamp     int
	mcusPerRow, mcusPerCol int
	blocksPerMCU           int
	mcuWidth, mcuHeight    int

	// Entropy bit buffer.
	bitBuf        uint32
	bitsLeft      int
	dataEnded     bool
	markerPending int

	// Coefficient storage: whole image for progressive streams, one MCU row
	// for baseline streaming.
	coeffs    [maxComponents][]int16
	rowCoeffs [maxComponents][]int16

	// Reconstruction buffers.
	samples      [maxComponents][]byte
	sampleStride [maxComponents]int
	scanlineBuf  []byte
	outChannels  int

	curMCURow      int
	linesLeftInBuf int
	bufRow         int
	totalLinesLeft int
}

// NewDecoder wraps a pull source. Begin must be called before DecodeScanline.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{src: r, markerPending: -1}
}

// Status returns the terminal decoder status (StatusSuccess while healthy).
func (d *Decoder) Status() Status { return d.status }

// Width and Height report the frame dimensions once Begin has run.
func (d *Decoder) Width() int  { return d.width }
func (d *Decoder) Height() int { return d.height }

// NumComponents reports the frame component count (1 or 3).
func (d *Decoder) NumComponents() int { return d.compsInFrame }

// Progressive reports whether the stream uses progressive DCT.
func (d *Decoder) Progressive() bool { return d.progressive }

// BytesPerPixel is the native output pixel size: 1 for grayscale, 3 for
// color.
func (d *Decoder) BytesPerPixel() int { return d.outChannels }

// BytesPerScanLine is the native output row size.
func (d *Decoder) BytesPerScanLine() int { return d.width * d.outChannels }

// TotalBytesRead reports how many source bytes have been consumed.
func (d *Decoder) TotalBytesRead() int { return d.totalBytesRead }

// fault aborts decoding with a status; recovered at the API boundary.
func (d *Decoder) fault(s Status, cause error) {
	panic(decodeFault{status: s, cause: cause})
}

// trap converts a decodeFault panic into a latched error return.
func (d *Decoder) trap(err *error) {
	r := recover()
	if r == nil {
		return
	}
	f, ok := r.(decodeFault)
	if !ok {
		panic(r)
	}
	d.failed = true
	d.status = f.status
	*err = f.unwrap()
}

// Begin parses the stream headers. For progressive streams every scan is
// consumed here and the accumulated coefficients are kept for
// reconstruction; for baseline streams entropy decoding happens lazily in
// DecodeScanline.
func (d *Decoder) Begin() (err error) {
	if d.failed {
		return d.latched()
	}
	if d.ready {
		return nil
	}
	defer d.trap(&err)

	d.locateSOI()
	d.locateSOF()
	d.initFrame()

	marker := d.processMarkers()
	if marker != mSOS {
		d.fault(StatusUnexpectedMarker, fmt.Errorf("marker 0x%02X before first scan", marker))
	}
	d.readSOS()
	d.initScan()

	if d.progressive {
		d.decodeProgressiveScans()
	} else {
		if d.compsInScan != d.compsInFrame {
			d.fault(StatusNotSingleScan, nil)
		}
	}

	d.ready = true
	return nil
}

func (d *Decoder) latched() error {
	if d.status != StatusSuccess {
		return fmt.Errorf("%w: %w", StatusFailed, d.status)
	}
	return StatusFailed
}

// DecodeScanline returns the next reconstructed row in the decoder's native
// layout (grayscale or interleaved RGB). The returned slice is valid until
// the next call. io.EOF signals the end of the image.
func (d *Decoder) DecodeScanline() (row []byte, err error) {
	if d.failed {
		return nil, d.latched()
	}
	if !d.ready {
		return nil, fmt.Errorf("jfif: Begin not called")
	}
	if d.totalLinesLeft == 0 {
		return nil, io.EOF
	}
	defer d.trap(&err)

	if d.linesLeftInBuf == 0 {
		d.reconstructMCURow()
	}

	rowBytes := d.BytesPerScanLine()
	row = d.scanlineBuf[d.bufRow*rowBytes : (d.bufRow+1)*rowBytes]
	d.bufRow++
	d.linesLeftInBuf--
	d.totalLinesLeft--
	return row, nil
}

// --- raw stream access ------------------------------------------------

func (d *Decoder) prepInBuffer() {
	d.inOfs = 0
	d.inSize = 0
	for !d.eofFlag {
		n, err := d.src.Read(d.inBuf[:])
		d.inSize = n
		if err == io.EOF {
			d.eofFlag = true
		} else if err != nil {
			d.eofFlag = true
			d.fault(StatusStreamRead, err)
		}
		if n > 0 || d.eofFlag {
			return
		}
	}
}

// readCharNoFault returns the next raw byte, or ok=false at end of stream.
func (d *Decoder) readCharNoFault() (byte, bool) {
	if d.inOfs == d.inSize {
		if d.eofFlag {
			return 0, false
		}
		d.prepInBuffer()
		if d.inOfs == d.inSize {
			return 0, false
		}
	}
	b := d.inBuf[d.inOfs]
	d.inOfs++
	d.totalBytesRead++
	return b, true
}

// readChar returns the next raw byte or faults with StatusStreamRead.
func (d *Decoder) readChar() byte {
	b, ok := d.readCharNoFault()
	if !ok {
		d.fault(StatusStreamRead, io.ErrUnexpectedEOF)
	}
	return b
}

func (d *Decoder) readWord() int {
	hi := d.readChar()
	lo := d.readChar()
	return int(hi)<<8 | int(lo)
}

func (d *Decoder) skipBytes(n int) {
	for i := 0; i < n; i++ {
		d.readChar()
	}
}

// --- marker walking ---------------------------------------------------

func (d *Decoder) locateSOI() {
	b1, ok1 := d.readCharNoFault()
	b2, ok2 := d.readCharNoFault()
	if !ok1 || !ok2 || b1 != 0xFF || b2 != mSOI {
		d.fault(StatusNotJPEG, nil)
	}
}

// nextMarkerByte scans to the next marker, tolerating fill bytes and
// counting anything skipped before the marker, including extra 0xFF fill
// bytes, in a warning.
func (d *Decoder) nextMarkerByte() int {
	if d.markerPending >= 0 {
		m := d.markerPending
		d.markerPending = -1
		return m
	}
	skipped := 0
	for {
		b := d.readChar()
		for b != 0xFF {
			skipped++
			b = d.readChar()
		}
		for b == 0xFF {
			b = d.readChar()
			if b == 0xFF {
				skipped++
			}
		}
		if b == 0 {
			// stuffed data byte outside entropy context; keep scanning
			skipped += 2
			continue
		}
		if skipped > 0 {
			slog.Warn("extra bytes before marker",
				slog.Int("skipped", skipped),
				slog.String("warning", StatusExtraBytesBeforeMarker.Error()))
		}
		return int(b)
	}
}

// locateSOF consumes segments up to and including the frame header.
func (d *Decoder) locateSOF() {
	for {
		marker := d.processMarkers()
		switch marker {
		case mSOF0, mSOF1:
			d.progressive = false
			d.readSOF()
			return
		case mSOF2:
			d.progressive = true
			d.readSOF()
			return
		case mSOF9, mSOF10, mSOF11, mSOF13, mSOF14, mSOF15:
			d.fault(StatusNoArithmeticSupport, nil)
		case mSOS:
			d.fault(StatusUnexpectedMarker, fmt.Errorf("SOS before SOF"))
		case mEOI:
			d.fault(StatusUnexpectedMarker, fmt.Errorf("EOI before SOF"))
		default:
			d.fault(StatusUnsupportedMarker, fmt.Errorf("marker 0x%02X", marker))
		}
	}
}

// processMarkers handles table and metadata segments until it reaches a
// marker the caller must act on (SOF/SOS/EOI/...).
func (d *Decoder) processMarkers() int {
	for {
		marker := d.nextMarkerByte()
		switch {
		case marker == mDHT:
			d.readDHT()
		case marker == mDQT:
			d.readDQT()
		case marker == mDRI:
			d.readDRI()
		case marker >= mAPP0 && marker <= mAPP15, marker == mCOM, marker == mDNL, marker == mDAC:
			d.skipVariable(marker)
		case marker == mTEM, marker >= mRST0 && marker <= mRST7, marker == mJPG:
			d.fault(StatusUnexpectedMarker, fmt.Errorf("marker 0x%02X between segments", marker))
		case marker == mSOI:
			d.fault(StatusUnexpectedMarker, fmt.Errorf("nested SOI"))
		default:
			return marker
		}
	}
}

func (d *Decoder) skipVariable(marker int) {
	length := d.readWord()
	if length < 2 {
		d.fault(StatusBadVariableMarker, nil)
	}
	slog.Debug("skipping segment",
		slog.Int("marker", marker),
		slog.Int("length", length))
	d.skipBytes(length - 2)
}

func (d *Decoder) readDQT() {
	left := d.readWord() - 2
	for left > 0 {
		pqtq := int(d.readChar())
		left--
		prec := pqtq >> 4
		idx := pqtq & 15
		if idx >= maxQuantTables {
			d.fault(StatusBadDQTTable, fmt.Errorf("table index %d", idx))
		}
		if prec != 0 {
			d.fault(StatusBadDQTLength, fmt.Errorf("precision %d", prec))
		}
		if left < 64 {
			d.fault(StatusBadDQTLength, nil)
		}
		tbl := new([64]int32)
		for i := 0; i < 64; i++ {
			tbl[zigzag[i]] = int32(d.readChar())
		}
		left -= 64
		d.quant[idx] = tbl
	}
	if left != 0 {
		d.fault(StatusBadDQTLength, nil)
	}
}

func (d *Decoder) readDHT() {
	left := d.readWord() - 2
	for left > 0 {
		idx := int(d.readChar())
		left--
		cls := idx >> 4
		id := idx & 15
		if cls > 1 || id > 3 {
			d.fault(StatusBadDHTIndex, fmt.Errorf("class %d id %d", cls, id))
		}
		if left < 16 {
			d.fault(StatusBadDHTMarker, nil)
		}
		var count [16]byte
		total := 0
		for i := 0; i < 16; i++ {
			count[i] = d.readChar()
			total += int(count[i])
		}
		left -= 16
		if total > 256 || left < total {
			d.fault(StatusBadDHTCounts, nil)
		}
		values := make([]byte, total)
		for i := range values {
			values[i] = d.readChar()
		}
		left -= total

		h, err := buildHuffTable(&count, values, cls == 1)
		if err != nil {
			d.fault(StatusBadDHTCounts, err)
		}
		d.huff[cls*4+id] = h
	}
	if left != 0 {
		d.fault(StatusBadDHTMarker, nil)
	}
}

func (d *Decoder) readDRI() {
	if d.readWord() != 4 {
		d.fault(StatusBadDRILength, nil)
	}
	d.restartInterval = d.readWord()
}

func (d *Decoder) readSOF() {
	length := d.readWord()
	precision := int(d.readChar())
	if precision != 8 {
		d.fault(StatusBadPrecision, fmt.Errorf("precision %d", precision))
	}
	d.height = d.readWord()
	d.width = d.readWord()
	if d.height < 1 || d.height > maxHeight {
		d.fault(StatusBadHeight, fmt.Errorf("height %d", d.height))
	}
	if d.width < 1 || d.width > maxWidth {
		d.fault(StatusBadWidth, fmt.Errorf("width %d", d.width))
	}
	d.compsInFrame = int(d.readChar())
	if d.compsInFrame > maxComponents {
		d.fault(StatusTooManyComponents, fmt.Errorf("%d frame components", d.compsInFrame))
	}
	if length != 8+3*d.compsInFrame {
		d.fault(StatusBadSOFLength, nil)
	}
	for i := 0; i < d.compsInFrame; i++ {
		c := &d.comps[i]
		c.ident = int(d.readChar())
		hv := int(d.readChar())
		c.hSamp = hv >> 4
		c.vSamp = hv & 15
		c.quantIdx = int(d.readChar())
		if c.quantIdx >= maxQuantTables {
			d.fault(StatusBadDQTTable, fmt.Errorf("component %d quant selector %d", i, c.quantIdx))
		}
	}
}

func (d *Decoder) readSOS() {
	length := d.readWord()
	n := int(d.readChar())
	if n > maxCompsInScan {
		d.fault(StatusTooManyComponents, fmt.Errorf("%d scan components", n))
	}
	if n < 1 || length != 6+2*n {
		d.fault(StatusBadSOSLength, nil)
	}
	d.compsInScan = n
	for i := 0; i < n; i++ {
		ident := int(d.readChar())
		tabs := int(d.readChar())
		ci := -1
		for j := 0; j < d.compsInFrame; j++ {
			if d.comps[j].ident == ident {
				ci = j
				break
			}
		}
		if ci < 0 {
			d.fault(StatusBadSOSCompID, fmt.Errorf("component id %d", ident))
		}
		d.compList[i] = ci
		d.comps[ci].dcTab = tabs >> 4
		d.comps[ci].acTab = tabs & 15
		if d.comps[ci].dcTab > 3 || d.comps[ci].acTab > 3 {
			d.fault(StatusBadDHTIndex, fmt.Errorf("table selectors 0x%02X", tabs))
		}
	}
	d.spectralStart = int(d.readChar())
	d.spectralEnd = int(d.readChar())
	a := int(d.readChar())
	d.succHigh = a >> 4
	d.succLow = a & 15

	if d.progressive {
		if d.spectralStart > 63 || d.spectralEnd > 63 || d.spectralStart > d.spectralEnd {
			d.fault(StatusBadSOSSpectral, nil)
		}
		if d.spectralStart == 0 && d.spectralEnd != 0 {
			d.fault(StatusBadSOSSpectral, fmt.Errorf("DC scan with Se=%d", d.spectralEnd))
		}
		if d.spectralStart != 0 && d.compsInScan != 1 {
			d.fault(StatusBadSOSSpectral, fmt.Errorf("interleaved AC scan"))
		}
		if d.succHigh > 13 || d.succLow > 13 {
			d.fault(StatusBadSOSSuccessive, nil)
		}
		if d.succHigh != 0 && d.succHigh != d.succLow+1 {
			d.fault(StatusBadSOSSuccessive, nil)
		}
	} else {
		if d.spectralStart != 0 || d.spectralEnd != 63 || d.succHigh != 0 || d.succLow != 0 {
			d.fault(StatusBadSOSSpectral, nil)
		}
	}
}

// initFrame validates the component layout and sizes every buffer.
func (d *Decoder) initFrame() {
	switch d.compsInFrame {
	case 1:
		c := &d.comps[0]
		if c.hSamp != 1 || c.vSamp != 1 {
			d.fault(StatusUnsupportedSampFactors, fmt.Errorf("grayscale %dx%d", c.hSamp, c.vSamp))
		}
		d.outChannels = 1
	case 3:
		for i := 1; i < 3; i++ {
			c := &d.comps[i]
			if c.hSamp != 1 || c.vSamp != 1 {
				d.fault(StatusUnsupportedSampFactors, fmt.Errorf("chroma %dx%d", c.hSamp, c.vSamp))
			}
		}
		y := &d.comps[0]
		if y.hSamp < 1 || y.hSamp > 2 || y.vSamp < 1 || y.vSamp > 2 {
			d.fault(StatusUnsupportedSampFactors, fmt.Errorf("luma %dx%d", y.hSamp, y.vSamp))
		}
		d.outChannels = 3
	default:
		d.fault(StatusUnsupportedColorspace, fmt.Errorf("%d components", d.compsInFrame))
	}

	d.maxHSamp, d.maxVSamp = 1, 1
	for i := 0; i < d.compsInFrame; i++ {
		if d.comps[i].hSamp > d.maxHSamp {
			d.maxHSamp = d.comps[i].hSamp
		}
		if d.comps[i].vSamp > d.maxVSamp {
			d.maxVSamp = d.comps[i].vSamp
		}
	}
	d.mcuWidth = d.maxHSamp * 8
	d.mcuHeight = d.maxVSamp * 8
	d.mcusPerRow = (d.width + d.mcuWidth - 1) / d.mcuWidth
	d.mcusPerCol = (d.height + d.mcuHeight - 1) / d.mcuHeight

	d.blocksPerMCU = 0
	for i := 0; i < d.compsInFrame; i++ {
		c := &d.comps[i]
		c.sizeX = (d.width*c.hSamp + d.maxHSamp - 1) / d.maxHSamp
		c.sizeY = (d.height*c.vSamp + d.maxVSamp - 1) / d.maxVSamp
		c.blocksX = (c.sizeX + 7) / 8
		c.blocksY = (c.sizeY + 7) / 8
		c.blocksXPad = d.mcusPerRow * c.hSamp
		c.blocksYPad = d.mcusPerCol * c.vSamp
		d.blocksPerMCU += c.hSamp * c.vSamp
	}
	if d.blocksPerMCU > maxBlocksPerMCU {
		d.fault(StatusTooManyBlocks, nil)
	}
	if d.mcusPerRow > maxBlocksPerRow/d.blocksPerMCU {
		d.fault(StatusTooManyBlocks, nil)
	}

	for i := 0; i < d.compsInFrame; i++ {
		c := &d.comps[i]
		if d.progressive {
			d.coeffs[i] = make([]int16, c.blocksXPad*c.blocksYPad*64)
		} else {
			d.rowCoeffs[i] = make([]int16, c.blocksXPad*c.vSamp*64)
		}
		d.sampleStride[i] = c.blocksXPad * 8
		d.samples[i] = make([]byte, d.sampleStride[i]*c.vSamp*8)
	}

	d.scanlineBuf = make([]byte, d.mcuHeight*d.width*d.outChannels)
	d.totalLinesLeft = d.height
	d.curMCURow = 0
}

// initScan checks table availability and arms the entropy state.
func (d *Decoder) initScan() {
	for i := 0; i < d.compsInScan; i++ {
		c := &d.comps[d.compList[i]]
		if d.quant[c.quantIdx] == nil {
			d.fault(StatusUndefinedQuantTable, fmt.Errorf("table %d", c.quantIdx))
		}
		needDC := !d.progressive || (d.spectralStart == 0 && d.succHigh == 0)
		needAC := !d.progressive || d.spectralStart != 0
		if needDC && d.huff[c.dcTab] == nil {
			d.fault(StatusUndefinedHuffTable, fmt.Errorf("DC table %d", c.dcTab))
		}
		if needAC && d.huff[4+c.acTab] == nil {
			d.fault(StatusUndefinedHuffTable, fmt.Errorf("AC table %d", c.acTab))
		}
		c.dcPred = 0
	}
	d.eobRun = 0
	d.bitBuf = 0
	d.bitsLeft = 0
	d.dataEnded = false
	d.restartsLeft = d.restartInterval
	d.nextRestartNum = 0
}
