// Package jfif implements a baseline and progressive JPEG/JFIF codec as
// specified in ITU-T Rec. T.81 | ISO/IEC 10918-1. The encoder emits a single
// interleaved baseline scan (SOF0) with optional two-pass Huffman
// optimization; the decoder handles baseline and progressive (SOF2) streams
// with 4:4:4, 4:2:2, 4:4:0 and 4:2:0 chroma subsampling.
package jfif

// JPEG marker codes (ITU-T T.81 Table B.1), full two-byte form.
const (
	MarkerSOF0 = 0xFFC0 // Baseline DCT
	MarkerSOF1 = 0xFFC1 // Extended sequential DCT
	MarkerSOF2 = 0xFFC2 // Progressive DCT
	MarkerSOF3 = 0xFFC3 // Lossless (sequential)
	MarkerSOF5 = 0xFFC5 // Differential sequential DCT
	MarkerSOF6 = 0xFFC6 // Differential progressive DCT
	MarkerSOF7 = 0xFFC7 // Differential lossless
	MarkerJPG  = 0xFFC8 // Reserved for JPEG extensions
	MarkerSOF9 = 0xFFC9 // Extended sequential DCT, arithmetic coding
	MarkerSOFA = 0xFFCA // Progressive DCT, arithmetic coding
	MarkerSOFB = 0xFFCB // Lossless, arithmetic coding
	MarkerSOFD = 0xFFCD // Differential sequential DCT, arithmetic coding
	MarkerSOFE = 0xFFCE // Differential progressive DCT, arithmetic coding
	MarkerSOFF = 0xFFCF // Differential lossless, arithmetic coding

	MarkerDHT = 0xFFC4 // Define Huffman tables
	MarkerDAC = 0xFFCC // Define arithmetic conditioning

	MarkerRST0 = 0xFFD0 // Restart interval markers RST0..RST7
	MarkerRST7 = 0xFFD7

	MarkerSOI = 0xFFD8 // Start of image
	MarkerEOI = 0xFFD9 // End of image
	MarkerSOS = 0xFFDA // Start of scan
	MarkerDQT = 0xFFDB // Define quantization tables
	MarkerDNL = 0xFFDC // Define number of lines
	MarkerDRI = 0xFFDD // Define restart interval
	MarkerDHP = 0xFFDE // Define hierarchical progression
	MarkerEXP = 0xFFDF // Expand reference components

	MarkerAPP0  = 0xFFE0 // JFIF application segment
	MarkerAPP15 = 0xFFEF

	MarkerJPG0 = 0xFFF0
	MarkerJPGD = 0xFFFD
	MarkerCOM  = 0xFFFE // Comment

	MarkerTEM = 0xFF01 // Temporary private use
)

// Single-byte marker codes as they appear after a 0xFF in the stream.
const (
	mTEM   = 0x01
	mSOF0  = 0xC0
	mSOF1  = 0xC1
	mSOF2  = 0xC2
	mSOF3  = 0xC3
	mDHT   = 0xC4
	mSOF5  = 0xC5
	mSOF6  = 0xC6
	mSOF7  = 0xC7
	mJPG   = 0xC8
	mSOF9  = 0xC9
	mSOF10 = 0xCA
	mSOF11 = 0xCB
	mDAC   = 0xCC
	mSOF13 = 0xCD
	mSOF14 = 0xCE
	mSOF15 = 0xCF
	mRST0  = 0xD0
	mRST7  = 0xD7
	mSOI   = 0xD8
	mEOI   = 0xD9
	mSOS   = 0xDA
	mDQT   = 0xDB
	mDNL   = 0xDC
	mDRI   = 0xDD
	mAPP0  = 0xE0
	mAPP15 = 0xEF
	mCOM   = 0xFE
)

// Hard limits shared by both pipelines.
const (
	maxWidth        = 16384
	maxHeight       = 16384
	maxComponents   = 4
	maxCompsInScan  = 4
	maxBlocksPerMCU = 10
	maxHuffTables   = 8
	maxQuantTables  = 4
	maxBlocksPerRow = 8192

	inBufSize  = 8192 // decoder read window
	outBufSize = 2048 // encoder write window
)
