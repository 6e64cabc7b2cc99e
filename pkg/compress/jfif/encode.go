package jfif

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
)

// runPasses drives a prepared encoder over pix for every pass.
func runPasses(e *Encoder, width, height, channels int, pix []byte) error {
	rowLen := width * channels
	if len(pix) < rowLen*height {
		return fmt.Errorf("jfif: pixel buffer is %d bytes, need %d", len(pix), rowLen*height)
	}
	for pass := 0; pass < e.TotalPasses(); pass++ {
		for y := 0; y < height; y++ {
			if err := e.ProcessScanline(pix[y*rowLen : (y+1)*rowLen]); err != nil {
				return err
			}
		}
	}
	return nil
}

// CompressToFile encodes pix (row-major, channels interleaved) to path.
func CompressToFile(path string, width, height, channels int, pix []byte, p Params) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("jfif: create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	e, err := NewEncoder(bw, width, height, channels, p)
	if err == nil {
		err = runPasses(e, width, height, channels, pix)
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}

// memoryWriter fills a caller-provided buffer and fails on overflow.
type memoryWriter struct {
	buf []byte
	n   int
}

func (m *memoryWriter) Write(p []byte) (int, error) {
	if m.n+len(p) > len(m.buf) {
		return 0, fmt.Errorf("jfif: output buffer too small (%d bytes)", len(m.buf))
	}
	copy(m.buf[m.n:], p)
	m.n += len(p)
	return len(p), nil
}

// CompressToMemory encodes into dst and returns the number of bytes written.
// On overflow dst's prior contents past the high-water mark are unspecified
// and an error is returned.
func CompressToMemory(dst []byte, width, height, channels int, pix []byte, p Params) (int, error) {
	mw := &memoryWriter{buf: dst}
	e, err := NewEncoder(mw, width, height, channels, p)
	if err != nil {
		return 0, err
	}
	if err := runPasses(e, width, height, channels, pix); err != nil {
		return 0, err
	}
	return mw.n, nil
}

// Encode writes img to w as a JPEG stream. A nil opts uses DefaultParams;
// gray images encode as a single component regardless of the requested
// subsampling.
func Encode(w io.Writer, img image.Image, opts *Params) error {
	p := DefaultParams()
	if opts != nil {
		p = *opts
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if _, ok := img.(*image.Gray); ok {
		p.Subsampling = YOnly
	}

	channels := 3
	if p.Subsampling == YOnly {
		channels = 1
	}

	e, err := NewEncoder(w, width, height, channels, p)
	if err != nil {
		return err
	}

	row := make([]byte, width*channels)
	for pass := 0; pass < e.TotalPasses(); pass++ {
		for y := 0; y < height; y++ {
			switch src := img.(type) {
			case *image.Gray:
				idx := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
				copy(row, src.Pix[idx:idx+width])
			default:
				for x := 0; x < width; x++ {
					r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
					if channels == 1 {
						row[x] = rgbToY(int32(r>>8), int32(g>>8), int32(b>>8))
					} else {
						row[x*3+0] = byte(r >> 8)
						row[x*3+1] = byte(g >> 8)
						row[x*3+2] = byte(b >> 8)
					}
				}
			}
			if err := e.ProcessScanline(row); err != nil {
				return err
			}
		}
	}
	return nil
}
