// Package rle implements TGA-style run-length packets: a header byte whose
// high bit selects a run or literal packet and whose low 7 bits carry the
// count minus one, followed by one pixel (run) or count pixels (literal).
// Packets operate on whole pixels of a fixed byte size and never span rows.
package rle

import (
	"bytes"
	"errors"
	"fmt"
)

const maxPacketPixels = 128

// ErrTruncated is returned when the packet stream ends mid-row.
var ErrTruncated = errors.New("rle: truncated packet stream")

// EncodeRow compresses one row of pixels (pixelSize bytes each) into
// packets appended to buf.
func EncodeRow(buf *bytes.Buffer, row []byte, pixelSize int) {
	n := len(row) / pixelSize
	i := 0
	for i < n {
		runLen := 1
		for i+runLen < n && runLen < maxPacketPixels &&
			samePixel(row, i, i+runLen, pixelSize) {
			runLen++
		}
		if runLen > 1 {
			buf.WriteByte(byte(0x80 | (runLen - 1)))
			buf.Write(row[i*pixelSize : i*pixelSize+pixelSize])
			i += runLen
			continue
		}

		litStart := i
		litLen := 1
		for i+litLen < n && litLen < maxPacketPixels {
			// Stop the literal when a run of at least two pixels begins.
			if i+litLen+1 < n && samePixel(row, i+litLen, i+litLen+1, pixelSize) {
				break
			}
			litLen++
		}
		buf.WriteByte(byte(litLen - 1))
		buf.Write(row[litStart*pixelSize : (litStart+litLen)*pixelSize])
		i += litLen
	}
}

// DecodeRow expands packets from src into dst (one full row) and returns
// the number of source bytes consumed.
func DecodeRow(dst []byte, src []byte, pixelSize int) (int, error) {
	n := len(dst) / pixelSize
	read := 0
	px := 0
	for px < n {
		if read >= len(src) {
			return read, ErrTruncated
		}
		header := src[read]
		read++
		count := int(header&0x7F) + 1
		if px+count > n {
			return read, fmt.Errorf("rle: packet of %d pixels overruns row of %d", count, n)
		}
		if header&0x80 != 0 {
			if read+pixelSize > len(src) {
				return read, ErrTruncated
			}
			pix := src[read : read+pixelSize]
			read += pixelSize
			for i := 0; i < count; i++ {
				copy(dst[(px+i)*pixelSize:], pix)
			}
		} else {
			need := count * pixelSize
			if read+need > len(src) {
				return read, ErrTruncated
			}
			copy(dst[px*pixelSize:], src[read:read+need])
			read += need
		}
		px += count
	}
	return read, nil
}

func samePixel(row []byte, a, b, pixelSize int) bool {
	return bytes.Equal(row[a*pixelSize:(a+1)*pixelSize], row[b*pixelSize:(b+1)*pixelSize])
}
