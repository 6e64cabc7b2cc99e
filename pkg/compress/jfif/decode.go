package jfif

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
)

// Image is a decoded frame: 8-bit channels, row-major, interleaved.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// decompress drains a decoder into an Image with reqChannels channels
// (0 keeps the native layout; otherwise 1, 3 or 4, alpha filled with 255).
func decompress(d *Decoder, reqChannels int) (*Image, error) {
	switch reqChannels {
	case 0, 1, 3, 4:
	default:
		return nil, fmt.Errorf("jfif: requested channels must be 0, 1, 3 or 4, got %d", reqChannels)
	}
	if err := d.Begin(); err != nil {
		return nil, err
	}
	native := d.BytesPerPixel()
	out := reqChannels
	if out == 0 {
		out = native
	}

	img := &Image{
		Width:    d.Width(),
		Height:   d.Height(),
		Channels: out,
		Pix:      make([]byte, d.Width()*d.Height()*out),
	}
	for y := 0; y < img.Height; y++ {
		row, err := d.DecodeScanline()
		if err != nil {
			return nil, err
		}
		convertRow(img.Pix[y*img.Width*out:], row, img.Width, native, out)
	}
	return img, nil
}

// convertRow maps a native row (1 or 3 channels) onto the requested layout.
func convertRow(dst, src []byte, width, native, out int) {
	if native == out {
		copy(dst[:width*out], src[:width*native])
		return
	}
	for x := 0; x < width; x++ {
		var r, g, b byte
		if native == 1 {
			r, g, b = src[x], src[x], src[x]
		} else {
			r, g, b = src[x*3], src[x*3+1], src[x*3+2]
		}
		switch out {
		case 1:
			dst[x] = rgbToY(int32(r), int32(g), int32(b))
		case 3:
			dst[x*3+0] = r
			dst[x*3+1] = g
			dst[x*3+2] = b
		case 4:
			dst[x*4+0] = r
			dst[x*4+1] = g
			dst[x*4+2] = b
			dst[x*4+3] = 255
		}
	}
}

// DecompressFromMemory decodes an in-memory JPEG stream.
func DecompressFromMemory(data []byte, reqChannels int) (*Image, error) {
	return decompress(NewDecoder(bytes.NewReader(data)), reqChannels)
}

// DecompressFromFile decodes the JPEG file at path.
func DecompressFromFile(path string, reqChannels int) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jfif: open %s: %w", path, err)
	}
	defer f.Close()
	return decompress(NewDecoder(bufio.NewReader(f)), reqChannels)
}

// Decode reads a JPEG stream from r and returns it as an image.Image:
// *image.Gray for single-component frames, *image.RGBA otherwise.
func Decode(r io.Reader) (image.Image, error) {
	img, err := decompress(NewDecoder(r), 0)
	if err != nil {
		return nil, err
	}
	if img.Channels == 1 {
		out := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
		for y := 0; y < img.Height; y++ {
			copy(out.Pix[y*out.Stride:], img.Pix[y*img.Width:(y+1)*img.Width])
		}
		return out, nil
	}
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		src := img.Pix[y*img.Width*3:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < img.Width; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 255
		}
	}
	return out, nil
}
