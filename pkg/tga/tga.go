// Package tga reads and writes Truevision TGA images: true-color and
// grayscale, raw or run-length encoded. It is the file format the CLI's
// decode path emits and the self-test harness reads.
package tga

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jpfielding/jfif.go/pkg/compress/rle"
)

const (
	typeNone      = 0
	typeTrueColor = 2
	typeGray      = 3
	typeRLETrue   = 10
	typeRLEGray   = 11
)

// Image is a decoded TGA frame: 8-bit channels, row-major, RGB(A) order.
type Image struct {
	Width    int
	Height   int
	Channels int // 1, 3 or 4
	Pix      []byte
}

type header struct {
	IDLength   uint8
	CMapType   uint8
	ImageType  uint8
	CMapFirst  uint16
	CMapLen    uint16
	CMapEntry  uint8
	XOrigin    uint16
	YOrigin    uint16
	Width      uint16
	Height     uint16
	Depth      uint8
	Descriptor uint8
}

// Decode reads a TGA stream. Color-mapped images are not supported.
func Decode(r io.Reader) (*Image, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("tga: header: %w", err)
	}
	if h.CMapType != 0 {
		return nil, fmt.Errorf("tga: color-mapped images not supported")
	}

	var channels int
	switch h.ImageType {
	case typeTrueColor, typeRLETrue:
		switch h.Depth {
		case 24:
			channels = 3
		case 32:
			channels = 4
		default:
			return nil, fmt.Errorf("tga: %d bpp true-color not supported", h.Depth)
		}
	case typeGray, typeRLEGray:
		if h.Depth != 8 {
			return nil, fmt.Errorf("tga: %d bpp grayscale not supported", h.Depth)
		}
		channels = 1
	default:
		return nil, fmt.Errorf("tga: image type %d not supported", h.ImageType)
	}

	width, height := int(h.Width), int(h.Height)
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("tga: bad dimensions %dx%d", width, height)
	}

	if h.IDLength > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(h.IDLength)); err != nil {
			return nil, fmt.Errorf("tga: image id: %w", err)
		}
	}

	rowBytes := width * channels
	raw := make([]byte, rowBytes*height)
	compressed := h.ImageType == typeRLETrue || h.ImageType == typeRLEGray
	if compressed {
		src, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("tga: pixel data: %w", err)
		}
		ofs := 0
		for y := 0; y < height; y++ {
			n, err := rle.DecodeRow(raw[y*rowBytes:(y+1)*rowBytes], src[ofs:], channels)
			if err != nil {
				return nil, fmt.Errorf("tga: row %d: %w", y, err)
			}
			ofs += n
		}
	} else {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("tga: pixel data: %w", err)
		}
	}

	img := &Image{Width: width, Height: height, Channels: channels, Pix: make([]byte, len(raw))}
	topDown := h.Descriptor&0x20 != 0
	for y := 0; y < height; y++ {
		srcY := y
		if !topDown {
			srcY = height - 1 - y
		}
		src := raw[srcY*rowBytes : (srcY+1)*rowBytes]
		dst := img.Pix[y*rowBytes : (y+1)*rowBytes]
		if channels == 1 {
			copy(dst, src)
			continue
		}
		for x := 0; x < width; x++ {
			// BGR(A) on disk.
			dst[x*channels+0] = src[x*channels+2]
			dst[x*channels+1] = src[x*channels+1]
			dst[x*channels+2] = src[x*channels+0]
			if channels == 4 {
				dst[x*channels+3] = src[x*channels+3]
			}
		}
	}
	return img, nil
}

// Encode writes img as a top-down TGA, run-length encoded when compress is
// set.
func Encode(w io.Writer, img *Image, compress bool) error {
	if img.Width < 1 || img.Width > 0xFFFF || img.Height < 1 || img.Height > 0xFFFF {
		return fmt.Errorf("tga: bad dimensions %dx%d", img.Width, img.Height)
	}

	var imageType uint8
	switch img.Channels {
	case 1:
		imageType = typeGray
		if compress {
			imageType = typeRLEGray
		}
	case 3, 4:
		imageType = typeTrueColor
		if compress {
			imageType = typeRLETrue
		}
	default:
		return fmt.Errorf("tga: %d channels not supported", img.Channels)
	}

	descriptor := uint8(0x20) // top-down
	if img.Channels == 4 {
		descriptor |= 8 // alpha depth
	}
	h := header{
		ImageType:  imageType,
		Width:      uint16(img.Width),
		Height:     uint16(img.Height),
		Depth:      uint8(img.Channels * 8),
		Descriptor: descriptor,
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("tga: header: %w", err)
	}

	rowBytes := img.Width * img.Channels
	row := make([]byte, rowBytes)
	var packets bytes.Buffer
	for y := 0; y < img.Height; y++ {
		src := img.Pix[y*rowBytes : (y+1)*rowBytes]
		if img.Channels == 1 {
			copy(row, src)
		} else {
			for x := 0; x < img.Width; x++ {
				row[x*img.Channels+0] = src[x*img.Channels+2]
				row[x*img.Channels+1] = src[x*img.Channels+1]
				row[x*img.Channels+2] = src[x*img.Channels+0]
				if img.Channels == 4 {
					row[x*img.Channels+3] = src[x*img.Channels+3]
				}
			}
		}
		if compress {
			packets.Reset()
			rle.EncodeRow(&packets, row, img.Channels)
			if _, err := w.Write(packets.Bytes()); err != nil {
				return fmt.Errorf("tga: row %d: %w", y, err)
			}
		} else {
			if _, err := w.Write(row); err != nil {
				return fmt.Errorf("tga: row %d: %w", y, err)
			}
		}
	}
	return nil
}
