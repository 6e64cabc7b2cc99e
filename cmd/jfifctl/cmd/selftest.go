package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"

	"github.com/jpfielding/jfif.go/pkg/compress/jfif"
	"github.com/jpfielding/jfif.go/pkg/pixel"
	"github.com/jpfielding/jfif.go/pkg/tga"
	"github.com/jpfielding/jfif.go/pkg/util"
	"github.com/spf13/cobra"
)

// NewSelfTestCmd exhaustively re-encodes a source image over every quality,
// subsampling and optimization combination and verifies the round trip.
func NewSelfTestCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest <source>",
		Short: "exhaustive compressor round-trip test",
		Long:  "exhaustive compressor round-trip test over quality x subsampling x optimization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			altDecoder, _ := cmd.Flags().GetBool("alt-decoder")
			lumaOnly, _ := cmd.Flags().GetBool("luma")
			dump, _ := cmd.Flags().GetString("dump")
			step, _ := cmd.Flags().GetInt("quality-step")
			if step < 1 {
				step = 1
			}

			img, err := loadImage(args[0])
			if err != nil {
				return fmt.Errorf("failed loading %q: %w", args[0], err)
			}
			ref, err := toChannels(img, 3)
			if err != nil {
				return err
			}

			runID := util.HashUUID(map[string]any{"source": args[0], "alt": altDecoder, "step": step})
			slog.InfoContext(ctx, "selftest starting",
				slog.String("run", runID),
				slog.Int("width", ref.Width),
				slog.Int("height", ref.Height))

			buf := make([]byte, bufferUpperBound(ref))
			rebuf := make([]byte, len(buf))
			var lastDecoded *tga.Image
			var thresholdPSNR float64
			for quality := 1; quality <= 100; quality += step {
				for ss := jfif.YOnly; ss <= jfif.H2V2; ss++ {
					for _, optimize := range []bool{false, true} {
						params := jfif.Params{
							Quality:     quality,
							Subsampling: ss,
							TwoPass:     optimize,
						}
						n, err := jfif.CompressToMemory(buf, ref.Width, ref.Height, 3, ref.Pix, params)
						if err != nil {
							return fmt.Errorf("q=%d %s optimize=%v: %w", quality, ss, optimize, err)
						}
						stream := buf[:n]

						// Both optimizing and non-optimizing encodes must be
						// reproducible byte for byte.
						n2, err := jfif.CompressToMemory(rebuf, ref.Width, ref.Height, 3, ref.Pix, params)
						if err != nil {
							return err
						}
						if n2 != n || !bytes.Equal(stream, rebuf[:n2]) {
							return fmt.Errorf("q=%d %s optimize=%v: re-encode is not deterministic", quality, ss, optimize)
						}

						decoded, err := decodeStream(stream, altDecoder)
						if err != nil {
							return fmt.Errorf("q=%d %s optimize=%v: decode: %w", quality, ss, optimize, err)
						}
						if decoded.Width != ref.Width || decoded.Height != ref.Height {
							return fmt.Errorf("q=%d %s: decoded %dx%d, want %dx%d",
								quality, ss, decoded.Width, decoded.Height, ref.Width, ref.Height)
						}
						lastDecoded = decoded

						res := pixel.Compare(ref.Width, ref.Height, ref.Pix, 3, decoded.Pix, decoded.Channels,
							lumaOnly || ss == jfif.YOnly)
						if quality == 1 {
							thresholdPSNR = res.PSNR
						}
						if res.PSNR < 6 || (thresholdPSNR > 0 && res.PSNR < thresholdPSNR-3) {
							return fmt.Errorf("q=%d %s optimize=%v: PSNR %.2f collapsed (threshold %.2f)",
								quality, ss, optimize, res.PSNR, thresholdPSNR)
						}
						slog.DebugContext(ctx, "combination ok",
							slog.Int("quality", quality),
							slog.String("subsampling", ss.String()),
							slog.Bool("optimize", optimize),
							slog.Int("bytes", n),
							slog.String("md5", util.Md5ThenHex(stream)),
							slog.Float64("psnr", res.PSNR))
					}
				}
			}

			if dump != "" && lastDecoded != nil {
				f, err := os.Create(dump)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := tga.Encode(f, lastDecoded, false); err != nil {
					return err
				}
			}

			slog.InfoContext(ctx, "selftest passed", slog.String("run", runID))
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.Bool("alt-decoder", false, "round-trip through the standard library decoder instead")
	pf.Bool("luma", false, "compare luma only")
	pf.StringP("dump", "w", "", "write the last round-tripped image to a TGA file")
	pf.Int("quality-step", 1, "quality increment per iteration")
	return cmd
}

// decodeStream expands a JPEG stream with either this codec or the standard
// library decoder.
func decodeStream(stream []byte, alt bool) (*tga.Image, error) {
	if !alt {
		img, err := jfif.DecompressFromMemory(stream, 3)
		if err != nil {
			return nil, err
		}
		return &tga.Image{Width: img.Width, Height: img.Height, Channels: img.Channels, Pix: img.Pix}, nil
	}
	decoded, err := jpeg.Decode(bytes.NewReader(stream))
	if err != nil {
		return nil, err
	}
	return fromImage(decoded), nil
}

// fromImage flattens any image.Image to an interleaved RGB buffer.
func fromImage(src image.Image) *tga.Image {
	b := src.Bounds()
	out := &tga.Image{Width: b.Dx(), Height: b.Dy(), Channels: 3}
	out.Pix = make([]byte, out.Width*out.Height*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			out.Pix[i+0] = byte(r >> 8)
			out.Pix[i+1] = byte(g >> 8)
			out.Pix[i+2] = byte(bl >> 8)
			i += 3
		}
	}
	return out
}

// toChannels widens or narrows a raw image to the requested channel count.
func toChannels(img *tga.Image, channels int) (*tga.Image, error) {
	if img.Channels == channels {
		return img, nil
	}
	out := &tga.Image{Width: img.Width, Height: img.Height, Channels: channels}
	out.Pix = make([]byte, img.Width*img.Height*channels)
	for i := 0; i < img.Width*img.Height; i++ {
		var r, g, b byte
		switch img.Channels {
		case 1:
			r, g, b = img.Pix[i], img.Pix[i], img.Pix[i]
		case 3, 4:
			r = img.Pix[i*img.Channels+0]
			g = img.Pix[i*img.Channels+1]
			b = img.Pix[i*img.Channels+2]
		default:
			return nil, fmt.Errorf("unsupported source channels %d", img.Channels)
		}
		switch channels {
		case 1:
			out.Pix[i] = byte((int(r)*19595 + int(g)*38470 + int(b)*7471 + 32768) >> 16)
		case 3:
			out.Pix[i*3+0], out.Pix[i*3+1], out.Pix[i*3+2] = r, g, b
		case 4:
			out.Pix[i*4+0], out.Pix[i*4+1], out.Pix[i*4+2], out.Pix[i*4+3] = r, g, b, 255
		}
	}
	return out, nil
}
