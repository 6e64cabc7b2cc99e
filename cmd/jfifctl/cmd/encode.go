package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jpfielding/jfif.go/pkg/compress/jfif"
	"github.com/jpfielding/jfif.go/pkg/tga"
	"github.com/jpfielding/jfif.go/pkg/util"
	"github.com/spf13/cobra"
)

// NewEncodeCmd compresses a source image (TGA or JPEG) to a JPEG file.
func NewEncodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <source> <dest.jpg>",
		Short: "compress an image to JPEG",
		Long:  "compress an image to JPEG",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]

			quality, _ := cmd.Flags().GetInt("quality")
			subsampling, _ := cmd.Flags().GetString("subsampling")
			optimize, _ := cmd.Flags().GetBool("optimize")
			noChroma, _ := cmd.Flags().GetBool("no-chroma-discrim")
			toMemory, _ := cmd.Flags().GetBool("memory")
			restart, _ := cmd.Flags().GetInt("restart")

			ss, err := parseSubsampling(subsampling)
			if err != nil {
				return err
			}
			params := jfif.Params{
				Quality:         quality,
				Subsampling:     ss,
				NoChromaDiscrim: noChroma,
				TwoPass:         optimize,
				RestartInterval: restart,
			}
			if err := params.Check(); err != nil {
				return err
			}

			img, err := loadImage(src)
			if err != nil {
				return fmt.Errorf("failed loading %q: %w", src, err)
			}

			if toMemory {
				buf := make([]byte, bufferUpperBound(img))
				n, err := jfif.CompressToMemory(buf, img.Width, img.Height, img.Channels, img.Pix, params)
				if err != nil {
					return err
				}
				if err := os.WriteFile(dst, buf[:n], 0o644); err != nil {
					return err
				}
				slog.InfoContext(ctx, "encoded via memory",
					slog.String("dest", dst),
					slog.Int("bytes", n),
					slog.String("md5", util.Md5ThenHex(buf[:n])))
				return nil
			}

			if err := jfif.CompressToFile(dst, img.Width, img.Height, img.Channels, img.Pix, params); err != nil {
				return err
			}
			info, _ := os.Stat(dst)
			var size int64
			if info != nil {
				size = info.Size()
			}
			slog.InfoContext(ctx, "encoded",
				slog.String("dest", dst),
				slog.Int64("bytes", size),
				slog.Int("quality", quality),
				slog.String("subsampling", ss.String()))
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.IntP("quality", "q", 75, "quality factor [1,100]")
	pf.StringP("subsampling", "s", "h2v2", "chroma subsampling (y|h1v1|h2v1|h2v2)")
	pf.BoolP("optimize", "o", false, "two-pass Huffman optimization")
	pf.Bool("no-chroma-discrim", false, "use the luma quantization table for chroma")
	pf.BoolP("memory", "m", false, "encode to memory, then write the buffer")
	pf.Int("restart", 0, "restart interval in MCUs (0 disables)")
	return cmd
}

// bufferUpperBound sizes the in-memory target generously, like the
// exhaustive-test driver does.
func bufferUpperBound(img *tga.Image) int {
	n := img.Width * img.Height * 3
	if n < 1024 {
		n = 1024
	}
	return n
}
