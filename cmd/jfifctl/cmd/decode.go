package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jpfielding/jfif.go/pkg/compress/jfif"
	"github.com/jpfielding/jfif.go/pkg/tga"
	"github.com/spf13/cobra"
)

// NewDecodeCmd expands a JPEG stream into a TGA file.
func NewDecodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <source.jpg> <dest.tga>",
		Short: "decompress a JPEG to TGA",
		Long:  "decompress a JPEG to TGA",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := args[0], args[1]

			channels, _ := cmd.Flags().GetInt("channels")
			compress, _ := cmd.Flags().GetBool("rle")

			img, err := jfif.DecompressFromFile(src, channels)
			if err != nil {
				return fmt.Errorf("failed decoding %q: %w", src, err)
			}

			f, err := os.Create(dst)
			if err != nil {
				return err
			}
			defer f.Close()
			out := &tga.Image{Width: img.Width, Height: img.Height, Channels: img.Channels, Pix: img.Pix}
			if err := tga.Encode(f, out, compress); err != nil {
				return err
			}
			slog.InfoContext(ctx, "decoded",
				slog.String("dest", dst),
				slog.Int("width", img.Width),
				slog.Int("height", img.Height),
				slog.Int("channels", img.Channels))
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.IntP("channels", "c", 0, "output channels (0 native, 1 gray, 3 RGB, 4 RGBA)")
	pf.Bool("rle", false, "run-length encode the TGA output")
	return cmd
}
