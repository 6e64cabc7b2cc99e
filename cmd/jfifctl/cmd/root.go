package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jpfielding/jfif.go/pkg/compress/jfif"
	"github.com/jpfielding/jfif.go/pkg/logging"
	"github.com/jpfielding/jfif.go/pkg/tga"
	"github.com/spf13/cobra"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jfifctl",
		Short: "a CLI to encode, decode and exercise the JPEG codec",
		Long:  "jfifctl compresses raw images to JPEG, expands JPEG to TGA, and runs the exhaustive codec self-test",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFile, _ := cmd.Flags().GetString("log-file")

			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				level = slog.LevelInfo
			}
			slog.SetDefault(logging.Logger(logging.Tee(os.Stdout, logFile), false, level))

			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", err)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewEncodeCmd(ctx),
		NewDecodeCmd(ctx),
		NewSelfTestCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "Tee log output to a rotating file")
	return cmd
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(gitsha)
		},
	}
	return cmd
}

// parseSubsampling maps the flag spelling onto the codec enum.
func parseSubsampling(s string) (jfif.Subsampling, error) {
	switch strings.ToLower(s) {
	case "y", "luma", "y_only":
		return jfif.YOnly, nil
	case "h1v1", "444":
		return jfif.H1V1, nil
	case "h2v1", "422":
		return jfif.H2V1, nil
	case "h2v2", "420":
		return jfif.H2V2, nil
	default:
		return 0, fmt.Errorf("unknown subsampling %q (want y|h1v1|h2v1|h2v2)", s)
	}
}

// loadImage reads the source by extension: TGA natively, anything else as
// JPEG.
func loadImage(path string) (*tga.Image, error) {
	if strings.HasSuffix(strings.ToLower(path), ".tga") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return tga.Decode(f)
	}
	img, err := jfif.DecompressFromFile(path, 0)
	if err != nil {
		return nil, err
	}
	return &tga.Image{Width: img.Width, Height: img.Height, Channels: img.Channels, Pix: img.Pix}, nil
}
