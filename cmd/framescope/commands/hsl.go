package commands

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/FrameScope/internal/vision"
)

var hslImage string

var hslCmd = &cobra.Command{
	Use:   "hsl R G B | --image FILE X Y",
	Short: "Convert a colour to the 0-255 HSL used by the threshold processor",
	Example: `  # A single colour
  framescope hsl 150 60 70

  # The pixel at (120, 45) of a saved frame
  framescope hsl --image first.jpg 120 45`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runHSL,
}

func init() {
	rootCmd.AddCommand(hslCmd)
	hslCmd.Flags().StringVar(&hslImage, "image", "", "sample a pixel of this JPEG or PNG file")
}

func parseBytes(args []string) ([]uint8, error) {
	out := make([]uint8, len(args))
	for i, a := range args {
		n, err := strconv.ParseUint(a, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid component %q: must be 0-255", a)
		}
		out[i] = uint8(n)
	}
	return out, nil
}

func runHSL(cmd *cobra.Command, args []string) error {
	if hslImage == "" {
		if len(args) != 3 {
			return fmt.Errorf("expected R G B")
		}
		rgb, err := parseBytes(args)
		if err != nil {
			return err
		}
		hsl := vision.RGBToHSL(rgb[0], rgb[1], rgb[2])
		fmt.Printf("H: %d\tS: %d\tL: %d\n", hsl.H, hsl.S, hsl.L)
		return nil
	}

	if len(args) != 2 {
		return fmt.Errorf("expected X Y with --image")
	}
	x, errX := strconv.Atoi(args[0])
	y, errY := strconv.Atoi(args[1])
	if errX != nil || errY != nil {
		return fmt.Errorf("invalid coordinates %s, %s", args[0], args[1])
	}

	f, err := os.Open(hslImage)
	if err != nil {
		return err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", hslImage, err)
	}

	c, hsl, ok := vision.PixelAt(img, x, y)
	if !ok {
		b := img.Bounds()
		return fmt.Errorf("(%d, %d) is outside the %dx%d image", x, y, b.Dx(), b.Dy())
	}
	fmt.Printf("Pixel colour at (%d, %d):\nR: %d\tH: %d\nG: %d\tS: %d\nB: %d\tL: %d\n",
		x, y, c.R, hsl.H, c.G, hsl.S, c.B, hsl.L)
	return nil
}
