package commands

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/FrameScope/internal/camera"
	"github.com/bryanchriswhite/FrameScope/internal/logger"
	"github.com/bryanchriswhite/FrameScope/internal/mjpeg"
)

var (
	probeFrames  int
	probeOut     string
	probeTimeout time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the camera answers and streams decodable frames",
	Long: `Configure the camera, open the MJPEG stream and read a few frames.
Each frame's size and JPEG dimensions are printed; the first one can be
saved to a file.`,
	Example: `  framescope probe
  framescope probe --camera 10.0.0.12 --frames 10 --out first.jpg`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().IntVarP(&probeFrames, "frames", "n", 3, "number of frames to read")
	probeCmd.Flags().StringVarP(&probeOut, "out", "o", "", "write the first frame to this file")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 15*time.Second, "give up after this long")
}

func runProbe(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("probe")

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	client := camera.NewClient(cfg.Camera.ClientConfig())
	if cfg.Camera.Configure {
		if err := client.ConnectAndConfigure(ctx); err != nil {
			return fmt.Errorf("configure %s: %w", client.Address(), err)
		}
		log.Info().Str("camera", client.Address()).Msg("Settings accepted")
	}

	conn, err := client.OpenStream(ctx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	dec := mjpeg.NewDecoder(conn, cfg.Stream.BufferSize)
	start := time.Now()
	for i := 1; i <= probeFrames; i++ {
		payload, err := dec.NextFrame()
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		img, err := jpeg.Decode(bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("frame %d: decode jpeg: %w", i, err)
		}
		b := img.Bounds()
		fmt.Printf("frame %d: %d bytes, %dx%d\n", i, len(payload), b.Dx(), b.Dy())

		if i == 1 && probeOut != "" {
			if err := os.WriteFile(probeOut, payload, 0644); err != nil {
				return fmt.Errorf("failed to save frame: %w", err)
			}
		}
	}

	st := dec.Stats()
	elapsed := time.Since(start)
	fmt.Printf("%d frames, %d skipped parts, %d bytes in %s (%.1f fps)\n",
		st.Frames, st.Skipped, st.Bytes, elapsed.Round(time.Millisecond),
		float64(st.Frames)/elapsed.Seconds())
	return nil
}
