package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/FrameScope/internal/api"
	"github.com/bryanchriswhite/FrameScope/internal/camera"
	"github.com/bryanchriswhite/FrameScope/internal/capture"
	"github.com/bryanchriswhite/FrameScope/internal/config"
	"github.com/bryanchriswhite/FrameScope/internal/display"
	"github.com/bryanchriswhite/FrameScope/internal/framebuffer"
	"github.com/bryanchriswhite/FrameScope/internal/logger"
	"github.com/bryanchriswhite/FrameScope/internal/output"
	"github.com/bryanchriswhite/FrameScope/internal/processor"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Stream from the camera and show original and processed frames",
	Long: `Connect to the camera, push the sensor settings, and stream frames
through the selected processor. Frames are shown in an X11 window and on the
web viewer until interrupted. Any camera, decode or processing failure stops
the stream and exits with status 1.`,
	Example: `  # View with the configured camera and processor
  framescope view

  # Threshold a different camera without opening a window
  framescope view --camera 10.0.0.12 --processor color-threshold --x11=false

  # Web viewer on a custom port
  framescope view --port 9090`,
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().Bool("x11", true, "open the X11 viewer window")
	viewCmd.Flags().Bool("server", true, "serve the web viewer")
	viewCmd.Flags().String("plane", "", "colour plane for color-plane and detect-ellipses (red, green, blue)")

	viper.BindPFlag("display.x11", viewCmd.Flags().Lookup("x11"))
	viper.BindPFlag("server.enabled", viewCmd.Flags().Lookup("server"))
	viper.BindPFlag("processor.plane", viewCmd.Flags().Lookup("plane"))
}

func runView(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.WithComponent("view")
	log.Info().Str("path", configMgr.GetConfigPath()).Msg("Configuration loaded")

	proc, err := processor.New(cfg.Processor.Name, processor.Options{Plane: cfg.Processor.Plane})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	buf := framebuffer.New()
	client := camera.NewClient(cfg.Camera.ClientConfig())
	loop := capture.New(client, proc, buf, capture.Options{
		Configure:  cfg.Camera.Configure,
		BufferSize: cfg.Stream.BufferSize,
	})

	var displayStatus api.DisplayStatus
	if cfg.Display.X11 {
		displayMgr, err := startDisplay(&cfg.Display)
		if err != nil {
			// The web viewer is still useful without a window.
			log.Warn().Err(err).Msg("X11 viewer unavailable")
		} else {
			shutdown := runSurface(ctx, cancel, displayMgr, buf)
			defer shutdown()
			displayStatus = displayMgr
		}
	}

	if cfg.Server.Enabled {
		startServer(ctx, cfg, buf, loop, configMgr, displayStatus)
	}

	log.Info().
		Str("camera", client.Address()).
		Str("processor", proc.Name()).
		Msg("Press Ctrl+C to stop")

	if err := loop.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("Shutting down gracefully...")
	return nil
}

func startDisplay(cfg *config.DisplayConfig) (*display.Manager, error) {
	displayMgr, err := display.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	if err := displayMgr.Start(); err != nil {
		return nil, err
	}
	return displayMgr, nil
}

// surface paints from the buffer until ctx ends. Stop releases it and must
// not be called while Run is still going.
type surface interface {
	Run(ctx context.Context, buf *framebuffer.Buffer) error
	Stop()
}

// runSurface runs s in the background and cancels the view when it ends.
// The returned shutdown cancels ctx, waits for Run to return and then stops s.
func runSurface(ctx context.Context, cancel context.CancelFunc, s surface, buf *framebuffer.Buffer) (shutdown func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := s.Run(ctx, buf)
		if errors.Is(err, display.ErrWindowClosed) {
			logger.WithComponent("view").Info().Msg("Viewer window closed")
		} else if err != nil {
			logger.WithComponent("view").Error().Err(err).Msg("Viewer stopped")
		}
		cancel()
	}()

	return func() {
		cancel()
		<-done
		s.Stop()
	}
}

func startServer(ctx context.Context, cfg *config.Config, buf *framebuffer.Buffer, loop *capture.Loop, configMgr *config.Manager, displayStatus api.DisplayStatus) {
	log := logger.WithComponent("view")
	server := api.NewServer(buf, loop, configMgr, displayStatus)

	for _, source := range []string{"original", "processed"} {
		out := output.NewMJPEGOutput(output.Config{Source: source})
		if err := out.Start(); err != nil {
			log.Error().Err(err).Str("source", source).Msg("Failed to start stream output")
			continue
		}
		go func() {
			<-ctx.Done()
			out.Stop()
		}()
		go output.Pump(ctx, buf, source, out)
		server.AddStream(source, out)
	}

	go func() {
		if err := server.Start(ctx, cfg.Server.Port); err != nil {
			log.Error().Err(err).Int("port", cfg.Server.Port).Msg("Web viewer stopped")
		}
	}()
	log.Info().Msgf("Web viewer: http://localhost:%d", cfg.Server.Port)
}
