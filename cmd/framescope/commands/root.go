package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/FrameScope/internal/config"
	"github.com/bryanchriswhite/FrameScope/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "framescope",
		Short: "FrameScope - live MJPEG camera viewer with frame analysis",
		Long: `FrameScope connects to a network camera, configures its sensor, and
streams Motion JPEG frames through an image processor. The original and
processed frames are shown side by side together with a status text.

Features:
  • HTTP/1.0 camera control and MJPEG streaming
  • Colour plane, HSL threshold and ellipse detection processors
  • Native X11 viewer with a pixel colour readout
  • Web viewer with MJPEG re-streams and a status websocket
  • Persistent YAML configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/framescope/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("port", 0, "web viewer port (default is 8080)")
	rootCmd.PersistentFlags().String("processor", "", "image processor (color-plane, color-threshold, detect-ellipses)")
	rootCmd.PersistentFlags().String("camera", "", "camera host name or address")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("processor.name", rootCmd.PersistentFlags().Lookup("processor"))
	viper.BindPFlag("camera.host", rootCmd.PersistentFlags().Lookup("camera"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config file, applies command-line overrides and
// initializes logging from the result.
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := configMgr.ApplyOverrides(viper.GetViper()); err != nil {
		return nil, nil, err
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}
