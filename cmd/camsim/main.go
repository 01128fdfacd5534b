package main

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/mattn/go-mjpeg"
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/FrameScope/internal/camera"
	"github.com/bryanchriswhite/FrameScope/internal/logger"
)

const (
	defaultWidth  = 640
	defaultHeight = 480
)

// Simulator answers the two camera endpoints FrameScope uses
type Simulator struct {
	auth  string
	start time.Time

	mu       sync.Mutex
	settings map[string]string
}

// NewSimulator creates a simulator. An empty auth token accepts any client.
func NewSimulator(auth string) *Simulator {
	return &Simulator{
		auth:     auth,
		start:    time.Now(),
		settings: make(map[string]string),
	}
}

// Router mounts the camera endpoints
func (s *Simulator) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/axis-cgi/admin/param.cgi", s.handleParams).Methods("GET")
	r.HandleFunc("/axis-cgi/mjpg/video.cgi", s.handleVideo).Methods("GET")
	return r
}

// Settings returns the sensor settings received so far
func (s *Simulator) Settings() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

func (s *Simulator) authorized(w http.ResponseWriter, r *http.Request) bool {
	if s.auth == "" || r.Header.Get("Authorization") == "Basic "+s.auth {
		return true
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="camsim"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return false
}

func (s *Simulator) handleParams(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	q := r.URL.Query()
	if q.Get("action") != "update" {
		http.Error(w, "# Request failed: unsupported action", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	for k, v := range q {
		if strings.HasPrefix(k, "ImageSource.") && len(v) > 0 {
			s.settings[k] = v[0]
		}
	}
	s.mu.Unlock()

	logger.WithComponent("camsim").Info().Interface("settings", q).Msg("Settings updated")
	fmt.Fprint(w, "OK\r\n")
}

// parseResolution reads "WxH", falling back to the default size
func parseResolution(res string) (int, int) {
	wStr, hStr, ok := strings.Cut(strings.ToLower(res), "x")
	if !ok {
		return defaultWidth, defaultHeight
	}
	w, errW := strconv.Atoi(wStr)
	h, errH := strconv.Atoi(hStr)
	if errW != nil || errH != nil || w < 16 || h < 16 || w > 4096 || h > 4096 {
		return defaultWidth, defaultHeight
	}
	return w, h
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < lo || n > hi {
		return def
	}
	return n
}

func (s *Simulator) handleVideo(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(w, r) {
		return
	}
	log := logger.WithComponent("camsim")

	fps := queryInt(r, "des_fps", 5, 1, 60)
	quality := 100 - queryInt(r, "compression", 20, 0, 99)
	width, height := parseResolution(r.URL.Query().Get("resolution"))
	scene := Scene{Width: width, Height: height}

	interval := time.Second / time.Duration(fps)
	stream := mjpeg.NewStream()

	log.Info().
		Str("client", r.RemoteAddr).
		Int("fps", fps).
		Int("width", width).
		Int("height", height).
		Msg("Stream started")

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var n uint64
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			n++
			var buf bytes.Buffer
			img := scene.Render(time.Since(s.start).Seconds(), n)
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
				log.Error().Err(err).Msg("Encode failed")
				return
			}
			stream.Update(buf.Bytes())
		}
	}()

	// ServeHTTP returns once a write to the client fails.
	stream.ServeHTTP(w, r)
	close(done)
	log.Info().Str("client", r.RemoteAddr).Msg("Stream ended")
}

func main() {
	var (
		addr     string
		username string
		password string
		level    string
	)

	cmd := &cobra.Command{
		Use:   "camsim",
		Short: "Simulated MJPEG network camera for FrameScope development",
		Example: `  camsim --addr :8081
  framescope view --camera 127.0.0.1 # with camera.port set to 8081`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(level, false)

			auth := ""
			if username != "" || password != "" {
				auth = camera.BasicAuth(username, password)
			}
			sim := NewSimulator(auth)

			logger.WithComponent("camsim").Info().Str("addr", addr).Msg("Listening")
			srv := &http.Server{
				Addr:              addr,
				Handler:           sim.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")
	cmd.Flags().StringVar(&username, "username", "", "require this Basic auth user")
	cmd.Flags().StringVar(&password, "password", "", "require this Basic auth password")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level (debug, info, warn, error)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
