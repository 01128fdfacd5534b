package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/FrameScope/internal/capture"
	"github.com/bryanchriswhite/FrameScope/internal/config"
	"github.com/bryanchriswhite/FrameScope/internal/framebuffer"
	"github.com/bryanchriswhite/FrameScope/internal/logger"
	"github.com/bryanchriswhite/FrameScope/internal/output"
	"github.com/bryanchriswhite/FrameScope/internal/vision"
)

const version = "0.2.0"

// LoopStatus is the part of the capture loop the API reports on
type LoopStatus interface {
	Stats() capture.Stats
}

// DisplayStatus is implemented by the native display surface
type DisplayStatus interface {
	IsRunning() bool
	GetWindowID() uint32
}

// Status is the JSON body of /api/status and of every websocket message
type Status struct {
	State     string            `json:"state"`
	SessionID string            `json:"session_id"`
	Frames    uint64            `json:"frames"`
	Skipped   uint64            `json:"skipped"`
	Version   uint64            `json:"version"`
	Text      string            `json:"text"`
	HasPair   bool              `json:"has_pair"`
	LastError string            `json:"last_error,omitempty"`
	Buffer    framebuffer.Stats `json:"buffer"`

	Streams map[string]output.MJPEGStats `json:"streams,omitempty"`
}

// Pixel is the JSON body of /api/pixel
type Pixel struct {
	Source string `json:"source"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	R      uint8  `json:"r"`
	G      uint8  `json:"g"`
	B      uint8  `json:"b"`
	H      uint8  `json:"h"`
	S      uint8  `json:"s"`
	L      uint8  `json:"l"`
}

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	buf        *framebuffer.Buffer
	loop       LoopStatus
	configMgr  *config.Manager
	displayMgr DisplayStatus
	streams    map[string]*output.MJPEGOutput
	upgrader   websocket.Upgrader
}

// NewServer creates a new API server. loop, configMgr and displayMgr may be nil.
func NewServer(buf *framebuffer.Buffer, loop LoopStatus, configMgr *config.Manager, displayMgr DisplayStatus) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		buf:        buf,
		loop:       loop,
		configMgr:  configMgr,
		displayMgr: displayMgr,
		streams:    make(map[string]*output.MJPEGOutput),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// AddStream mounts an MJPEG output under /stream/{source} and /snapshot/{source}
func (s *Server) AddStream(source string, out *output.MJPEGOutput) {
	s.streams[source] = out
}

// Handler returns the routed handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/status/ws", s.handleStatusStream)
	api.HandleFunc("/pixel", s.handlePixel).Methods("GET")

	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/display/status", s.handleDisplayStatus).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/stream/{source}", s.handleStream).Methods("GET")
	s.router.HandleFunc("/snapshot/{source}", s.handleSnapshot).Methods("GET")
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Start serves on port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	log := logger.WithComponent("api")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Msgf("Starting server on http://localhost%s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// status combines the loop counters with one snapshot of the buffer
func (s *Server) status() Status {
	var st Status
	if s.loop != nil {
		ls := s.loop.Stats()
		st.State = ls.State
		st.SessionID = ls.SessionID
		st.Frames = ls.Frames
		st.Skipped = ls.Skipped
		st.LastError = ls.LastError
	}
	if v, ok := s.buf.Snapshot(); ok {
		st.HasPair = true
		st.Version = v.Version()
		st.Text = v.StatusText()
	}
	st.Buffer = s.buf.Stats()
	if len(s.streams) > 0 {
		st.Streams = make(map[string]output.MJPEGStats, len(s.streams))
		for source, out := range s.streams {
			st.Streams[source] = out.Stats()
		}
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := s.buf.Subscribe()
	defer cancel()

	// Reading is only needed to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.status()); err != nil {
		log.Debug().Err(err).Msg("WebSocket write failed")
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-updates:
			if err := conn.WriteJSON(s.status()); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	}
}

func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := q.Get("source")
	if source == "" {
		source = "original"
	}
	if source != "original" && source != "processed" {
		http.Error(w, "source must be original or processed", http.StatusBadRequest)
		return
	}
	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	if errX != nil || errY != nil {
		http.Error(w, "x and y must be integers", http.StatusBadRequest)
		return
	}

	v, ok := s.buf.Snapshot()
	if !ok {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	c, hsl, ok := vision.PixelAt(v.Image(source), x, y)
	if !ok {
		http.Error(w, "coordinates outside the image", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, Pixel{
		Source: source,
		X:      x,
		Y:      y,
		R:      c.R,
		G:      c.G,
		B:      c.B,
		H:      hsl.H,
		S:      hsl.S,
		L:      hsl.L,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	out, ok := s.streams[mux.Vars(r)["source"]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	out.GetHTTPHandler()(w, r)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	out, ok := s.streams[mux.Vars(r)["source"]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	out.GetSnapshotHandler()(w, r)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "no configuration loaded", http.StatusNotFound)
		return
	}
	cfg := *s.configMgr.Get()
	cfg.Camera.Password = ""
	cfg.Camera.AuthToken = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleDisplayStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"enabled":   false,
		"running":   false,
		"window_id": 0,
	}

	if s.displayMgr != nil {
		status["enabled"] = true
		status["running"] = s.displayMgr.IsRunning()
		status["window_id"] = s.displayMgr.GetWindowID()
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>FrameScope</title>
    <style>
        body { font-family: sans-serif; background: #1e1e1e; color: #ddd; margin: 20px; }
        .row { display: flex; gap: 12px; }
        img { background: #000; cursor: crosshair; max-width: 640px; }
        pre { background: #000; padding: 10px; min-height: 6em; }
    </style>
</head>
<body>
    <h1>FrameScope</h1>
    <div class="row">
        <div><img id="original" src="/stream/original"><pre id="pixel">Click an image to sample a pixel.</pre></div>
        <div><img id="processed" src="/stream/processed"><pre id="status"></pre></div>
    </div>
    <script>
        const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(proto + location.host + '/api/status/ws');
        ws.onmessage = (ev) => {
            const st = JSON.parse(ev.data);
            document.getElementById('status').textContent =
                st.state + '  frame ' + st.version + '\n\n' + (st.text || '');
        };
        for (const source of ['original', 'processed']) {
            const img = document.getElementById(source);
            img.addEventListener('click', async (ev) => {
                const sx = img.naturalWidth / img.clientWidth;
                const sy = img.naturalHeight / img.clientHeight;
                const x = Math.floor(ev.offsetX * sx), y = Math.floor(ev.offsetY * sy);
                const resp = await fetch('/api/pixel?source=' + source + '&x=' + x + '&y=' + y);
                if (!resp.ok) { return; }
                const p = await resp.json();
                document.getElementById('pixel').textContent =
                    'Pixel colour at (' + p.x + ', ' + p.y + '):\n' +
                    'R: ' + p.r + '\tH: ' + p.h + '\n' +
                    'G: ' + p.g + '\tS: ' + p.s + '\n' +
                    'B: ' + p.b + '\tL: ' + p.l;
            });
        }
    </script>
</body>
</html>`
