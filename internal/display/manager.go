package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/FrameScope/internal/config"
	"github.com/bryanchriswhite/FrameScope/internal/framebuffer"
	"github.com/bryanchriswhite/FrameScope/internal/logger"
)

// ErrWindowClosed is returned by Run when the user closes the window
var ErrWindowClosed = errors.New("display window closed")

// pointerInterval is how often the pointer is polled for the pixel readout
const pointerInterval = 100 * time.Millisecond

// Manager owns the X11 viewer window
type Manager struct {
	conn          *xgb.Conn
	screen        *xproto.ScreenInfo
	displayWindow xproto.Window
	gc            xproto.Gcontext
	wmDelete      xproto.Atom
	width         int
	height        int
	running       bool
	mu            sync.RWMutex

	scene   *Scene
	pointer image.Point
}

// NewManager connects to the X server named by $DISPLAY
func NewManager(cfg *config.DisplayConfig) (*Manager, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	width, height := cfg.Width, cfg.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 680
	}

	return &Manager{
		conn:    conn,
		screen:  screen,
		width:   width,
		height:  height,
		scene:   NewScene(width, height),
		pointer: image.Pt(-1, -1),
	}, nil
}

// Start creates and maps the viewer window
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("display already running")
	}
	log := logger.WithComponent("display")

	windowID, err := xproto.NewWindowId(m.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	m.displayWindow = windowID

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}

	err = xproto.CreateWindowChecked(
		m.conn,
		m.screen.RootDepth,
		m.displayWindow,
		m.screen.Root,
		0, 0,
		uint16(m.width), uint16(m.height),
		0,
		xproto.WindowClassInputOutput,
		m.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	if err := m.setWindowTitle("FrameScope"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := m.setWindowClass("framescope", "FrameScope"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}
	if err := m.watchDelete(); err != nil {
		log.Warn().Err(err).Msg("Failed to register WM_DELETE_WINDOW")
	}

	if err := xproto.MapWindowChecked(m.conn, m.displayWindow).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(m.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	m.gc = gc
	err = xproto.CreateGCChecked(
		m.conn,
		m.gc,
		xproto.Drawable(m.displayWindow),
		xproto.GcForeground|xproto.GcBackground,
		[]uint32{0xffffffff, 0x00000000},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	m.conn.Sync()

	m.running = true
	log.Info().
		Int("width", m.width).
		Int("height", m.height).
		Uint32("window_id", uint32(m.displayWindow)).
		Msg("Viewer window created")
	return nil
}

// Stop destroys the window and closes the X connection
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.gc != 0 {
		xproto.FreeGC(m.conn, m.gc)
	}
	if m.displayWindow != 0 {
		xproto.DestroyWindow(m.conn, m.displayWindow)
		m.conn.Sync()
	}
	m.conn.Close()

	m.running = false
	logger.WithComponent("display").Info().Msg("Viewer window closed")
}

// IsRunning returns whether the window is mapped
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// GetWindowID returns the viewer window ID
func (m *Manager) GetWindowID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(m.displayWindow)
}

// Run repaints the window from buf on Expose, on every publish and when the
// pointer moves. It returns nil when ctx ends and ErrWindowClosed when the
// window is closed. Stop must wait for Run to return.
func (m *Manager) Run(ctx context.Context, buf *framebuffer.Buffer) error {
	if !m.IsRunning() {
		return fmt.Errorf("display not running")
	}
	log := logger.WithComponent("display")

	ctx, cancelEvents := context.WithCancel(ctx)
	defer cancelEvents()

	// The reader ends when Stop closes the connection.
	events := make(chan xgb.Event, 16)
	go func() {
		defer close(events)
		for {
			ev, err := m.conn.WaitForEvent()
			if ev == nil && err == nil {
				return
			}
			if err != nil {
				log.Debug().Err(err).Msg("X error")
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	updates, cancel := buf.Subscribe()
	defer cancel()

	ticker := time.NewTicker(pointerInterval)
	defer ticker.Stop()

	paint := func() {
		v, _ := buf.Snapshot()
		if err := m.putImage(m.scene.Compose(v, m.pointer)); err != nil {
			log.Error().Err(err).Msg("Failed to paint")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			paint()
		case <-ticker.C:
			if p, ok := m.queryPointer(); ok && p != m.pointer {
				m.pointer = p
				paint()
			}
		case ev, ok := <-events:
			if !ok {
				return ErrWindowClosed
			}
			switch e := ev.(type) {
			case xproto.ExposeEvent:
				if e.Count == 0 {
					paint()
				}
			case xproto.ClientMessageEvent:
				if m.wmDelete != 0 && e.Format == 32 && xproto.Atom(e.Data.Data32[0]) == m.wmDelete {
					return ErrWindowClosed
				}
			case xproto.DestroyNotifyEvent:
				return ErrWindowClosed
			}
		}
	}
}

// queryPointer returns the pointer position relative to the window
func (m *Manager) queryPointer() (image.Point, bool) {
	reply, err := xproto.QueryPointer(m.conn, m.displayWindow).Reply()
	if err != nil || !reply.SameScreen {
		return image.Point{}, false
	}
	return image.Pt(int(reply.WinX), int(reply.WinY)), true
}

// putImage uploads img in as many PutImage requests as the server's maximum
// request length needs.
func (m *Manager) putImage(img *image.RGBA) error {
	depth := m.screen.RootDepth
	setup := xproto.Setup(m.conn)

	var bitsPerPixel, scanlinePad uint8
	for _, format := range setup.PixmapFormats {
		if format.Depth == depth {
			bitsPerPixel = format.BitsPerPixel
			scanlinePad = format.ScanlinePad
			break
		}
	}
	if bitsPerPixel == 0 {
		return fmt.Errorf("no format found for depth %d", depth)
	}

	data, stride, err := encodeZPixmap(img, bitsPerPixel, scanlinePad, depth)
	if err != nil {
		return err
	}

	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	rows := rowsPerRequest(setup.MaximumRequestLength, stride)
	for y := 0; y < height; y += rows {
		n := min(rows, height-y)
		err := xproto.PutImageChecked(
			m.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(m.displayWindow),
			m.gc,
			uint16(width),
			uint16(n),
			0, int16(y),
			0,
			depth,
			data[y*stride:(y+n)*stride],
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}
	return nil
}

// encodeZPixmap converts img to the server's ZPixmap layout: BGR(x) pixels,
// rows padded to scanlinePad bits.
func encodeZPixmap(img *image.RGBA, bitsPerPixel, scanlinePad uint8, depth byte) ([]byte, int, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	bytesPerPixel := int(bitsPerPixel) / 8
	if bytesPerPixel != 3 && bytesPerPixel != 4 {
		return nil, 0, fmt.Errorf("unsupported bytes per pixel: %d", bytesPerPixel)
	}
	padBytes := max(1, int(scanlinePad)/8)
	stride := (width*bytesPerPixel + padBytes - 1) / padBytes * padBytes

	data := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := data[y*stride:]
		for x := 0; x < width; x++ {
			s, d := x*4, x*bytesPerPixel
			dst[d] = src[s+2]
			dst[d+1] = src[s+1]
			dst[d+2] = src[s]
			if bytesPerPixel == 4 && depth == 32 {
				dst[d+3] = src[s+3]
			}
		}
	}
	return data, stride, nil
}

// rowsPerRequest is how many rows of stride bytes fit in one PutImage.
// maxLen is in 4-byte units, as reported in the connection setup.
func rowsPerRequest(maxLen uint16, stride int) int {
	const header = 24
	if stride <= 0 {
		return 1
	}
	return max(1, (int(maxLen)*4-header)/stride)
}

func (m *Manager) setWindowTitle(title string) error {
	titleAtom, err := m.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := m.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}

	return xproto.ChangePropertyChecked(
		m.conn,
		xproto.PropModeReplace,
		m.displayWindow,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

func (m *Manager) setWindowClass(instance, class string) error {
	classAtom, err := m.getAtom("WM_CLASS")
	if err != nil {
		return err
	}

	// WM_CLASS format: instance\0class\0
	classStr := instance + "\x00" + class + "\x00"

	return xproto.ChangePropertyChecked(
		m.conn,
		xproto.PropModeReplace,
		m.displayWindow,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

// watchDelete asks the window manager for a ClientMessage instead of killing
// the connection when the window is closed.
func (m *Manager) watchDelete() error {
	protocols, err := m.getAtom("WM_PROTOCOLS")
	if err != nil {
		return err
	}
	del, err := m.getAtom("WM_DELETE_WINDOW")
	if err != nil {
		return err
	}

	data := make([]byte, 4)
	xgb.Put32(data, uint32(del))
	err = xproto.ChangePropertyChecked(
		m.conn,
		xproto.PropModeReplace,
		m.displayWindow,
		protocols,
		xproto.AtomAtom,
		32,
		1,
		data,
	).Check()
	if err != nil {
		return err
	}
	m.wmDelete = del
	return nil
}

func (m *Manager) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(m.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
