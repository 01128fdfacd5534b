package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/FrameScope/internal/camera"
	"github.com/bryanchriswhite/FrameScope/internal/framebuffer"
	"github.com/bryanchriswhite/FrameScope/internal/mjpeg"
	"github.com/bryanchriswhite/FrameScope/internal/processor"
)

func jpegFrame(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var b bytes.Buffer
	if err := jpeg.Encode(&b, img, nil); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func mjpegPart(payload []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "--myboundary\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(payload))
	b.Write(payload)
	b.WriteString("\r\n")
	return b.Bytes()
}

// fakeCamera answers the settings request on its first connection when
// configure is set, then streams parts on the next one. With hold set it
// keeps the stream open until the test ends.
type fakeCamera struct {
	ln        net.Listener
	requests  chan string
	configure bool
	parts     [][]byte
	hold      bool
	closed    chan struct{}
}

func startFakeCamera(t *testing.T, configure, hold bool, parts ...[]byte) *fakeCamera {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	fc := &fakeCamera{
		ln:        ln,
		requests:  make(chan string, 4),
		configure: configure,
		parts:     parts,
		hold:      hold,
		closed:    make(chan struct{}),
	}
	t.Cleanup(func() {
		close(fc.closed)
		ln.Close()
	})
	go fc.serve()
	return fc
}

func (fc *fakeCamera) readRequest(conn net.Conn) {
	r := bufio.NewReader(conn)
	var req strings.Builder
	for {
		line, err := r.ReadString('\n')
		req.WriteString(line)
		if err != nil || line == "\r\n" {
			break
		}
	}
	fc.requests <- req.String()
}

func (fc *fakeCamera) serve() {
	if fc.configure {
		conn, err := fc.ln.Accept()
		if err != nil {
			return
		}
		fc.readRequest(conn)
		conn.Write([]byte("HTTP/1.0 204 No Content\r\n\r\n"))
		conn.Close()
	}

	conn, err := fc.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	fc.readRequest(conn)

	conn.Write([]byte("HTTP/1.0 200 OK\r\nContent-Type: multipart/x-mixed-replace;boundary=myboundary\r\n\r\n"))
	for _, p := range fc.parts {
		if _, err := conn.Write(p); err != nil {
			return
		}
	}
	if fc.hold {
		<-fc.closed
	}
}

func (fc *fakeCamera) client() *camera.Client {
	addr := fc.ln.Addr().(*net.TCPAddr)
	return camera.NewClient(camera.Config{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		DialTimeout: time.Second,
		Stream:      camera.StreamParams{FPS: 5, Compression: 20, Resolution: "640x480"},
	})
}

func newLoop(t *testing.T, fc *fakeCamera, opts Options) (*Loop, *framebuffer.Buffer) {
	t.Helper()
	proc, err := processor.New(processor.ColorPlaneName, processor.Options{})
	if err != nil {
		t.Fatal(err)
	}
	buf := framebuffer.New()
	return New(fc.client(), proc, buf, opts), buf
}

func runWithTimeout(t *testing.T, ctx context.Context, l *Loop) error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestLoopStreamsUntilCameraDisconnects(t *testing.T) {
	red := jpegFrame(t, color.RGBA{R: 200, A: 255})
	fc := startFakeCamera(t, true, false, mjpegPart(red), mjpegPart(red), mjpegPart(red))
	l, buf := newLoop(t, fc, Options{Configure: true})

	err := runWithTimeout(t, context.Background(), l)

	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("Run err = %v, want *FatalError", err)
	}
	if fe.Category != CategoryTransport {
		t.Errorf("Category = %s, want transport", fe.Category)
	}
	if fe.Reason() != "Connection reset by peer. Camera disconnected." {
		t.Errorf("Reason = %q", fe.Reason())
	}
	if l.State() != Failed {
		t.Errorf("State = %s, want failed", l.State())
	}

	v, ok := buf.Snapshot()
	if !ok || v.Version() != 3 {
		t.Fatalf("buffer version = %d (ok %v), want 3", v.Version(), ok)
	}
	if v.Original().Seq != 3 || v.Processed().Seq != 3 {
		t.Errorf("seq = %d/%d", v.Original().Seq, v.Processed().Seq)
	}
	if _, isGray := v.Processed().Image.(*image.Gray); !isGray {
		t.Errorf("processed image is %T", v.Processed().Image)
	}

	st := l.Stats()
	if st.Frames != 3 || st.Skipped != 1 || st.State != "failed" || st.SessionID == "" {
		t.Errorf("Stats = %+v", st)
	}

	settings := <-fc.requests
	if !strings.HasPrefix(settings, "GET /axis-cgi/admin/param.cgi?action=update") {
		t.Errorf("settings request = %q", settings)
	}
	stream := <-fc.requests
	if !strings.HasPrefix(stream, "GET /axis-cgi/mjpg/video.cgi?des_fps=5") {
		t.Errorf("stream request = %q", stream)
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	fc := startFakeCamera(t, false, true, mjpegPart(jpegFrame(t, color.White)))
	l, buf := newLoop(t, fc, Options{})

	updates, cancelSub := buf.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()

	select {
	case <-updates:
	case <-time.After(5 * time.Second):
		t.Fatal("no frame published")
	}
	if l.State() != Streaming {
		t.Errorf("State = %s, want streaming", l.State())
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if l.State() != Stopped {
		t.Errorf("State = %s, want stopped", l.State())
	}
	// The last frame stays visible.
	if !buf.HasCurrentPair() {
		t.Error("buffer lost its pair")
	}
}

func TestLoopCorruptJPEGIsProcessingError(t *testing.T) {
	fc := startFakeCamera(t, false, true, mjpegPart([]byte("definitely not a jpeg")))
	l, buf := newLoop(t, fc, Options{})

	err := runWithTimeout(t, context.Background(), l)
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Category != CategoryProcessing {
		t.Fatalf("Run err = %v, want processing FatalError", err)
	}
	if buf.HasCurrentPair() {
		t.Error("nothing should have been published")
	}
}

func TestLoopOversizedFrameIsDecodeError(t *testing.T) {
	fc := startFakeCamera(t, false, true, mjpegPart(make([]byte, 4096)))
	l, _ := newLoop(t, fc, Options{BufferSize: 1024})

	err := runWithTimeout(t, context.Background(), l)
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Category != CategoryDecode {
		t.Fatalf("Run err = %v, want decode FatalError", err)
	}
	if !errors.Is(err, mjpeg.ErrFrameTooLarge) {
		t.Error("decode error should wrap ErrFrameTooLarge")
	}
}

func TestLoopDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	proc, _ := processor.New(processor.ColorPlaneName, processor.Options{})
	client := camera.NewClient(camera.Config{Host: "127.0.0.1", Port: port, DialTimeout: time.Second})
	l := New(client, proc, framebuffer.New(), Options{Configure: true})

	err = runWithTimeout(t, context.Background(), l)
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Category != CategoryTransport {
		t.Fatalf("Run err = %v, want transport FatalError", err)
	}
	if !camera.IsTransportError(err) {
		t.Error("dial failure should carry a TransportError")
	}
	if !strings.HasPrefix(fe.Error(), "transport error: ") {
		t.Errorf("Error() = %q", fe.Error())
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		Connecting:  "connecting",
		Configuring: "configuring",
		Streaming:   "streaming",
		Failed:      "failed",
		Stopped:     "stopped",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), name)
		}
	}
}
