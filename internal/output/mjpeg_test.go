package output

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/FrameScope/internal/framebuffer"
	"github.com/bryanchriswhite/FrameScope/internal/mjpeg"
)

func testImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestMJPEGStreamIsDemuxable(t *testing.T) {
	out := NewMJPEGOutput(Config{Source: "original"})
	if err := out.Start(); err != nil {
		t.Fatal(err)
	}
	defer out.Stop()

	if err := out.WriteFrame(testImage(16, 8, color.White)); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(out.GetHTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %q", ct)
	}

	dec := mjpeg.NewDecoder(resp.Body, 64*1024)
	payload, err := dec.NextFrame()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}

	if err := out.WriteFrame(testImage(32, 8, color.Black)); err != nil {
		t.Fatal(err)
	}
	payload, err = dec.NextFrame()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	img, _ = jpeg.Decode(bytes.NewReader(payload))
	if img == nil || img.Bounds().Dx() != 32 {
		t.Error("second frame not delivered")
	}

	st := out.Stats()
	if st.Frames != 2 || st.Clients != 1 || !st.Running {
		t.Errorf("Stats = %+v", st)
	}
}

func TestWriteFrameRequiresStart(t *testing.T) {
	out := NewMJPEGOutput(Config{})
	if err := out.WriteFrame(testImage(2, 2, color.White)); err == nil {
		t.Error("WriteFrame before Start should fail")
	}
	out.Start()
	if err := out.Start(); err == nil {
		t.Error("double Start should fail")
	}
}

func TestSnapshotHandler(t *testing.T) {
	out := NewMJPEGOutput(Config{Source: "processed"})
	out.Start()

	rec := httptest.NewRecorder()
	out.GetSnapshotHandler()(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("empty snapshot code = %d", rec.Code)
	}

	out.WriteFrame(testImage(4, 4, color.White))
	rec = httptest.NewRecorder()
	out.GetSnapshotHandler()(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("snapshot = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

type recordingOutput struct {
	mu     sync.Mutex
	frames []image.Image
	got    chan struct{}
}

func (r *recordingOutput) Start() error    { return nil }
func (r *recordingOutput) Stop() error     { return nil }
func (r *recordingOutput) Name() string    { return "recorder" }
func (r *recordingOutput) IsRunning() bool { return true }

func (r *recordingOutput) WriteFrame(img image.Image) error {
	r.mu.Lock()
	r.frames = append(r.frames, img)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func TestPumpFollowsBuffer(t *testing.T) {
	buf := framebuffer.New()
	orig := testImage(2, 2, color.White)
	proc := image.NewGray(image.Rect(0, 0, 2, 2))
	buf.Publish(framebuffer.Pair{
		Original:  framebuffer.NewFrame(orig, 1, time.Now(), nil),
		Processed: framebuffer.NewFrame(proc, 1, time.Now(), nil),
	})

	rec := &recordingOutput{got: make(chan struct{}, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Pump(ctx, buf, "processed", rec)
		close(done)
	}()

	select {
	case <-rec.got:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not write the existing pair")
	}

	next := image.NewGray(image.Rect(0, 0, 3, 3))
	buf.Publish(framebuffer.Pair{
		Original:  framebuffer.NewFrame(orig, 2, time.Now(), nil),
		Processed: framebuffer.NewFrame(next, 2, time.Now(), nil),
	})
	select {
	case <-rec.got:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not follow Publish")
	}

	cancel()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.frames[0] != image.Image(proc) || rec.frames[1] != image.Image(next) {
		t.Error("pump wrote the wrong source")
	}
}
