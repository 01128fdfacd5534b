package main

import (
	"bytes"
	"context"
	"image/jpeg"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bryanchriswhite/FrameScope/internal/camera"
	"github.com/bryanchriswhite/FrameScope/internal/mjpeg"
	"github.com/bryanchriswhite/FrameScope/internal/processor"
	"github.com/bryanchriswhite/FrameScope/internal/vision"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
	}{
		{"640x280", 640, 280},
		{"320X240", 320, 240},
		{"", defaultWidth, defaultHeight},
		{"wide", defaultWidth, defaultHeight},
		{"8x8", defaultWidth, defaultHeight},
	}
	for _, tt := range tests {
		w, h := parseResolution(tt.in)
		if w != tt.w || h != tt.h {
			t.Errorf("parseResolution(%q) = %dx%d, want %dx%d", tt.in, w, h, tt.w, tt.h)
		}
	}
}

func TestSceneBlobMatchesThresholdBand(t *testing.T) {
	s := Scene{Width: 320, Height: 240}
	img := s.Render(0, 1)

	x, y := s.BlobCenter(0)
	hsl := vision.ColorToHSL(img.At(int(x), int(y)))
	if !processor.DefaultBand.Contains(hsl) {
		t.Errorf("blob HSL %+v outside the default band", hsl)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := httptest.NewServer(NewSimulator(camera.BasicAuth("FRC", "FRC")).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/axis-cgi/admin/param.cgi?action=update")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestClientAgainstSimulator(t *testing.T) {
	auth := camera.BasicAuth("FRC", "FRC")
	sim := NewSimulator(auth)
	srv := httptest.NewServer(sim.Router())
	defer srv.Close()

	host, portStr, _ := net.SplitHostPort(srv.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	client := camera.NewClient(camera.Config{
		Host: host,
		Port: port,
		Auth: auth,
		Settings: camera.Settings{
			WhiteBalance: "fixed_fluor2",
			Exposure:     "hold",
			Brightness:   50,
			ColorLevel:   50,
		},
		Stream: camera.StreamParams{FPS: 20, Compression: 20, Resolution: "160x120"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.ConnectAndConfigure(ctx); err != nil {
		t.Fatal(err)
	}
	if got := sim.Settings()["ImageSource.I0.Sensor.WhiteBalance"]; got != "fixed_fluor2" {
		t.Errorf("white balance = %q", got)
	}

	conn, err := client.OpenStream(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	dec := mjpeg.NewDecoder(conn, mjpeg.DefaultBufferSize)
	for i := 0; i < 2; i++ {
		payload, err := dec.NextFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		img, err := jpeg.Decode(bytes.NewReader(payload))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 120 {
			t.Errorf("frame %d is %v", i, b)
		}
	}
}
