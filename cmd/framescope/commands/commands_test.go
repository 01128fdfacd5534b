package commands

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/FrameScope/internal/display"
	"github.com/bryanchriswhite/FrameScope/internal/framebuffer"
)

func TestParseValueKeepsType(t *testing.T) {
	tests := []struct {
		current interface{}
		in      string
		want    interface{}
		wantErr bool
	}{
		{8080, "9090", 9090, false},
		{8080, "high", nil, true},
		{true, "false", false, false},
		{true, "maybe", nil, true},
		{"hold", "auto", "auto", false},
		{nil, "green", "green", false},
	}
	for _, tt := range tests {
		got, err := parseValue(tt.current, tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseValue(%v, %q) error = %v", tt.current, tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseValue(%v, %q) = %v, want %v", tt.current, tt.in, got, tt.want)
		}
	}
}

func TestParseBytes(t *testing.T) {
	got, err := parseBytes([]string{"150", "60", "70"})
	if err != nil || got[0] != 150 || got[2] != 70 {
		t.Errorf("parseBytes = %v, %v", got, err)
	}
	if _, err := parseBytes([]string{"256"}); err == nil {
		t.Error("256 accepted")
	}
}

// fakeSurface keeps running for a while after ctx ends, like a window that is
// mid-repaint, and records a Stop that arrives before Run has returned.
type fakeSurface struct {
	running     atomic.Bool
	stopped     atomic.Bool
	stopEarly   atomic.Bool
	linger      time.Duration
	closeWindow bool
}

func (f *fakeSurface) Run(ctx context.Context, buf *framebuffer.Buffer) error {
	f.running.Store(true)
	defer f.running.Store(false)
	if f.closeWindow {
		return display.ErrWindowClosed
	}
	<-ctx.Done()
	time.Sleep(f.linger)
	return nil
}

func (f *fakeSurface) Stop() {
	if f.running.Load() {
		f.stopEarly.Store(true)
	}
	f.stopped.Store(true)
}

func TestRunSurfaceStopsAfterRunReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &fakeSurface{linger: 50 * time.Millisecond}

	shutdown := runSurface(ctx, cancel, s, framebuffer.New())
	time.Sleep(10 * time.Millisecond)
	shutdown()

	if !s.stopped.Load() {
		t.Fatal("Stop not called")
	}
	if s.stopEarly.Load() {
		t.Error("Stop called while Run was still going")
	}
	if ctx.Err() == nil {
		t.Error("shutdown did not cancel the view")
	}
}

func TestRunSurfaceWindowCloseCancelsView(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &fakeSurface{closeWindow: true}

	shutdown := runSurface(ctx, cancel, s, framebuffer.New())
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("closing the window did not cancel the view")
	}
	shutdown()
	if !s.stopped.Load() || s.stopEarly.Load() {
		t.Errorf("stopped=%v early=%v", s.stopped.Load(), s.stopEarly.Load())
	}
}
