package camera

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/bryanchriswhite/FrameScope/internal/logger"
)

// Config describes how to reach and configure the camera
type Config struct {
	Host        string
	Port        int
	Auth        string // base64 Basic token
	Settings    Settings
	Stream      StreamParams
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// Client performs the camera control-plane request and opens the stream
type Client struct {
	cfg    Config
	dialer net.Dialer
}

// NewClient creates a camera client
func NewClient(cfg Config) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Client{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Address returns host:port of the camera
func (c *Client) Address() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

func (c *Client) dial(ctx context.Context) (*Conn, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.Address())
	if err != nil {
		return nil, Classify("dial", err)
	}
	return NewConn(conn, c.cfg.ReadTimeout), nil
}

// ConnectAndConfigure sends the sensor settings request and discards the
// reply. The camera closes that connection afterwards, so it is not reused.
func (c *Client) ConnectAndConfigure(ctx context.Context) error {
	log := logger.WithComponent("camera")

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := ControlRequest(c.cfg.Host, c.cfg.Settings, c.cfg.Auth)
	if _, err := conn.Write(req); err != nil {
		return err
	}

	reply := make([]byte, 256)
	n, err := conn.Read(reply)
	if err != nil && !isPeerClose(err) {
		return err
	}

	log.Debug().
		Str("addr", c.Address()).
		Int("reply_bytes", n).
		Msg("Camera settings applied")
	return nil
}

// OpenStream requests the MJPEG stream and half-closes the send direction.
func (c *Client) OpenStream(ctx context.Context) (*Conn, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	req := StreamRequest(c.cfg.Host, c.cfg.Stream, c.cfg.Auth)
	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, err
	}

	if err := conn.CloseWrite(); err != nil {
		conn.Close()
		return nil, err
	}

	logger.WithComponent("camera").Info().
		Str("addr", c.Address()).
		Int("fps", c.cfg.Stream.FPS).
		Str("resolution", c.cfg.Stream.Resolution).
		Msg("Camera stream opened")
	return conn, nil
}

// isPeerClose reports an orderly close by the camera, which is how the
// settings endpoint ends its reply.
func isPeerClose(err error) bool {
	te, ok := err.(*TransportError)
	return ok && te.Kind == KindConnectionReset && te.Code == 0
}
