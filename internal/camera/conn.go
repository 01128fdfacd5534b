package camera

import (
	"fmt"
	"net"
	"time"
)

// Conn wraps the connected stream socket. Reads block until data arrives or
// the connection fails; every failure comes back as a *TransportError.
type Conn struct {
	conn        net.Conn
	readTimeout time.Duration
	one         [1]byte
}

// NewConn wraps an established connection. A zero readTimeout disables
// per-read deadlines.
func NewConn(conn net.Conn, readTimeout time.Duration) *Conn {
	return &Conn{conn: conn, readTimeout: readTimeout}
}

// Read implements io.Reader over the socket
func (c *Conn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, Classify("read", err)
		}
	}
	n, err := c.conn.Read(p)
	if err != nil {
		return n, Classify("read", err)
	}
	return n, nil
}

// ReadByte reads a single byte, used while scanning part headers
func (c *Conn) ReadByte() (byte, error) {
	for {
		n, err := c.Read(c.one[:])
		if err != nil {
			return 0, err
		}
		if n == 1 {
			return c.one[0], nil
		}
	}
}

// ReadFull fills dst completely. Short reads are expected and looped on; an
// empty read without error is retried.
func (c *Conn) ReadFull(dst []byte) error {
	read := 0
	for read < len(dst) {
		n, err := c.Read(dst[read:])
		read += n
		if err != nil {
			if read == len(dst) {
				return nil
			}
			return err
		}
	}
	return nil
}

// ReadExact returns exactly n bytes from the socket
func (c *Conn) ReadExact(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("camera: negative read size %d", n)
	}
	buf := make([]byte, n)
	if err := c.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write sends raw bytes to the camera
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.conn.Write(p)
	return n, Classify("write", err)
}

// CloseWrite half-closes the sending direction. Connections without
// half-close support are left open.
func (c *Conn) CloseWrite() error {
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := c.conn.(closeWriter); ok {
		return Classify("shutdown", cw.CloseWrite())
	}
	return nil
}

// Close closes the socket. It unblocks any pending Read.
func (c *Conn) Close() error {
	return c.conn.Close()
}
