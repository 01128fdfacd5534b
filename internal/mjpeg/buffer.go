package mjpeg

import "fmt"

// DefaultBufferSize is the working capacity for one header block or one JPEG
// payload.
const DefaultBufferSize = 512 * 1024

// Buffer is a fixed-capacity scratch area. It never grows past its capacity;
// overflow is reported as ErrFrameTooLarge instead.
type Buffer struct {
	data []byte
	n    int
}

// NewBuffer allocates a buffer with the given capacity
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the fixed capacity
func (b *Buffer) Cap() int { return len(b.data) }

// Len returns the number of bytes held
func (b *Buffer) Len() int { return b.n }

// Reset empties the buffer without releasing storage
func (b *Buffer) Reset() { b.n = 0 }

// Bytes returns the held bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// AppendByte appends one byte
func (b *Buffer) AppendByte(c byte) error {
	if b.n >= len(b.data) {
		return fmt.Errorf("%w: header block exceeds %d bytes", ErrFrameTooLarge, len(b.data))
	}
	b.data[b.n] = c
	b.n++
	return nil
}

// Reserve extends the buffer by n bytes and returns the new region for the
// caller to fill.
func (b *Buffer) Reserve(n int) ([]byte, error) {
	if n < 0 || n > len(b.data)-b.n {
		return nil, fmt.Errorf("%w: %d byte frame, capacity %d", ErrFrameTooLarge, n, len(b.data)-b.n)
	}
	region := b.data[b.n : b.n+n]
	b.n += n
	return region, nil
}
