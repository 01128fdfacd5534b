// Package mjpeg splits a Motion-JPEG byte stream into JPEG payloads.
//
// The stream is a sequence of parts, each a textual header block terminated
// by CR LF CR LF and followed by exactly Content-Length bytes of JPEG data.
// Nothing else in the transport delimits frames.
package mjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/bryanchriswhite/FrameScope/internal/logger"
)

// ErrFrameTooLarge means a header block or payload does not fit the working
// buffer. It is a configuration problem and ends the stream.
var ErrFrameTooLarge = errors.New("mjpeg: frame exceeds buffer capacity")

// DecodeError describes one malformed part. The stream stays usable: the
// next call resumes scanning at the following byte.
type DecodeError struct {
	Reason string
	Header string
}

func (e *DecodeError) Error() string {
	return "mjpeg: " + e.Reason
}

// IsRecoverable reports whether err only invalidates the current part
func IsRecoverable(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

const endOfHeaders = 0x0d0a0d0a // "\r\n\r\n" as a big-endian window

var contentLengthToken = []byte("Content-Length: ")

// Stats counts decoder progress
type Stats struct {
	Frames  uint64
	Skipped uint64
	Bytes   uint64
}

// Decoder extracts JPEG payloads from an MJPEG stream
type Decoder struct {
	r     io.Reader
	br    io.ByteReader
	buf   *Buffer
	one   [1]byte
	stats Stats
}

// NewDecoder reads parts from r using a working buffer of the given capacity.
// Reads from r are never buffered ahead: header bytes are consumed one at a
// time and the payload exactly.
func NewDecoder(r io.Reader, capacity int) *Decoder {
	d := &Decoder{r: r, buf: NewBuffer(capacity)}
	if br, ok := r.(io.ByteReader); ok {
		d.br = br
	}
	return d
}

// Stats returns a copy of the decoder counters
func (d *Decoder) Stats() Stats {
	return d.stats
}

func (d *Decoder) readByte() (byte, error) {
	if d.br != nil {
		return d.br.ReadByte()
	}
	for {
		n, err := d.r.Read(d.one[:])
		if n == 1 {
			return d.one[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Next returns the payload of the next part. The returned slice aliases the
// working buffer and is valid until the following call.
//
// A *DecodeError means the part was malformed and skipped; any other error is
// either ErrFrameTooLarge or the reader's own failure.
func (d *Decoder) Next() ([]byte, error) {
	header, err := d.scanHeader()
	if err != nil {
		return nil, err
	}

	size, err := contentLength(header)
	if err != nil {
		return nil, err
	}
	if size > d.buf.Cap() {
		return nil, fmt.Errorf("%w: Content-Length %d, capacity %d", ErrFrameTooLarge, size, d.buf.Cap())
	}

	d.buf.Reset()
	payload, err := d.buf.Reserve(size)
	if err != nil {
		return nil, err
	}
	if err := d.readFull(payload); err != nil {
		return nil, err
	}

	d.stats.Frames++
	d.stats.Bytes += uint64(size)
	return payload, nil
}

// NextFrame is Next with malformed parts skipped.
func (d *Decoder) NextFrame() ([]byte, error) {
	for {
		payload, err := d.Next()
		if err == nil {
			return payload, nil
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			return nil, err
		}
		d.stats.Skipped++
		logger.WithComponent("mjpeg").Debug().
			Str("reason", de.Reason).
			Uint64("skipped", d.stats.Skipped).
			Msg("Skipping malformed part")
	}
}

// scanHeader accumulates bytes until the blank line ending the header block.
func (d *Decoder) scanHeader() ([]byte, error) {
	d.buf.Reset()
	var window uint32
	for {
		c, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if err := d.buf.AppendByte(c); err != nil {
			return nil, err
		}
		window = window<<8 | uint32(c)
		if d.buf.Len() >= 4 && window == endOfHeaders {
			return d.buf.Bytes(), nil
		}
	}
}

func (d *Decoder) readFull(dst []byte) error {
	read := 0
	for read < len(dst) {
		n, err := d.r.Read(dst[read:])
		read += n
		if err != nil {
			if read == len(dst) {
				return nil
			}
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// contentLength parses the decimal digits following "Content-Length: ".
func contentLength(header []byte) (int, error) {
	i := bytes.Index(header, contentLengthToken)
	if i < 0 {
		return 0, &DecodeError{Reason: "missing Content-Length", Header: string(header)}
	}
	rest := header[i+len(contentLengthToken):]
	for len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t') {
		rest = rest[1:]
	}
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, &DecodeError{Reason: "unparseable Content-Length", Header: string(header)}
	}
	size, err := strconv.Atoi(string(rest[:end]))
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: Content-Length %s", ErrFrameTooLarge, rest[:end])
	}
	if err != nil {
		return 0, &DecodeError{Reason: "unparseable Content-Length", Header: string(header)}
	}
	if size == 0 {
		return 0, &DecodeError{Reason: "zero Content-Length", Header: string(header)}
	}
	return size, nil
}
