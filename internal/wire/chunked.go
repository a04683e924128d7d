package wire

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/gohop/hop/errs"
)

// chunkedReader dechunks an HTTP/1.1 "Transfer-Encoding: chunked" body
// read directly off the connection's bufio.Reader. It does not interpret
// trailers beyond draining them.
type chunkedReader struct {
	r         *bufio.Reader
	remaining int64 // bytes left in the current chunk
	done      bool
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	if c.remaining == 0 {
		size, err := c.readChunkSize()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			c.done = true
			if err := c.drainTrailer(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		c.remaining = size
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if err != nil {
		return n, errs.Wrap(errs.ConnectionClosed, err)
	}
	if c.remaining == 0 {
		// Consume the chunk-terminating CRLF.
		if _, err := c.r.Discard(2); err != nil {
			return n, errs.Wrap(errs.ConnectionClosed, err)
		}
	}
	return n, nil
}

func (c *chunkedReader) readChunkSize() (int64, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return 0, errs.Wrap(errs.ConnectionClosed, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx] // chunk extensions are ignored
	}
	size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
	if err != nil || size < 0 {
		return 0, errs.New(errs.InvalidResponse)
	}
	return size, nil
}

// drainTrailer reads trailer header lines, if any, up to the blank line
// that ends the chunked body.
func (c *chunkedReader) drainTrailer() error {
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return errs.Wrap(errs.ConnectionClosed, err)
		}
		if strings.TrimRight(line, "\r\n") == "" {
			return nil
		}
	}
}

// maxBytesReader enforces a cap on total bytes read from r, returning a
// BodyTooLarge error once exceeded rather than silently truncating.
type maxBytesReader struct {
	r         io.Reader
	remaining int64
}

func (m *maxBytesReader) Read(p []byte) (int, error) {
	if m.remaining < 0 {
		return 0, errs.New(errs.BodyTooLarge)
	}
	if int64(len(p)) > m.remaining+1 {
		p = p[:m.remaining+1]
	}
	n, err := m.r.Read(p)
	m.remaining -= int64(n)
	if m.remaining < 0 {
		return n, errs.New(errs.BodyTooLarge)
	}
	return n, err
}
