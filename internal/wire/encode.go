// Package wire implements hop's HTTP/1.1 wire codec: request
// serialization and incremental response parsing over a byte stream. It
// has no knowledge of pooling, redirects, or auth — those are
// internal/pool, internal/redirect, and auth.
package wire

import (
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"

	"golang.org/x/net/http/httpguts"

	"github.com/gohop/hop/errs"
)

// EncodeRequest writes an HTTP/1.1 request line, headers, and body to w.
//
// host is used to synthesize a Host header when none is already present
// in header. contentLength is the body's known length, or -1 if unknown
// (in which case Transfer-Encoding: chunked is used instead of
// Content-Length).
func EncodeRequest(w io.Writer, host, method, target string, header http.Header, body io.Reader, contentLength int64) error {
	if err := validateHeader(header); err != nil {
		return errs.Wrap(errs.InvalidResponse, err)
	}

	bw := newByteCountWriter(w)

	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", method, target); err != nil {
		return err
	}

	if header.Get("Host") == "" {
		if _, err := fmt.Fprintf(bw, "Host: %s\r\n", host); err != nil {
			return err
		}
	}

	chunked := contentLength < 0 && body != nil
	if body != nil {
		if chunked {
			header.Set("Transfer-Encoding", "chunked")
		} else if header.Get("Content-Length") == "" {
			header.Set("Content-Length", strconv.FormatInt(contentLength, 10))
		}
	}

	for name, values := range header {
		canonical := textproto.CanonicalMIMEHeaderKey(name)
		for _, v := range values {
			if _, err := fmt.Fprintf(bw, "%s: %s\r\n", canonical, v); err != nil {
				return err
			}
		}
	}

	if _, err := io.WriteString(bw, "\r\n"); err != nil {
		return err
	}

	if body == nil {
		return bw.err
	}
	if chunked {
		return writeChunked(bw, body)
	}
	_, err := io.Copy(bw, body)
	if err != nil {
		return err
	}
	return bw.err
}

func writeChunked(w io.Writer, body io.Reader) error {
	cw := &chunkedWriter{w: w}
	if _, err := io.Copy(cw, body); err != nil {
		return err
	}
	return cw.Close()
}

type chunkedWriter struct{ w io.Writer }

func (c *chunkedWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(c.w, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	if _, err := c.w.Write(p); err != nil {
		return 0, err
	}
	if _, err := io.WriteString(c.w, "\r\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *chunkedWriter) Close() error {
	_, err := io.WriteString(c.w, "0\r\n\r\n")
	return err
}

// validateHeader rejects header names/values net/http's own transport
// would refuse to put on the wire.
func validateHeader(header http.Header) error {
	for name, values := range header {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("wire: invalid header name %q", name)
		}
		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("wire: invalid header value for %q", name)
			}
		}
	}
	return nil
}

// byteCountWriter lets EncodeRequest use fmt.Fprintf/io.WriteString
// freely and check a single error at the end of the header-writing phase.
type byteCountWriter struct {
	w   io.Writer
	err error
}

func newByteCountWriter(w io.Writer) *byteCountWriter { return &byteCountWriter{w: w} }

func (b *byteCountWriter) Write(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	n, err := b.w.Write(p)
	if err != nil {
		b.err = err
	}
	return n, err
}
