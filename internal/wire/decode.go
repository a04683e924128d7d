package wire

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"

	"github.com/gohop/hop/errs"
)

// DefaultMaxHeaderBytes is the default cap on a response's status line
// plus header block.
const DefaultMaxHeaderBytes = 1 << 20 // 1 MiB

// ParseOptions bounds the parser.
type ParseOptions struct {
	// MaxHeaderBytes caps the status line + header block. Zero means
	// DefaultMaxHeaderBytes.
	MaxHeaderBytes int64
	// MaxBodyBytes caps the response body. Zero means unlimited.
	MaxBodyBytes int64
}

// Response is a parsed HTTP/1.x response, framed but not yet fully read:
// Body is a lazy reader over the remaining bytes of r.
type Response struct {
	StatusCode int
	Reason     string
	Proto      string
	Header     http.Header
	Body       io.Reader
	// KeepAlive reports whether the connection may be reused after Body
	// is fully drained.
	KeepAlive bool
}

var statusLineRE = regexp.MustCompile(`^HTTP/1\.([01]) ([0-9]{3}) (.*)$`)

// ParseResponse reads a status line and header block from r, enforcing
// opts.MaxHeaderBytes, and returns a Response whose Body lazily frames
// the remainder of the stream according to Content-Length or chunked
// Transfer-Encoding. It is an error for a response to specify both.
//
// r is read from directly throughout (status line, headers, and then
// Body) so that no bytes read ahead into an intermediate buffer are ever
// stranded between parsing phases.
func ParseResponse(r *bufio.Reader, opts ParseOptions) (*Response, error) {
	maxHeader := opts.MaxHeaderBytes
	if maxHeader <= 0 {
		maxHeader = DefaultMaxHeaderBytes
	}
	budget := &byteBudget{remaining: maxHeader}

	statusLine, err := readBoundedLine(r, budget)
	if err != nil {
		return nil, err
	}
	m := statusLineRE.FindStringSubmatch(statusLine)
	if m == nil {
		return nil, errs.Wrap(errs.InvalidResponse, fmt.Errorf("malformed status line %q", statusLine))
	}
	minor := m[1]
	code, _ := strconv.Atoi(m[2])
	reason := m[3]

	header, err := readHeaderBlock(r, budget)
	if err != nil {
		return nil, err
	}

	if header.Get("Content-Length") != "" && strings.Contains(strings.ToLower(header.Get("Transfer-Encoding")), "chunked") {
		return nil, errs.New(errs.InvalidResponse)
	}

	body, err := framedBody(r, header, opts.MaxBodyBytes)
	if err != nil {
		return nil, err
	}

	proto := "HTTP/1." + minor
	keepAlive := computeKeepAlive(proto, header)

	return &Response{
		StatusCode: code,
		Reason:     reason,
		Proto:      proto,
		Header:     header,
		Body:       body,
		KeepAlive:  keepAlive,
	}, nil
}

// readHeaderBlock reads "Name: value" lines (RFC 7230 §3.2, no obsolete
// line folding) until a blank line, against the shared byte budget.
func readHeaderBlock(r *bufio.Reader, budget *byteBudget) (http.Header, error) {
	header := make(http.Header)
	for {
		line, err := readBoundedLine(r, budget)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return header, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, errs.New(errs.InvalidResponse)
		}
		name := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		header.Add(name, value)
	}
}

// framedBody returns a reader bounded by Content-Length, dechunked if
// Transfer-Encoding: chunked, or unbounded (read-until-EOF/close) if
// neither header is present — then wraps it with maxBody enforcement.
func framedBody(r *bufio.Reader, header http.Header, maxBody int64) (io.Reader, error) {
	var body io.Reader

	switch {
	case strings.Contains(strings.ToLower(header.Get("Transfer-Encoding")), "chunked"):
		body = &chunkedReader{r: r}
	case header.Get("Content-Length") != "":
		n, err := strconv.ParseInt(header.Get("Content-Length"), 10, 64)
		if err != nil || n < 0 {
			return nil, errs.New(errs.InvalidResponse)
		}
		body = io.LimitReader(r, n)
	default:
		body = r
	}

	if maxBody > 0 {
		body = &maxBytesReader{r: body, remaining: maxBody}
	}
	return body, nil
}

// computeKeepAlive implements the reuse rule: both sides must indicate
// keep-alive. The request side (whether the request carried Connection:
// close) is folded in by the pipeline; this only reflects what the
// response states.
func computeKeepAlive(proto string, header http.Header) bool {
	connection := strings.ToLower(header.Get("Connection"))
	if strings.Contains(connection, "close") {
		return false
	}
	if proto == "HTTP/1.0" {
		return strings.Contains(connection, "keep-alive")
	}
	return true
}

// byteBudget tracks bytes consumed across the status line and header
// block so the two phases share one cap.
type byteBudget struct{ remaining int64 }

// readBoundedLine reads one CRLF-terminated line from r, charging its
// length against budget, and returns it with the trailing CRLF/LF
// stripped.
func readBoundedLine(r *bufio.Reader, budget *byteBudget) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", errs.Wrap(errs.InvalidResponse, err)
	}
	budget.remaining -= int64(len(line))
	if budget.remaining < 0 {
		return "", errs.New(errs.InvalidResponse)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
