package wire

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequestContentLength(t *testing.T) {
	var buf strings.Builder
	header := http.Header{"Accept": {"*/*"}}

	err := EncodeRequest(&buf, "example.com", "POST", "/a?b=1", header, strings.NewReader("hello"), 5)
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "POST /a?b=1 HTTP/1.1\r\n"))
	assert.Contains(t, out, "Host: example.com\r\n")
	assert.Contains(t, out, "Accept: */*\r\n")
	assert.Contains(t, out, "Content-Length: 5\r\n")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nhello"))
}

func TestEncodeRequestHonorsExplicitHost(t *testing.T) {
	var buf strings.Builder
	header := http.Header{"Host": {"other.example"}}

	err := EncodeRequest(&buf, "example.com", "GET", "/", header, nil, 0)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Host: other.example\r\n")
	assert.NotContains(t, out, "Host: example.com")
}

func TestEncodeRequestChunkedWhenLengthUnknown(t *testing.T) {
	var buf strings.Builder
	header := http.Header{}

	err := EncodeRequest(&buf, "example.com", "POST", "/", header, strings.NewReader("abcde"), -1)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Transfer-Encoding: chunked\r\n")
	assert.Contains(t, out, "5\r\nabcde\r\n")
	assert.True(t, strings.HasSuffix(out, "0\r\n\r\n"))
}

func TestEncodeRequestNoBody(t *testing.T) {
	var buf strings.Builder
	err := EncodeRequest(&buf, "example.com", "GET", "/", http.Header{}, nil, 0)
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "Content-Length")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"))
}

func TestEncodeRequestRejectsInvalidHeaderValue(t *testing.T) {
	var buf strings.Builder
	header := http.Header{"X-Bad": {"line1\r\nline2"}}

	err := EncodeRequest(&buf, "example.com", "GET", "/", header, nil, 0)
	assert.Error(t, err)
}
