package wire

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkedReaderStripsExtensionsAndTrailer(t *testing.T) {
	raw := "3;foo=bar\r\nabc\r\n0\r\nX-Trailer: late\r\n\r\n"
	cr := &chunkedReader{r: bufio.NewReader(strings.NewReader(raw))}

	body, err := io.ReadAll(cr)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))
}

func TestChunkedReaderMultipleChunks(t *testing.T) {
	raw := "2\r\nhe\r\n3\r\nllo\r\n0\r\n\r\n"
	cr := &chunkedReader{r: bufio.NewReader(strings.NewReader(raw))}

	body, err := io.ReadAll(cr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestChunkedReaderMalformedSize(t *testing.T) {
	raw := "not-hex\r\n\r\n"
	cr := &chunkedReader{r: bufio.NewReader(strings.NewReader(raw))}

	_, err := io.ReadAll(cr)
	assert.Error(t, err)
}

func TestMaxBytesReaderAllowsExactLimit(t *testing.T) {
	m := &maxBytesReader{r: strings.NewReader("abcd"), remaining: 4}
	body, err := io.ReadAll(m)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(body))
}

func TestMaxBytesReaderRejectsOverLimit(t *testing.T) {
	m := &maxBytesReader{r: strings.NewReader("abcde"), remaining: 4}
	_, err := io.ReadAll(m)
	assert.Error(t, err)
}
