package cgi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputParserDefaultStatus(t *testing.T) {
	p := NewOutputParser()
	body, ready, err := p.Feed([]byte("Content-Type: text/plain\r\n\r\nHello, Alice"))
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, "Hello, Alice", string(body))
	require.Equal(t, 200, p.Status())
	require.Equal(t, "text/plain", p.Header().Get("Content-Type"))
}

func TestOutputParserExplicitStatus(t *testing.T) {
	p := NewOutputParser()
	_, ready, err := p.Feed([]byte("Status: 404 Not Found\r\nContent-Type: text/plain\r\n\r\n"))
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, 404, p.Status())
}

func TestOutputParserLocationWithoutStatusIs302(t *testing.T) {
	p := NewOutputParser()
	_, ready, err := p.Feed([]byte("Location: /new-place\r\n\r\n"))
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, 302, p.Status())
	require.Equal(t, "/new-place", p.Header().Get("Location"))
}

func TestOutputParserSplitAcrossFeeds(t *testing.T) {
	p := NewOutputParser()
	body1, ready1, err := p.Feed([]byte("Content-Type: text/plain\r\n\r"))
	require.NoError(t, err)
	require.False(t, ready1)
	require.Nil(t, body1)

	body2, ready2, err := p.Feed([]byte("\nbody-bytes"))
	require.NoError(t, err)
	require.True(t, ready2)
	require.Equal(t, "body-bytes", string(body2))
}

func TestOutputParserPassesThroughAfterHeadersDone(t *testing.T) {
	p := NewOutputParser()
	_, _, err := p.Feed([]byte("\r\n"))
	require.NoError(t, err)
	require.True(t, p.HeaderDone())

	chunk, ready, err := p.Feed([]byte("more body"))
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, "more body", string(chunk))
}
