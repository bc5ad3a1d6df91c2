package engine

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/ember/pkg/ember/config"
	"github.com/yourusername/ember/pkg/ember/errpage"
)

// newTestEngine builds an Engine bound to one loopback listener serving
// root as its document root, the way cmd/emberd wires one up from a
// parsed config.ServerConfig, minus the file parsing itself.
func newTestEngine(t *testing.T, root string, port int) *Engine {
	t.Helper()

	sc := &config.ServerConfig{
		BindAddress:       "127.0.0.1",
		Ports:             []int{port},
		ServerNames:       []string{"localhost"},
		Root:              root,
		ClientMaxBodySize: 1 << 20,
		Timeout:           2 * time.Second,
		Locations: []config.Location{
			{Prefix: "/", Methods: map[string]bool{"GET": true, "HEAD": true}, Index: "index.html"},
		},
	}
	require.NoError(t, config.Validate([]*config.ServerConfig{sc}))

	pages, err := errpage.Load(nil)
	require.NoError(t, err)

	e, err := New([]*config.ServerConfig{sc}, pages, Config{
		ServerIdent: "ember-test",
		TempDir:     t.TempDir(),
	}, nil)
	require.NoError(t, err)
	return e
}

// runUntilClosed drives e.Run in the background and returns a stop
// func the test calls once it's done asserting, mirroring how
// cmd/emberd drives Run from main against an os/signal channel.
func runUntilClosed(t *testing.T, e *Engine) (stop func()) {
	t.Helper()
	stopCh := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- e.Run(stopCh) }()
	return func() {
		close(stopCh)
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("engine did not shut down in time")
		}
	}
}

// TestEngineServesStaticFile exercises the full accept -> read ->
// parse -> route -> static response -> write path end to end over a
// real loopback socket: a GET for a file under the document root comes
// back with the right status, Content-Length, Content-Type and body.
func TestEngineServesStaticFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("hi"), 0o644))

	const port = 18181
	e := newTestEngine(t, root, port)
	stop := runUntilClosed(t, e)
	defer stop()

	conn, err := dialRetry("127.0.0.1", port)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /index.html HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(conn)

	status, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 200 OK\r\n", status)

	headers := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		headers[line] = line
	}

	body := make([]byte, 2)
	_, err = r.Read(body)
	require.NoError(t, err)
	require.Equal(t, "hi", string(body))

	var sawContentLength, sawContentType bool
	for line := range headers {
		if strings.Contains(line, "Content-Length: 2") {
			sawContentLength = true
		}
		if strings.Contains(line, "Content-Type: text/html; charset=utf-8") {
			sawContentType = true
		}
	}
	require.True(t, sawContentLength, "expected Content-Length: 2 header, got %v", headers)
	require.True(t, sawContentType, "expected text/html content type, got %v", headers)
}

// TestEngineRejectsPathEscape checks that a request whose target
// normalizes outside the document root is refused with 403 rather
// than ever reaching the filesystem.
func TestEngineRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("hi"), 0o644))

	const port = 18182
	e := newTestEngine(t, root, port)
	stop := runUntilClosed(t, e)
	defer stop()

	conn, err := dialRetry("127.0.0.1", port)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /../../../../etc/passwd HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 403 Forbidden\r\n", status)
}

// TestEngineMissingFileIs404 exercises the static handler's
// ENOENT -> 404 mapping over the wire.
func TestEngineMissingFileIs404(t *testing.T) {
	root := t.TempDir()

	const port = 18183
	e := newTestEngine(t, root, port)
	stop := runUntilClosed(t, e)
	defer stop()

	conn, err := dialRetry("127.0.0.1", port)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /nope.html HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 404 Not Found\r\n", status)
}

// dialRetry retries briefly since Run's Accept loop only starts
// picking up connections once the poller's first Wait returns, which
// races the goroutine spawned in runUntilClosed.
func dialRetry(host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var lastErr error
	for i := 0; i < 20; i++ {
		c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			return c, nil
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	return nil, lastErr
}
