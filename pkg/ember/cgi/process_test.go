package cgi

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// echoScript writes a shell script that prints a fixed CGI response
// regardless of stdin, used to exercise Start/ReadStdout/TryWait
// without depending on any particular interpreter being on PATH beyond
// /bin/sh.
func echoScript(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "hello.sh")
	script := "#!/bin/sh\nprintf 'Content-Type: text/plain\\r\\n\\r\\nHello, Alice'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestProcessRunToCompletion(t *testing.T) {
	dir := t.TempDir()
	script := echoScript(t, dir)

	proc, err := Start("/bin/sh", script, []string{"PATH=/usr/bin:/bin"})
	require.NoError(t, err)
	require.NoError(t, proc.CloseStdin())

	var out []byte
	deadline := time.Now().Add(2 * time.Second)
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		n, err := proc.ReadStdout(buf)
		require.NoError(t, err)
		if n > 0 {
			out = append(out, buf[:n]...)
			continue
		}
		if exited, _, werr := proc.TryWait(); exited {
			require.NoError(t, werr)
			n, _ := proc.ReadStdout(buf)
			out = append(out, buf[:n]...)
			break
		}
		time.Sleep(time.Millisecond)
	}

	require.Contains(t, string(out), "Hello, Alice")
	proc.CloseStdout()
}
