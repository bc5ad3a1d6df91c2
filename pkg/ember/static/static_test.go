package static

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/ember/pkg/ember/config"
	"github.com/yourusername/ember/pkg/ember/wire"
)

func TestServeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	resp, kind := ServeFile(path)
	require.Equal(t, wire.ErrNone, kind)
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	require.EqualValues(t, 2, resp.Body.Size())
}

func TestServeFileNotFound(t *testing.T) {
	_, kind := ServeFile(filepath.Join(t.TempDir(), "missing.html"))
	require.Equal(t, wire.ErrNotFound, kind)
}

func TestHandleDirectoryServesIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hi"), 0o644))
	loc := &config.Location{Index: "index.html"}
	resp, kind := HandleDirectory(dir, loc)
	require.Equal(t, wire.ErrNone, kind)
	require.Equal(t, 200, resp.Status)
}

func TestHandleDirectoryForbiddenWithoutIndexOrAutoindex(t *testing.T) {
	dir := t.TempDir()
	loc := &config.Location{}
	_, kind := HandleDirectory(dir, loc)
	require.Equal(t, wire.ErrForbidden, kind)
}

func TestHandleDirectoryAutoindex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a_sub"), 0o755))
	loc := &config.Location{Autoindex: true}
	resp, kind := HandleDirectory(dir, loc)
	require.Equal(t, wire.ErrNone, kind)
	body := resp.Body.Bytes()
	require.Contains(t, string(body), "a_sub/")
	require.Contains(t, string(body), "b.txt")
}

func TestHandleDeleteNotFound(t *testing.T) {
	_, kind := HandleDelete(filepath.Join(t.TempDir(), "nope"))
	require.Equal(t, wire.ErrNotFound, kind)
}

func TestHandleUploadWritesFile(t *testing.T) {
	uploadDir := t.TempDir()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "note.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := &wire.Request{}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Body = wire.NewBufferedBody(buf.Bytes())

	resp, kind := HandleUpload(req, uploadDir)
	require.Equal(t, wire.ErrNone, kind)
	require.Equal(t, 200, resp.Status)

	data, err := os.ReadFile(filepath.Join(uploadDir, "note.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestHandleUploadRejectsPathEscapeFilename(t *testing.T) {
	uploadDir := t.TempDir()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "../evil.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("x"))
	require.NoError(t, mw.Close())

	req := &wire.Request{}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Body = wire.NewBufferedBody(buf.Bytes())

	_, kind := HandleUpload(req, uploadDir)
	require.Equal(t, wire.ErrMalformedRequest, kind)
}
