package static

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/ember/pkg/ember/wire"
)

// HandleUpload parses a multipart/form-data body and writes each file
// part to uploadDir. Filenames containing "/", "\",
// or ".." are rejected with 400 rather than sanitized, since silently
// rewriting an attacker-chosen filename invites its own confusion.
func HandleUpload(req *wire.Request, uploadDir string) (*wire.Response, wire.ErrKind) {
	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, wire.ErrMalformedRequest
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, wire.ErrMalformedRequest
	}

	br, err := req.Body.Reader()
	if err != nil {
		return nil, wire.ErrIoError
	}

	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, wire.ErrIoError
	}

	mr := multipart.NewReader(br, boundary)
	saved := []string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wire.ErrMalformedRequest
		}

		filename := part.FileName()
		if filename == "" {
			part.Close()
			continue
		}
		// FileName drops any directory part, so check the filename
		// parameter exactly as the client sent it.
		raw := filename
		if _, dp, perr := mime.ParseMediaType(part.Header.Get("Content-Disposition")); perr == nil && dp["filename"] != "" {
			raw = dp["filename"]
		}
		if strings.ContainsAny(raw, "/\\") || strings.Contains(raw, "..") {
			part.Close()
			return nil, wire.ErrMalformedRequest
		}

		dest := filepath.Join(uploadDir, filename)
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			part.Close()
			return nil, wire.ErrIoError
		}
		_, copyErr := io.Copy(out, part)
		out.Close()
		part.Close()
		if copyErr != nil {
			return nil, wire.ErrIoError
		}
		saved = append(saved, filename)
	}

	payload, _ := json.Marshal(struct {
		Status string   `json:"status"`
		Files  []string `json:"files"`
	}{Status: "ok", Files: saved})

	resp := wire.NewResponse(200)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = wire.NewBufferedBody(payload)
	return resp, wire.ErrNone
}
