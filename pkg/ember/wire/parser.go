package wire

import (
	"bytes"
	"os"
	"strconv"
)

// Parser incrementally parses an HTTP/1.1 request. It is fed whatever
// bytes a non-blocking socket read happened to return this event-loop
// iteration; Feed may need to be called many times before a Request
// is ready, and the caller is responsible for driving that from the
// connection's reading phase.
type Parser struct {
	headers bytes.Buffer // accumulates request-line + headers until the blank line
	state   parserState

	req *Request

	maxBodySize    int64
	spillThreshold int64
	tempDir        string

	bodyGoal    int64 // total body bytes expected from Content-Length; unused (0) for chunked
	bodyRead    int64
	bodyBuf     []byte
	bodyFile    *os.File
	chunkedDec  *ChunkedDecoder
	chunkedDone bool
	finalized   bool

	// overflow holds bytes fed past the end of the current request
	// (pipelined next-request bytes) once Done() is true, so the
	// connection's read cursor advances past exactly the consumed
	// request bytes.
	overflow []byte
}

type parserState int

const (
	parsingHeaders parserState = iota
	readingBody
	complete
)

// NewParser returns a Parser bounded by maxBodySize (the configured
// client_max_body_size) that spills large bodies into tempDir.
func NewParser(maxBodySize int64, tempDir string) *Parser {
	return &Parser{maxBodySize: maxBodySize, spillThreshold: SpillThreshold, tempDir: tempDir}
}

// Reset prepares the parser to read the next request on the same
// connection after keep-alive reuse.
func (p *Parser) Reset() {
	p.headers.Reset()
	p.state = parsingHeaders
	p.req = nil
	p.bodyGoal = 0
	p.bodyRead = 0
	p.bodyBuf = nil
	p.bodyFile = nil
	p.chunkedDec = nil
	p.chunkedDone = false
	p.finalized = false
	p.overflow = nil
}

// Done reports whether a Request is fully parsed and ready.
func (p *Parser) Done() bool { return p.state == complete }

// Close releases any spill file still owned by an unfinished parse, so
// a connection torn down mid-upload doesn't leave its temp file behind.
func (p *Parser) Close() {
	if p.bodyFile != nil && !p.finalized {
		name := p.bodyFile.Name()
		p.bodyFile.Close()
		os.Remove(name)
		p.bodyFile = nil
	}
}

// Request returns the parsed request. Only valid once Done() is true.
func (p *Parser) Request() *Request { return p.req }

// Leftover returns bytes fed to the parser past the end of the current
// request; present only once Done() is true. The connection re-feeds
// these into the next request's parse cycle after Reset, rather than
// discarding them, once the current response has been fully written;
// pipelining governs when they're acted on, not whether they're kept.
func (p *Parser) Leftover() []byte { return p.overflow }

// Feed hands the parser the next slice of bytes read from the socket.
// It always consumes all of data (buffering internally), returning an
// error if the bytes make the request malformed, oversized, or use an
// unsupported version.
func (p *Parser) Feed(data []byte) error {
	switch p.state {
	case parsingHeaders:
		return p.feedHeaders(data)
	case readingBody:
		if err := p.feedBody(data); err != nil {
			return err
		}
		if p.bodyComplete() {
			p.state = complete
		}
		return nil
	default:
		return nil
	}
}

func (p *Parser) feedHeaders(data []byte) error {
	p.headers.Write(data)
	if p.headers.Len() > MaxRequestLineSize+MaxHeaderBlockSize {
		return ErrHeadersTooLarge
	}

	buf := p.headers.Bytes()
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx == -1 {
		return nil
	}
	block := buf[:idx+2] // request-line + header lines, each CRLF-terminated, no trailing blank line
	leftover := append([]byte(nil), buf[idx+4:]...)

	req, err := p.parseBlock(block)
	if err != nil {
		return err
	}
	p.req = req
	p.headers.Reset()
	p.state = readingBody
	if err := p.setupBody(); err != nil {
		return err
	}
	if len(leftover) > 0 {
		if err := p.feedBody(leftover); err != nil {
			return err
		}
	}
	if p.bodyComplete() {
		p.state = complete
	}
	return nil
}

func (p *Parser) parseBlock(block []byte) (*Request, error) {
	lineEnd := bytes.Index(block, []byte("\r\n"))
	if lineEnd == -1 {
		lineEnd = len(block)
	}
	if lineEnd > MaxRequestLineSize {
		return nil, ErrRequestLineTooLarge
	}
	line := block[:lineEnd]

	req := &Request{}
	if err := parseRequestLine(req, line); err != nil {
		return nil, err
	}

	var headerSection []byte
	if lineEnd < len(block) {
		headerSection = block[lineEnd+2:]
	}
	if len(headerSection) > MaxHeaderBlockSize {
		return nil, ErrHeadersTooLarge
	}
	if err := parseHeaderLines(req, headerSection); err != nil {
		return nil, err
	}

	if req.Header.Count("Host") > 1 {
		return nil, ErrDuplicateHostHeader
	}
	req.Host = req.Header.Get("Host")

	hasCL := req.Header.Has("Content-Length")
	hasTE := req.Header.Has("Transfer-Encoding")
	if hasCL && hasTE {
		return nil, ErrCLAndTE
	}
	if hasCL {
		if req.Header.Count("Content-Length") > 1 {
			return nil, ErrDuplicateContentLen
		}
		n, err := strconv.ParseInt(req.Header.Get("Content-Length"), 10, 64)
		if err != nil || n < 0 {
			return nil, ErrInvalidContentLength
		}
		req.ContentLength = n
	} else if hasTE {
		if !equalFold(req.Header.Get("Transfer-Encoding"), "chunked") {
			return nil, ErrInvalidHeaderLine
		}
		req.Chunked = true
		req.ContentLength = -1
	} else {
		req.ContentLength = 0
	}

	switch equalFoldConn := req.Header.Get("Connection"); {
	case equalFold(equalFoldConn, "close"):
		req.Close = true
	case req.Version == "HTTP/1.0" && !equalFold(equalFoldConn, "keep-alive"):
		req.Close = true
	}

	return req, nil
}

func parseRequestLine(req *Request, line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 == -1 {
		return ErrInvalidRequestLine
	}
	methodTok := line[:sp1]
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 == -1 {
		return ErrInvalidRequestLine
	}
	target := rest[:sp2]
	version := rest[sp2+1:]

	if len(target) == 0 || (target[0] != '/' && target[0] != '*') {
		return ErrInvalidPath
	}
	versionStr := string(version)
	if versionStr != "HTTP/1.1" && versionStr != "HTTP/1.0" {
		return ErrHTTPVersionUnsupported
	}

	req.MethodRaw = string(methodTok)
	req.Method = ParseMethod(methodTok)
	req.Target = string(target)
	req.Version = versionStr

	if q := bytes.IndexByte(target, '?'); q >= 0 {
		req.Path = string(target[:q])
		req.RawQuery = string(target[q+1:])
	} else {
		req.Path = string(target)
	}
	return nil
}

func parseHeaderLines(req *Request, block []byte) error {
	pos := 0
	for pos < len(block) {
		if block[pos] == ' ' || block[pos] == '\t' {
			return ErrObsoleteLineFolding
		}
		lineEnd := bytes.Index(block[pos:], []byte("\r\n"))
		if lineEnd == -1 {
			return ErrInvalidHeaderLine
		}
		lineEnd += pos
		line := block[pos:lineEnd]

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return ErrInvalidHeaderLine
		}
		name := line[:colon]
		if bytes.IndexByte(name, ' ') >= 0 || bytes.IndexByte(name, '\t') >= 0 {
			return ErrInvalidHeaderLine
		}
		value := bytes.TrimSpace(line[colon+1:])
		req.Header.Add(string(name), string(value))

		pos = lineEnd + 2
	}
	return nil
}
