package cgi

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/yourusername/ember/pkg/ember/wire"
)

// maxCGIHeaderBlock bounds how much stdout a runaway or malformed
// script can make the engine buffer while hunting for the header
// terminator, mirroring the request-side header cap in wire.limits.
const maxCGIHeaderBlock = 64 * 1024

// OutputParser splits a CGI child's stdout into its header block and
// body stream. Feed is called once per readiness-driven read, the same
// incremental shape as wire.Parser.Feed.
type OutputParser struct {
	buf        bytes.Buffer
	headerDone bool
	status     int
	header     wire.Header
}

// NewOutputParser returns a parser ready to receive a CGI child's
// stdout bytes.
func NewOutputParser() *OutputParser {
	return &OutputParser{status: 200}
}

// HeaderDone reports whether the header/body split has been found.
func (p *OutputParser) HeaderDone() bool { return p.headerDone }

// Status returns the parsed status code, defaulting to 200 when the
// script sent no Status header.
func (p *OutputParser) Status() int { return p.status }

// Header returns the parsed CGI response headers, forwarded verbatim
// except for Status/Location special-casing.
func (p *OutputParser) Header() *wire.Header { return &p.header }

// Feed appends data and, once the header terminator has been seen,
// returns any trailing body bytes found in this call. Before the
// terminator is seen it returns (nil, false, nil); once seen it
// returns (bodyChunk, true, nil) and subsequent calls pass their input
// straight through as body bytes.
func (p *OutputParser) Feed(data []byte) (bodyChunk []byte, ready bool, err error) {
	if p.headerDone {
		return data, true, nil
	}

	if p.buf.Len()+len(data) > maxCGIHeaderBlock {
		return nil, false, wire.ErrHeadersTooLarge
	}
	p.buf.Write(data)

	raw := p.buf.Bytes()
	sep := []byte("\r\n\r\n")
	idx := bytes.Index(raw, sep)
	sepLen := 4
	// A blank first line ends an empty header block.
	if bytes.HasPrefix(raw, []byte("\r\n")) {
		idx, sepLen = 0, 2
	} else if bytes.HasPrefix(raw, []byte("\n")) {
		idx, sepLen = 0, 1
	}
	if idx < 0 {
		sep = []byte("\n\n")
		idx = bytes.Index(raw, sep)
		sepLen = 2
	}
	if idx < 0 {
		return nil, false, nil
	}

	headerBlock := raw[:idx]
	body := append([]byte(nil), raw[idx+sepLen:]...)
	if err := p.parseHeaderBlock(headerBlock); err != nil {
		return nil, false, err
	}
	p.headerDone = true
	p.buf.Reset()
	return body, true, nil
}

func (p *OutputParser) parseHeaderBlock(block []byte) error {
	lines := strings.Split(string(block), "\n")
	sawLocation := false
	sawStatus := false
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return wire.ErrInvalidHeaderLine
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		if strings.EqualFold(name, "Status") {
			p.status = parseStatusValue(value)
			sawStatus = true
			continue
		}
		if strings.EqualFold(name, "Location") {
			sawLocation = true
		}
		p.header.Add(name, value)
	}
	if sawLocation && !sawStatus {
		p.status = 302
	}
	return nil
}

func parseStatusValue(value string) int {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 200
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 200
	}
	return n
}
