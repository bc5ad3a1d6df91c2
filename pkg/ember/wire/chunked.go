package wire

import "bytes"

// ChunkedDecoder incrementally decodes RFC 7230 §4.1 chunked transfer
// coding. It is fed whatever bytes the non-blocking socket read
// happened to return this iteration and may need many Feed calls to
// finish a single chunk; there is no blocking read to fall back on in
// a single-threaded event loop.
type ChunkedDecoder struct {
	pending   []byte
	remaining uint64
	state     chunkedState
	maxChunk  uint64
}

type chunkedState int

const (
	csSize chunkedState = iota
	csData
	csDataCRLF
	csTrailer
	csDone
)

// NewChunkedDecoder returns a decoder with a 16MiB per-chunk ceiling
// (prevents a single chunk-size line from claiming an unbounded
// allocation).
func NewChunkedDecoder() *ChunkedDecoder {
	return &ChunkedDecoder{maxChunk: 16 << 20}
}

// Feed appends p to the decoder's pending input and decodes as far as
// it can, calling sink with each run of decoded payload bytes. It
// returns true once the terminating zero-size chunk and trailers have
// been consumed. Remaining undecoded bytes (pipelined next-request
// data) are retrievable via Leftover after Feed reports done.
func (d *ChunkedDecoder) Feed(p []byte, sink func([]byte) error) (done bool, err error) {
	d.pending = append(d.pending, p...)

	for {
		switch d.state {
		case csSize:
			idx := bytes.Index(d.pending, []byte("\r\n"))
			if idx == -1 {
				if len(d.pending) > 64 {
					return false, ErrChunkedEncoding
				}
				return false, nil
			}
			line := d.pending[:idx]
			if semi := bytes.IndexByte(line, ';'); semi >= 0 {
				line = line[:semi]
			}
			size, perr := parseHex(line)
			if perr != nil {
				return false, ErrChunkedEncoding
			}
			if size > d.maxChunk {
				return false, ErrChunkedEncoding
			}
			d.pending = d.pending[idx+2:]
			d.remaining = size
			if size == 0 {
				d.state = csTrailer
			} else {
				d.state = csData
			}

		case csData:
			if d.remaining == 0 {
				d.state = csDataCRLF
				continue
			}
			if len(d.pending) == 0 {
				return false, nil
			}
			n := uint64(len(d.pending))
			if n > d.remaining {
				n = d.remaining
			}
			if err := sink(d.pending[:n]); err != nil {
				return false, err
			}
			d.pending = d.pending[n:]
			d.remaining -= n
			if d.remaining == 0 {
				d.state = csDataCRLF
			}

		case csDataCRLF:
			if len(d.pending) < 2 {
				return false, nil
			}
			if d.pending[0] != '\r' || d.pending[1] != '\n' {
				return false, ErrChunkedEncoding
			}
			d.pending = d.pending[2:]
			d.state = csSize

		case csTrailer:
			idx := bytes.Index(d.pending, []byte("\r\n"))
			if idx == -1 {
				return false, nil
			}
			if idx == 0 {
				d.pending = d.pending[2:]
				d.state = csDone
				return true, nil
			}
			// Trailer headers are permitted but discarded.
			d.pending = d.pending[idx+2:]

		case csDone:
			return true, nil
		}
	}
}

// Leftover returns bytes fed but not yet consumed by the chunked
// framing; present only once Feed has returned done=true, and belongs
// to whatever follows this request (pipelined bytes or, more commonly
// for this server, nothing since pipelining is not supported).
func (d *ChunkedDecoder) Leftover() []byte { return d.pending }

func parseHex(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, ErrChunkedEncoding
	}
	var n uint64
	for _, c := range b {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= uint64(c - '0')
		case c >= 'a' && c <= 'f':
			n |= uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			n |= uint64(c-'A') + 10
		default:
			return 0, ErrChunkedEncoding
		}
	}
	return n, nil
}
