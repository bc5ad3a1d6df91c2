package wire

const (
	// MaxRequestLineSize is the hard cap on the request line, RFC 7230's
	// recommended 8KiB.
	MaxRequestLineSize = 8 * 1024

	// MaxHeaderBlockSize caps the total size of the header block,
	// excluding the request line.
	MaxHeaderBlockSize = 8 * 1024

	// HeaderSlack is added on top of client_max_body_size when sizing a
	// connection's read budget.
	HeaderSlack = 8 * 1024

	// SpillThreshold is the body size at which accumulation moves from
	// an in-memory buffer to a temp file.
	SpillThreshold = 1 << 20 // 1 MiB

	// ReadChunkSize is the per-iteration read(2) size used while a
	// connection is reading a request.
	ReadChunkSize = 16 * 1024
)
