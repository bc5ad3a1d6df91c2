package wire

import "os"

// setupBody prepares body accumulation once the header block is fully
// parsed, per the framing decided in parseBlock: fixed length, chunked,
// or none. ErrBodyLimitExceeded here is the early-reject case where
// Content-Length alone already exceeds the body limit; no need to
// read a single body byte to know it's a 413.
func (p *Parser) setupBody() error {
	req := p.req
	if req.Chunked {
		p.chunkedDec = NewChunkedDecoder()
		return nil
	}
	if req.ContentLength <= 0 {
		req.Body = NewBufferedBody(nil)
		p.finalized = true
		return nil
	}
	if p.maxBodySize > 0 && req.ContentLength > p.maxBodySize {
		return ErrBodyLimitExceeded
	}
	p.bodyGoal = req.ContentLength
	return nil
}

func (p *Parser) feedBody(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if p.req.Chunked {
		return p.feedChunkedBody(data)
	}
	remaining := p.bodyGoal - p.bodyRead
	n := int64(len(data))
	if n > remaining {
		// Bytes past the declared Content-Length belong to whatever
		// follows this request. A client racing ahead of the response
		// shouldn't lose data, so stash them rather than drop them,
		// retrievable via Leftover.
		p.overflow = append(p.overflow, data[remaining:]...)
		data = data[:remaining]
		n = remaining
	}
	if err := p.appendBodyBytes(data); err != nil {
		return err
	}
	p.bodyRead += n
	return nil
}

func (p *Parser) feedChunkedBody(data []byte) error {
	done, err := p.chunkedDec.Feed(data, func(chunk []byte) error {
		p.bodyRead += int64(len(chunk))
		if p.maxBodySize > 0 && p.bodyRead > p.maxBodySize {
			return ErrBodyLimitExceeded
		}
		return p.appendBodyBytes(chunk)
	})
	if err != nil {
		return err
	}
	if done {
		p.chunkedDone = true
		p.overflow = append(p.overflow, p.chunkedDec.Leftover()...)
	}
	return nil
}

// appendBodyBytes accumulates b in memory until spillThreshold, then
// moves (and keeps moving) accumulation into a temp file.
func (p *Parser) appendBodyBytes(b []byte) error {
	if p.bodyFile != nil {
		_, err := p.bodyFile.Write(b)
		return err
	}
	if int64(len(p.bodyBuf))+int64(len(b)) <= p.spillThreshold {
		p.bodyBuf = append(p.bodyBuf, b...)
		return nil
	}
	f, err := os.CreateTemp(p.tempDir, "ember-body-*")
	if err != nil {
		return err
	}
	if len(p.bodyBuf) > 0 {
		if _, err := f.Write(p.bodyBuf); err != nil {
			f.Close()
			os.Remove(f.Name())
			return err
		}
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	p.bodyFile = f
	p.bodyBuf = nil
	return nil
}

// bodyComplete reports whether the body has been fully read and, on
// the first true, finalizes req.Body from whichever storage variant
// was used.
func (p *Parser) bodyComplete() bool {
	if p.finalized {
		return true
	}
	if p.req.Chunked {
		if !p.chunkedDone {
			return false
		}
	} else if p.bodyRead < p.bodyGoal {
		return false
	}
	if p.bodyFile != nil {
		p.req.Body = NewSpilledBody(p.bodyFile, p.bodyRead)
	} else {
		p.req.Body = NewBufferedBody(p.bodyBuf)
	}
	p.finalized = true
	return true
}
