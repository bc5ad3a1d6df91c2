//go:build !linux && !darwin

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller is the portable poll(2) fallback for platforms without a
// dedicated epoll/kqueue backend. Unlike those, poll(2) takes the
// whole fd set on every call, so Poller tracks interest itself.
type pollPoller struct {
	interest map[int]EventMask
}

// New returns a poll(2)-backed Poller.
func New() (Poller, error) {
	return &pollPoller{interest: make(map[int]EventMask)}, nil
}

func (p *pollPoller) Add(fd int, mask EventMask) error {
	p.interest[fd] = mask
	return nil
}

func (p *pollPoller) Modify(fd int, mask EventMask) error {
	p.interest[fd] = mask
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	delete(p.interest, fd)
	return nil
}

func toPollEvents(mask EventMask) int16 {
	var ev int16
	if mask&EventReadable != 0 {
		ev |= unix.POLLIN
	}
	if mask&EventWritable != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func (p *pollPoller) Wait(timeout time.Duration) ([]Event, error) {
	fds := make([]unix.PollFd, 0, len(p.interest))
	for fd, mask := range p.interest {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(mask)})
	}
	ms := int(timeout / time.Millisecond)
	if timeout < 0 {
		ms = -1
	}
	n, err := unix.Poll(fds, ms)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, n)
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		var m EventMask
		if pfd.Revents&unix.POLLIN != 0 {
			m |= EventReadable
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			m |= EventWritable
		}
		if pfd.Revents&unix.POLLERR != 0 {
			m |= EventError
		}
		if pfd.Revents&unix.POLLHUP != 0 {
			m |= EventHangup
		}
		out = append(out, Event{Fd: int(pfd.Fd), Mask: m})
	}
	return out, nil
}

func (p *pollPoller) Close() error {
	return nil
}
