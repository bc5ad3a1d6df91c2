//go:build linux

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux Poller backend.
type epollPoller struct {
	fd     int
	events []unix.EpollEvent
}

// New returns an epoll-backed Poller.
func New() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{fd: fd, events: make([]unix.EpollEvent, 256)}, nil
}

func toEpollEvents(mask EventMask) uint32 {
	var ev uint32
	if mask&EventReadable != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&EventWritable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) EventMask {
	var mask EventMask
	if ev&unix.EPOLLIN != 0 {
		mask |= EventReadable
	}
	if ev&unix.EPOLLOUT != 0 {
		mask |= EventWritable
	}
	if ev&(unix.EPOLLERR) != 0 {
		mask |= EventError
	}
	if ev&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		mask |= EventHangup
	}
	return mask
}

func (p *epollPoller) Add(fd int, mask EventMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Modify(fd int, mask EventMask) error {
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) Remove(fd int) error {
	err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	return err
}

func (p *epollPoller) Wait(timeout time.Duration) ([]Event, error) {
	ms := int(timeout / time.Millisecond)
	if timeout < 0 {
		ms = -1
	}
	n, err := unix.EpollWait(p.fd, p.events, ms)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Event{Fd: int(p.events[i].Fd), Mask: fromEpollEvents(p.events[i].Events)})
	}
	return out, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.fd)
}
