//go:build darwin

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin Poller backend. Interest is tracked
// per-fd since kqueue registers read and write interest as separate
// filters rather than a single combined event mask.
type kqueuePoller struct {
	fd       int
	interest map[int]EventMask
}

// New returns a kqueue-backed Poller.
func New() (Poller, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueuePoller{fd: fd, interest: make(map[int]EventMask)}, nil
}

func (p *kqueuePoller) changesFor(fd int, mask EventMask) []unix.Kevent_t {
	var changes []unix.Kevent_t
	addFilter := func(filter int16, want bool) {
		flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
		if !want {
			flags = unix.EV_DELETE
		}
		changes = append(changes, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  flags,
		})
	}
	addFilter(unix.EVFILT_READ, mask&EventReadable != 0)
	addFilter(unix.EVFILT_WRITE, mask&EventWritable != 0)
	return changes
}

func (p *kqueuePoller) Add(fd int, mask EventMask) error {
	p.interest[fd] = mask
	changes := p.changesFor(fd, mask)
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Modify(fd int, mask EventMask) error {
	old := p.interest[fd]
	p.interest[fd] = mask
	var changes []unix.Kevent_t
	if old&EventReadable != mask&EventReadable {
		changes = append(changes, p.changesFor(fd, mask)[0])
	}
	if old&EventWritable != mask&EventWritable {
		changes = append(changes, p.changesFor(fd, mask)[1])
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Remove(fd int) error {
	delete(p.interest, fd)
	changes := p.changesFor(fd, 0)
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *kqueuePoller) Wait(timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	buf := make([]unix.Kevent_t, 256)
	n, err := unix.Kevent(p.fd, nil, buf, ts)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	byFd := make(map[int]EventMask, n)
	for i := 0; i < n; i++ {
		fd := int(buf[i].Ident)
		var m EventMask
		switch buf[i].Filter {
		case unix.EVFILT_READ:
			m = EventReadable
		case unix.EVFILT_WRITE:
			m = EventWritable
		}
		if buf[i].Flags&unix.EV_EOF != 0 {
			m |= EventHangup
		}
		if buf[i].Flags&unix.EV_ERROR != 0 {
			m |= EventError
		}
		byFd[fd] |= m
	}
	out := make([]Event, 0, len(byFd))
	for fd, m := range byFd {
		out = append(out, Event{Fd: fd, Mask: m})
	}
	return out, nil
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.fd)
}
