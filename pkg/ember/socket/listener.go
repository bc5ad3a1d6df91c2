package socket

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Listener is a raw, non-blocking TCP listening socket. The event loop
// registers its fd with poller.Poller and calls Accept whenever the
// poller reports it readable.
type Listener struct {
	fd   int
	host string
	port int
}

// NewListener creates, tunes, binds, and starts listening on a raw
// non-blocking socket for host:port. host may be an IPv4 or IPv6
// literal, or empty/"0.0.0.0" to bind all interfaces.
func NewListener(host string, port int, cfg *Config) (*Listener, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	ip := net.ParseIP(host)
	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip == nil || ip.To4() != nil {
		var addr4 [4]byte
		if ip != nil {
			copy(addr4[:], ip.To4())
		}
		sa = &unix.SockaddrInet4{Port: port, Addr: addr4}
	} else {
		family = unix.AF_INET6
		var addr16 [16]byte
		copy(addr16[:], ip.To16())
		sa = &unix.SockaddrInet6{Port: port, Addr: addr16}
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s:%d: %w", host, port, err)
	}
	// Best-effort: TCP_DEFER_ACCEPT/TCP_FASTOPEN failing doesn't stop the
	// listener from working.
	_ = applyListenerOptions(fd, cfg)

	const backlog = 1024
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Listener{fd: fd, host: host, port: port}, nil
}

func (l *Listener) Fd() int      { return l.fd }
func (l *Listener) Host() string { return l.host }
func (l *Listener) Port() int    { return l.port }

func (l *Listener) Close() error { return unix.Close(l.fd) }

// Accept accepts one pending connection without blocking. ok is false
// (with a nil error) when there was nothing to accept yet; the normal
// EAGAIN case after the poller wakes the loop for a burst of SYNs but
// another iteration already drained the backlog.
func (l *Listener) Accept() (fd int, remote string, ok bool, err error) {
	nfd, sa, aerr := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if aerr != nil {
		if aerr == unix.EAGAIN || aerr == unix.EWOULDBLOCK {
			return 0, "", false, nil
		}
		return 0, "", false, aerr
	}
	return nfd, sockaddrString(sa), true, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return ""
	}
}

// ApplyConn tunes an accepted connection's fd.
func ApplyConn(fd int, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.NoDelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return err
		}
	}
	if cfg.RecvBuffer > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBuffer)
	}
	if cfg.SendBuffer > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SendBuffer)
	}
	if cfg.KeepAlive {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	}
	applyPlatformOptions(fd, cfg)
	return nil
}

// Read, Write and CloseFd keep every raw syscall touching a connection
// fd inside this package rather than scattered across conn/engine.
func Read(fd int, buf []byte) (int, error)  { return unix.Read(fd, buf) }
func Write(fd int, buf []byte) (int, error) { return unix.Write(fd, buf) }
func CloseFd(fd int) error                  { return unix.Close(fd) }

// IsWouldBlock reports whether err is EAGAIN/EWOULDBLOCK, meaning the
// caller should wait for the next poller readiness event rather than
// treat this as a real I/O failure.
func IsWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
