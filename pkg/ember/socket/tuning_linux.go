//go:build linux

package socket

import "syscall"

// Linux-specific TCP options not always present in the syscall package.
const (
	tcpQuickAck      = 12
	tcpDeferAccept   = 9
	tcpFastOpen      = 23
	tcpUserTimeout   = 18
	tcpKeepIdle      = 4
	tcpKeepIntvl     = 5
	tcpKeepCnt       = 6
)

// applyPlatformOptions applies Linux-specific per-connection options.
func applyPlatformOptions(fd int, cfg *Config) {
	if cfg.QuickAck {
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpQuickAck, 1)
	}
	_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpUserTimeout, 10000)
	if cfg.KeepAlive {
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpKeepIdle, 60)
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpKeepIntvl, 10)
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpKeepCnt, 3)
	}
}

// applyListenerOptions applies Linux-specific listener options. Must run
// before listen(2) for TCP_FASTOPEN to take effect.
func applyListenerOptions(fd int, cfg *Config) error {
	var lastErr error
	if cfg.DeferAccept {
		if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpDeferAccept, 5); err != nil {
			lastErr = err
		}
	}
	if cfg.FastOpen {
		if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpFastOpen, 256); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
