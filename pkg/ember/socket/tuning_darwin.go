//go:build darwin

package socket

import "syscall"

const (
	tcpFastOpen  = 0x105
	tcpKeepAlive = 0x10
	soNoSigpipe  = 0x1022
)

// applyPlatformOptions applies Darwin-specific per-connection options.
func applyPlatformOptions(fd int, cfg *Config) {
	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, soNoSigpipe, 1)
	if cfg.KeepAlive {
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpKeepAlive, 60)
	}
}

// applyListenerOptions applies Darwin-specific listener options.
func applyListenerOptions(fd int, cfg *Config) error {
	var lastErr error
	if cfg.FastOpen {
		if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpFastOpen, 256); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
