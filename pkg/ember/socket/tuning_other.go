//go:build !linux && !darwin

package socket

// applyPlatformOptions is a no-op on platforms without specific tuning.
func applyPlatformOptions(fd int, cfg *Config) {}

// applyListenerOptions is a no-op on platforms without specific tuning.
func applyListenerOptions(fd int, cfg *Config) error { return nil }
