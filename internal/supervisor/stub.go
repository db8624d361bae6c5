//go:build !linux

package supervisor

import "errors"

// RealWatchdog is not available on non-Linux platforms.
type RealWatchdog struct{}

// NewRealWatchdog returns an error on non-Linux platforms.
func NewRealWatchdog(device string) (*RealWatchdog, error) {
	return nil, errors.New("watchdog: not supported on this platform (requires Linux)")
}

// Pet is not implemented on non-Linux platforms.
func (w *RealWatchdog) Pet() error {
	return errors.New("watchdog: not supported")
}

// Close is not implemented on non-Linux platforms.
func (w *RealWatchdog) Close() error {
	return nil
}
