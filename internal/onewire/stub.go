//go:build !linux

package onewire

import "errors"

// RealBus is not available on non-Linux platforms.
type RealBus struct{}

// NewRealBus returns an error on non-Linux platforms.
func NewRealBus(chipName string, offset int) (*RealBus, error) {
	return nil, errors.New("onewire: not supported on this platform (requires Linux)")
}

// Reset is not implemented on non-Linux platforms.
func (b *RealBus) Reset() (bool, error) {
	return false, errors.New("onewire: not supported")
}

// WriteByte is not implemented on non-Linux platforms.
func (b *RealBus) WriteByte(v byte) error {
	return errors.New("onewire: not supported")
}

// ReadByte is not implemented on non-Linux platforms.
func (b *RealBus) ReadByte() (byte, error) {
	return 0, errors.New("onewire: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *RealBus) Close() error {
	return nil
}
