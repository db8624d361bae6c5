//go:build !linux

package heater

import "errors"

// RealActuator is not available on non-Linux platforms.
type RealActuator struct{}

// NewRealActuator returns an error on non-Linux platforms.
func NewRealActuator(chipName string, offset int) (*RealActuator, error) {
	return nil, errors.New("heater: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (a *RealActuator) Set(on bool) error {
	return errors.New("heater: not supported")
}

// Close is not implemented on non-Linux platforms.
func (a *RealActuator) Close() error {
	return nil
}
