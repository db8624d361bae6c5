//go:build linux

package supervisor

import (
	"fmt"
	"os"
)

// RealWatchdog drives the Linux watchdog character device.
type RealWatchdog struct {
	file *os.File
}

// NewRealWatchdog opens the watchdog device. Opening arms the hardware: the
// device resets unless Pet is called within the driver's timeout.
func NewRealWatchdog(device string) (*RealWatchdog, error) {
	if device == "" {
		device = "/dev/watchdog"
	}
	file, err := os.OpenFile(device, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog %s: %w", device, err)
	}
	return &RealWatchdog{file: file}, nil
}

// Pet services the watchdog.
func (w *RealWatchdog) Pet() error {
	if _, err := w.file.Write([]byte{0}); err != nil {
		return fmt.Errorf("pet watchdog: %w", err)
	}
	return nil
}

// Close disarms the watchdog with the magic close character, then releases
// the device. Without the magic byte the driver keeps counting down.
func (w *RealWatchdog) Close() error {
	if _, err := w.file.Write([]byte{'V'}); err != nil {
		w.file.Close()
		return fmt.Errorf("disarm watchdog: %w", err)
	}
	return w.file.Close()
}
