package console

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// OpenSerial returns an open function for New that opens the named serial
// device at the given baud rate, 8N1.
func OpenSerial(device string, baudRate int) func() (io.ReadWriteCloser, error) {
	return func() (io.ReadWriteCloser, error) {
		mode := &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(device, mode)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", device, err)
		}
		return port, nil
	}
}
