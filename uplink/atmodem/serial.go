//go:build !rp2040

package atmodem

import (
	"go.bug.st/serial"

	"scd30node-go/errcode"
)

// SerialConfig names the host serial line the modem hangs off.
type SerialConfig struct {
	Device string // e.g. /dev/ttyUSB0
	Baud   int    // 0 means DefaultBaud
	Modem  Config
}

// OpenSerial opens the modem on a host serial port. Close on the returned
// Modem closes the port.
func OpenSerial(cfg SerialConfig) (*Modem, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, &errcode.E{C: errcode.LinkDown, Op: "atmodem.open", Msg: cfg.Device, Err: err}
	}
	return New(port, cfg.Modem), nil
}
