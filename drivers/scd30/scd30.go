// Package scd30 provides a driver for the Sensirion SCD30 CO2 module (NDIR
// CO2 plus temperature and humidity).
//
// The SCD30 converts autonomously once continuous mode is on:
//
//	d.StartContinuous()           // begin converting
//	ok, _ := d.DataReady()        // poll
//	m, err := d.ReadMeasurement() // fetch when ready
//
// NOTE: unlike most Sensirion parts the SCD30 does not tolerate a
// repeated-start read. Every register read here is a command write, a short
// pause, then a separate read transaction; I2C.Tx is never called with both
// w and r set.
package scd30

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"tinygo.org/x/drivers"

	"scd30node-go/x/mathx"
)

// I2C address.
const Address = 0x61

// Commands (per the Sensirion interface description).
const (
	cmdStartContinuous = 0x0010
	cmdStopContinuous  = 0x0104
	cmdSetInterval     = 0x4600
	cmdDataReady       = 0x0202
	cmdReadMeasurement = 0x0300
	cmdSoftReset       = 0xD304
	cmdFirmware        = 0xD100
)

// ErrBadCRC reports a corrupted word in a sensor read.
var ErrBadCRC = errors.New("scd30: crc mismatch")

// Config controls conversion behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x61 if zero.
	Address uint16
	// Interval is the chip's continuous conversion interval, clamped to
	// the 2s..1800s the part supports. Default 2s.
	Interval time.Duration
	// AmbientPressure enables pressure compensation, in millibar
	// (700..1400). Zero disables compensation.
	AmbientPressure uint16
	// CommandDelay is the pause between a command write and its read.
	// Default 4ms; the part needs at least 3ms.
	CommandDelay time.Duration
}

// Measurement is one converted sample.
type Measurement struct {
	CO2PPM float32
	TempC  float32
	RH     float32
}

// Device wraps an I2C connection to an SCD30 module.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config
	buf [18]byte // reuse buffer to avoid allocations
}

// New creates a driver over a configured I2C bus. It does not touch the
// device.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure applies cfg (or defaults) without starting a conversion.
func (d *Device) Configure(cfgs ...Config) {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.CommandDelay <= 0 {
		c.CommandDelay = 4 * time.Millisecond
	}
	d.cfg = c
}

// StartContinuous programs the conversion interval and starts continuous
// mode with the configured pressure compensation. The first sample is ready
// after roughly one interval.
func (d *Device) StartContinuous() error {
	if err := d.writeCmd(cmdSetInterval, d.intervalSeconds()); err != nil {
		return err
	}
	return d.writeCmd(cmdStartContinuous, d.cfg.AmbientPressure)
}

// StopContinuous halts conversion; the part idles at reduced power.
func (d *Device) StopContinuous() error {
	return d.writeCmd(cmdStopContinuous)
}

// SetInterval changes the continuous conversion interval.
func (d *Device) SetInterval(interval time.Duration) error {
	if d.cfg.CommandDelay == 0 {
		d.Configure()
	}
	d.cfg.Interval = interval
	return d.writeCmd(cmdSetInterval, d.intervalSeconds())
}

// SoftReset restarts the sensor firmware. Give the part about two seconds
// before talking to it again.
func (d *Device) SoftReset() error {
	return d.writeCmd(cmdSoftReset)
}

// DataReady reports whether a sample is waiting to be read.
func (d *Device) DataReady() (bool, error) {
	var w [1]uint16
	if err := d.readWords(cmdDataReady, w[:]); err != nil {
		return false, err
	}
	return w[0] == 1, nil
}

// ReadMeasurement fetches one sample. Call it only after DataReady reports
// true; the part answers stale or zero data otherwise.
func (d *Device) ReadMeasurement() (Measurement, error) {
	var w [6]uint16
	if err := d.readWords(cmdReadMeasurement, w[:]); err != nil {
		return Measurement{}, err
	}
	return Measurement{
		CO2PPM: wordsToFloat(w[0], w[1]),
		TempC:  wordsToFloat(w[2], w[3]),
		RH:     wordsToFloat(w[4], w[5]),
	}, nil
}

// FirmwareVersion reads the sensor firmware revision.
func (d *Device) FirmwareVersion() (major, minor uint8, err error) {
	var w [1]uint16
	if err := d.readWords(cmdFirmware, w[:]); err != nil {
		return 0, 0, err
	}
	return uint8(w[0] >> 8), uint8(w[0]), nil
}

func (d *Device) intervalSeconds() uint16 {
	return uint16(mathx.Clamp(int(d.cfg.Interval/time.Second), 2, 1800))
}

func (d *Device) commandDelay() time.Duration {
	if d.cfg.CommandDelay > 0 {
		return d.cfg.CommandDelay
	}
	return 4 * time.Millisecond
}

// writeCmd sends a command, optionally with argument words. Each argument
// travels big-endian with its CRC behind it.
func (d *Device) writeCmd(cmd uint16, args ...uint16) error {
	if d.cfg.CommandDelay == 0 {
		d.Configure()
	}
	b := d.buf[:0]
	b = append(b, byte(cmd>>8), byte(cmd))
	for _, a := range args {
		b = append(b, byte(a>>8), byte(a))
		b = append(b, crc8(b[len(b)-2:]))
	}
	return d.bus.Tx(d.Address, b, nil)
}

// readWords issues cmd, pauses, and reads len(out) big-endian words, each
// followed by its CRC on the wire.
func (d *Device) readWords(cmd uint16, out []uint16) error {
	if err := d.writeCmd(cmd); err != nil {
		return err
	}
	time.Sleep(d.commandDelay())
	raw := d.buf[:3*len(out)]
	if err := d.bus.Tx(d.Address, nil, raw); err != nil {
		return err
	}
	for i := range out {
		chunk := raw[3*i : 3*i+3]
		if crc8(chunk[:2]) != chunk[2] {
			return ErrBadCRC
		}
		out[i] = binary.BigEndian.Uint16(chunk)
	}
	return nil
}

// wordsToFloat reassembles an IEEE-754 float from its two wire words.
func wordsToFloat(hi, lo uint16) float32 {
	return math.Float32frombits(uint32(hi)<<16 | uint32(lo))
}

// crc8 is the Sensirion CRC-8: polynomial 0x31, init 0xFF, no reflection.
func crc8(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
