// Package senseairdev registers the SenseAir S8 as sensor type
// "senseair-s8": a CO2-only part spoken to over Modbus RTU, the usual choice
// when the node runs host-side next to a USB serial adapter. Its cycles
// uplink with the CO2 field alone.
package senseairdev

import (
	"encoding/binary"
	"time"

	"github.com/goburrow/modbus"

	"scd30node-go/errcode"
	"scd30node-go/sensor"
)

func init() { sensor.Register("senseair-s8", build) }

// The S8 Modbus map: input register 3 holds "Space CO2" in ppm.
const regCO2 = 3

// Factory defaults for the sensor's serial side.
const (
	defaultBaud   = 9600
	defaultUnitID = 0xFE // "any sensor" address
)

func build(id string, s sensor.Settings) (sensor.Driver, error) {
	if s.Device == "" {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "senseair." + id, Msg: "serial device required"}
	}
	baud := s.Baud
	if baud <= 0 {
		baud = defaultBaud
	}
	unit := s.UnitID
	if unit == 0 {
		unit = defaultUnitID
	}

	h := modbus.NewRTUClientHandler(s.Device)
	h.BaudRate = baud
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.SlaveId = unit
	h.Timeout = 500 * time.Millisecond

	return &Driver{handler: h, client: modbus.NewClient(h)}, nil
}

// regReader is the slice of goburrow's modbus.Client the S8 needs.
type regReader interface {
	ReadInputRegisters(address, quantity uint16) (results []byte, err error)
}

// Driver drives the S8. The part measures continuously on its own power, so
// Wake and Sleep only open and close the serial line.
type Driver struct {
	handler *modbus.RTUClientHandler
	client  regReader
}

func (d *Driver) Wake() error {
	if d.handler == nil {
		return nil
	}
	return d.handler.Connect()
}

func (d *Driver) Sleep() error {
	if d.handler == nil {
		return nil
	}
	return d.handler.Close()
}

func (d *Driver) StartMeasurement() error  { return nil }
func (d *Driver) DataReady() (bool, error) { return true, nil }

func (d *Driver) ReadMeasurement() (sensor.Measurement, error) {
	raw, err := d.client.ReadInputRegisters(regCO2, 1)
	if err != nil {
		return sensor.Measurement{}, err
	}
	if len(raw) != 2 {
		return sensor.Measurement{}, &errcode.E{C: errcode.SensorRead, Op: "senseair.read",
			Msg: "short register response"}
	}
	return sensor.Measurement{
		CO2PPM: float32(binary.BigEndian.Uint16(raw)),
		Fields: sensor.FieldCO2,
	}, nil
}
