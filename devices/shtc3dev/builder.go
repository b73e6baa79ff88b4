// Package shtc3dev registers the Sensirion SHTC3 as sensor type "shtc3".
// It measures temperature and humidity only, so cycles built on it uplink
// without the CO2 field.
package shtc3dev

import (
	"tinygo.org/x/drivers/shtc3"

	"scd30node-go/errcode"
	"scd30node-go/sensor"
)

func init() { sensor.Register("shtc3", build) }

func build(id string, s sensor.Settings) (sensor.Driver, error) {
	if s.Bus == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "shtc3." + id, Msg: "i2c bus required"}
	}
	return &Driver{dev: shtc3.New(s.Bus)}, nil
}

// Driver adapts the SHTC3. The part converts on demand during the read
// (about 12ms with clock stretching), so DataReady is always true once
// awake.
type Driver struct {
	dev shtc3.Device
}

func (d *Driver) Wake() error              { return d.dev.WakeUp() }
func (d *Driver) Sleep() error             { return d.dev.Sleep() }
func (d *Driver) StartMeasurement() error  { return nil }
func (d *Driver) DataReady() (bool, error) { return true, nil }

func (d *Driver) ReadMeasurement() (sensor.Measurement, error) {
	tmc, rhx100, err := d.dev.ReadTemperatureHumidity()
	if err != nil {
		return sensor.Measurement{}, err
	}
	return sensor.Measurement{
		TempC:  float32(tmc) / 1000,
		RH:     float32(rhx100) / 100,
		Fields: sensor.FieldTH,
	}, nil
}
