// Package scd30dev adapts the SCD30 chip driver to the measurement loop's
// sensor contract and registers it as type "scd30".
package scd30dev

import (
	"scd30node-go/drivers/scd30"
	"scd30node-go/errcode"
	"scd30node-go/sensor"
)

func init() { sensor.Register("scd30", build) }

func build(id string, s sensor.Settings) (sensor.Driver, error) {
	if s.Bus == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "scd30." + id, Msg: "i2c bus required"}
	}
	d := &Driver{dev: scd30.New(s.Bus)}
	d.dev.Configure(scd30.Config{
		Address:         s.Addr,
		Interval:        s.Interval,
		AmbientPressure: s.Pressure,
	})
	return d, nil
}

// Driver maps the loop contract onto the SCD30's continuous mode: Wake
// starts conversion, Sleep stops it, and the part measures on its own in
// between.
type Driver struct {
	dev scd30.Device
}

func (d *Driver) Wake() error  { return d.dev.StartContinuous() }
func (d *Driver) Sleep() error { return d.dev.StopContinuous() }

// StartMeasurement is a no-op: an awake SCD30 converts continuously.
func (d *Driver) StartMeasurement() error { return nil }

func (d *Driver) DataReady() (bool, error) { return d.dev.DataReady() }

func (d *Driver) ReadMeasurement() (sensor.Measurement, error) {
	m, err := d.dev.ReadMeasurement()
	if err != nil {
		return sensor.Measurement{}, err
	}
	return sensor.Measurement{
		CO2PPM: m.CO2PPM,
		TempC:  m.TempC,
		RH:     m.RH,
		Fields: sensor.FieldCO2 | sensor.FieldTH,
	}, nil
}
