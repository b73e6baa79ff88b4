// Package sensor defines the contract between the measurement loop and a
// concrete CO2/temperature/humidity sensor, plus a registry so the node can
// pick a driver by config type and a deterministic simulator for host use.
//
// Drivers follow a split-phase shape: StartMeasurement begins a conversion,
// DataReady probes without blocking, ReadMeasurement fetches the result.
// Every call is non-blocking or bounded; the loop owns all real waiting.
package sensor

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// Fields names the quantities a driver actually measures. A driver sets only
// the bits it can deliver; the loop maps them onto payload flags.
type Fields uint8

const (
	FieldCO2 Fields = 1 << iota // CO2 concentration (ppm)
	FieldTH                     // temperature and relative humidity
)

// Measurement is one completed reading.
type Measurement struct {
	CO2PPM float32
	TempC  float32
	RH     float32 // percent, 0..100
	Fields Fields  // which of the above are meaningful
}

// Sentinel errors shared by drivers.
var (
	ErrNotReady = errors.New("sensor: not ready")
	ErrNoSensor = errors.New("sensor: not detected")
)

// Driver is the loop-facing sensor contract.
type Driver interface {
	// Wake powers the sensor up (or starts its periodic mode). Called at the
	// start of every cycle and once at Begin as a presence probe.
	Wake() error
	// Sleep puts the sensor in its low-power mode, when it has one.
	Sleep() error
	// StartMeasurement begins a single conversion. Drivers that measure
	// continuously may treat this as a no-op.
	StartMeasurement() error
	// DataReady reports whether a measurement is available. It never blocks.
	DataReady() (bool, error)
	// ReadMeasurement fetches the pending measurement. Valid only after
	// DataReady reported true; returns ErrNotReady otherwise.
	ReadMeasurement() (Measurement, error)
}

// Settings carries the wiring a builder may need. Drivers read the fields
// relevant to them and ignore the rest.
type Settings struct {
	// I2C-attached drivers.
	Bus      drivers.I2C
	Addr     uint16
	Interval time.Duration // measurement cadence hint
	Pressure uint16        // ambient pressure compensation, mbar; 0 = off

	// Serial/Modbus-attached drivers.
	Device string
	Baud   int
	UnitID uint8
}
