package senseairdev

import (
	"errors"
	"testing"

	"scd30node-go/errcode"
	"scd30node-go/sensor"
)

type fakeRegs struct {
	resp  []byte
	err   error
	reads int
}

func (f *fakeRegs) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestReadMeasurementCO2Only(t *testing.T) {
	d := &Driver{client: &fakeRegs{resp: []byte{0x02, 0x58}}}
	m, err := d.ReadMeasurement()
	if err != nil {
		t.Fatalf("ReadMeasurement: %v", err)
	}
	if m.CO2PPM != 600 {
		t.Fatalf("CO2 = %v, want 600", m.CO2PPM)
	}
	if m.Fields != sensor.FieldCO2 {
		t.Fatalf("fields = %v, want CO2 only", m.Fields)
	}
}

func TestShortResponseRejected(t *testing.T) {
	d := &Driver{client: &fakeRegs{resp: []byte{0x02}}}
	if _, err := d.ReadMeasurement(); errcode.Of(err) != errcode.SensorRead {
		t.Fatalf("err = %v, want sensor read fault", err)
	}
}

func TestBusErrorPropagates(t *testing.T) {
	lineErr := errors.New("rtu: timeout")
	d := &Driver{client: &fakeRegs{err: lineErr}}
	if _, err := d.ReadMeasurement(); !errors.Is(err, lineErr) {
		t.Fatalf("err = %v, want the line error", err)
	}
}

func TestBuildRequiresDevice(t *testing.T) {
	_, err := sensor.Build("senseair-s8", "co2", sensor.Settings{})
	if errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("err = %v, want invalid params", err)
	}
}

func TestWakeSleepWithoutSerialLine(t *testing.T) {
	d := &Driver{client: &fakeRegs{}}
	if err := d.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	if err := d.Sleep(); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
}
