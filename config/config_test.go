package config

import (
	"strings"
	"testing"
	"time"
)

const fullDoc = `
node:
  name: bench-1
  poll_interval_ms: 50
  heartbeat_s: 10
measure:
  interval_s: 120
  commissioning_interval_s: 15
  commissioning_count: 4
  ready_timeout_ms: 2000
  tx_timeout_ms: 8000
  min_deep_sleep_ms: 5000
  keep_sensor_awake: true
sensor:
  type: SCD30
  bus: I2C0
  address: 0x61
  interval_s: 2
  pressure_mbar: 1013
uplink:
  type: atmodem
  atmodem:
    device: /dev/ttyUSB0
    confirmed: true
power:
  deep_sleep: true
  max_sleep_ms: 60000
`

func TestParseFullDocument(t *testing.T) {
	cfg, err := Parse([]byte(fullDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Node.Name != "bench-1" || cfg.Node.PollInterval() != 50*time.Millisecond {
		t.Fatalf("node = %+v", cfg.Node)
	}
	if cfg.Measure.Interval() != 2*time.Minute || cfg.Measure.CommissioningCount != 4 {
		t.Fatalf("measure = %+v", cfg.Measure)
	}
	if !cfg.Measure.KeepSensorAwake {
		t.Fatal("keep_sensor_awake lost")
	}
	if cfg.Sensor.Type != "scd30" || cfg.Sensor.Bus != "i2c0" {
		t.Fatalf("sensor types not canonicalized: %+v", cfg.Sensor)
	}
	if cfg.Sensor.Address != 0x61 || cfg.Sensor.PressureMbar != 1013 {
		t.Fatalf("sensor = %+v", cfg.Sensor)
	}
	if cfg.Uplink.Type != "atmodem" || !cfg.Uplink.Atmodem.Confirmed {
		t.Fatalf("uplink = %+v", cfg.Uplink)
	}
	if cfg.Uplink.Atmodem.Baud != 57600 {
		t.Fatalf("atmodem baud default = %d", cfg.Uplink.Atmodem.Baud)
	}
	if !cfg.Power.DeepSleep || cfg.Power.MaxSleep() != time.Minute {
		t.Fatalf("power = %+v", cfg.Power)
	}
}

func TestEmptyDocumentGetsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Node.Name != "scd30-node" {
		t.Fatalf("name = %q", cfg.Node.Name)
	}
	if cfg.Node.PollInterval() != 20*time.Millisecond || cfg.Node.Heartbeat() != 30*time.Second {
		t.Fatalf("node defaults = %+v", cfg.Node)
	}
	if cfg.Sensor.Type != "sim" || cfg.Uplink.Type != "sim" {
		t.Fatalf("types = %q/%q, want sim/sim", cfg.Sensor.Type, cfg.Uplink.Type)
	}
	if cfg.Measure.IntervalS != 0 {
		t.Fatalf("measure.interval_s = %d, want 0 (loop default)", cfg.Measure.IntervalS)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte("node:\n  nmae: typo\n"))
	if err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestUnknownUplinkTypeRejected(t *testing.T) {
	_, err := Parse([]byte("uplink:\n  type: carrier-pigeon\n"))
	if err == nil || !strings.Contains(err.Error(), "uplink.type") {
		t.Fatalf("err = %v", err)
	}
}

func TestAtmodemNeedsPort(t *testing.T) {
	_, err := Parse([]byte("uplink:\n  type: atmodem\n"))
	if err == nil {
		t.Fatal("atmodem without port accepted")
	}
	if _, err := Parse([]byte("uplink:\n  type: atmodem\n  atmodem:\n    uart: uart0\n")); err != nil {
		t.Fatalf("uart-only atmodem rejected: %v", err)
	}
}

func TestWsbridgeNeedsURL(t *testing.T) {
	_, err := Parse([]byte("uplink:\n  type: wsbridge\n"))
	if err == nil {
		t.Fatal("wsbridge without url accepted")
	}
	doc := "uplink:\n  type: wsbridge\n  wsbridge:\n    url: wss://gw.example/uplink\n"
	if _, err := Parse([]byte(doc)); err != nil {
		t.Fatalf("valid wsbridge rejected: %v", err)
	}
}

func TestPressureRange(t *testing.T) {
	if _, err := Parse([]byte("sensor:\n  pressure_mbar: 500\n")); err == nil {
		t.Fatal("pressure 500 accepted")
	}
	if _, err := Parse([]byte("sensor:\n  pressure_mbar: 0\n")); err != nil {
		t.Fatalf("pressure 0 rejected: %v", err)
	}
}

func TestSensorIntervalRange(t *testing.T) {
	if _, err := Parse([]byte("sensor:\n  interval_s: 1\n")); err == nil {
		t.Fatal("interval 1s accepted")
	}
	if _, err := Parse([]byte("sensor:\n  interval_s: 1801\n")); err == nil {
		t.Fatal("interval 1801s accepted")
	}
}

func TestNegativeDurationRejected(t *testing.T) {
	_, err := Parse([]byte("measure:\n  tx_timeout_ms: -1\n"))
	if err == nil || !strings.Contains(err.Error(), "tx_timeout_ms") {
		t.Fatalf("err = %v", err)
	}
}

func TestSimRHRange(t *testing.T) {
	_, err := Parse([]byte("sensor:\n  sim:\n    rh: 150\n"))
	if err == nil {
		t.Fatal("rh 150 accepted")
	}
}
