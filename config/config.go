// Package config loads and checks the node's YAML configuration. Load runs
// the full pipeline: decode (unknown keys rejected), Validate (declarative,
// no mutation), then Normalize (defaults and canonical forms).
package config

import "time"

type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Measure MeasureConfig `yaml:"measure"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Uplink  UplinkConfig  `yaml:"uplink"`
	Power   PowerConfig   `yaml:"power"`
}

// ---- NODE ----

type NodeConfig struct {
	Name           string `yaml:"name"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
	HeartbeatS     int    `yaml:"heartbeat_s"`
}

// ---- MEASUREMENT CADENCE ----

// Zero values defer to the measurement loop's own defaults, so the section
// may be omitted entirely.
type MeasureConfig struct {
	IntervalS              int  `yaml:"interval_s"`
	CommissioningIntervalS int  `yaml:"commissioning_interval_s"`
	CommissioningCount     int  `yaml:"commissioning_count"`
	ReadyTimeoutMS         int  `yaml:"ready_timeout_ms"`
	TxTimeoutMS            int  `yaml:"tx_timeout_ms"`
	MinDeepSleepMS         int  `yaml:"min_deep_sleep_ms"`
	KeepSensorAwake        bool `yaml:"keep_sensor_awake"`
}

// ---- SENSOR ----

type SensorConfig struct {
	// Type names a registered driver ("scd30", "shtc3", "senseair-s8") or
	// "sim". The registry owns the set; config does not second-guess it.
	Type string `yaml:"type"`

	// I2C-attached sensors.
	Bus          string `yaml:"bus"` // MCU bus id, e.g. "i2c0"
	Address      uint16 `yaml:"address"`
	IntervalS    int    `yaml:"interval_s"`
	PressureMbar uint16 `yaml:"pressure_mbar"`

	// Serial-attached sensors.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	UnitID uint8  `yaml:"unit_id"`

	Sim SensorSimConfig `yaml:"sim"`
}

type SensorSimConfig struct {
	CO2PPM   float32 `yaml:"co2_ppm"`
	TempC    float32 `yaml:"temp_c"`
	RH       float32 `yaml:"rh"`
	DriftPPM float32 `yaml:"drift_ppm"`
	WarmupMS int     `yaml:"warmup_ms"`
}

// ---- UPLINK ----

type UplinkConfig struct {
	Type    string          `yaml:"type"` // "atmodem", "wsbridge" or "sim"
	Atmodem AtmodemConfig   `yaml:"atmodem"`
	Bridge  BridgeConfig    `yaml:"wsbridge"`
	Sim     UplinkSimConfig `yaml:"sim"`
}

type AtmodemConfig struct {
	Device    string `yaml:"device"` // host serial port
	UART      string `yaml:"uart"`   // MCU UART id, e.g. "uart0"
	Baud      int    `yaml:"baud"`
	Confirmed bool   `yaml:"confirmed"`
}

type BridgeConfig struct {
	URL                string `yaml:"url"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"` // empty: prompt or env at the CLI
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type UplinkSimConfig struct {
	Fail      bool `yaml:"fail"`
	Silent    bool `yaml:"silent"`
	LatencyMS int  `yaml:"latency_ms"`
}

// ---- POWER ----

type PowerConfig struct {
	DeepSleep  bool `yaml:"deep_sleep"`
	MaxSleepMS int  `yaml:"max_sleep_ms"` // host cap; 0 takes the manager default
}

// Default is the configuration a bare host run uses: simulated sensor and
// transport on the standard cadence.
func Default() *Config {
	cfg := &Config{}
	Normalize(cfg)
	return cfg
}

// Duration accessors; the yaml schema keeps integer _s/_ms fields.

func (n NodeConfig) PollInterval() time.Duration { return millis(n.PollIntervalMS) }
func (n NodeConfig) Heartbeat() time.Duration    { return secs(n.HeartbeatS) }

func (m MeasureConfig) Interval() time.Duration              { return secs(m.IntervalS) }
func (m MeasureConfig) CommissioningInterval() time.Duration { return secs(m.CommissioningIntervalS) }
func (m MeasureConfig) ReadyTimeout() time.Duration          { return millis(m.ReadyTimeoutMS) }
func (m MeasureConfig) TxTimeout() time.Duration             { return millis(m.TxTimeoutMS) }
func (m MeasureConfig) MinDeepSleep() time.Duration          { return millis(m.MinDeepSleepMS) }

func (s SensorConfig) Interval() time.Duration { return secs(s.IntervalS) }
func (s SensorSimConfig) Warmup() time.Duration { return millis(s.WarmupMS) }
func (u UplinkSimConfig) Latency() time.Duration { return millis(u.LatencyMS) }
func (p PowerConfig) MaxSleep() time.Duration { return millis(p.MaxSleepMS) }

func secs(n int) time.Duration   { return time.Duration(n) * time.Second }
func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }
