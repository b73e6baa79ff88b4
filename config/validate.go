//go:build !rp2040

package config

import (
	"fmt"
	"strings"

	"scd30node-go/x/mathx"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	// ------------------------------------------------------------
	// DURATIONS AND COUNTS
	// ------------------------------------------------------------

	for _, f := range []struct {
		name string
		v    int
	}{
		{"node.poll_interval_ms", cfg.Node.PollIntervalMS},
		{"node.heartbeat_s", cfg.Node.HeartbeatS},
		{"measure.interval_s", cfg.Measure.IntervalS},
		{"measure.commissioning_interval_s", cfg.Measure.CommissioningIntervalS},
		{"measure.commissioning_count", cfg.Measure.CommissioningCount},
		{"measure.ready_timeout_ms", cfg.Measure.ReadyTimeoutMS},
		{"measure.tx_timeout_ms", cfg.Measure.TxTimeoutMS},
		{"measure.min_deep_sleep_ms", cfg.Measure.MinDeepSleepMS},
		{"sensor.interval_s", cfg.Sensor.IntervalS},
		{"sensor.baud", cfg.Sensor.Baud},
		{"sensor.sim.warmup_ms", cfg.Sensor.Sim.WarmupMS},
		{"uplink.atmodem.baud", cfg.Uplink.Atmodem.Baud},
		{"uplink.sim.latency_ms", cfg.Uplink.Sim.LatencyMS},
		{"power.max_sleep_ms", cfg.Power.MaxSleepMS},
	} {
		if f.v < 0 {
			return fmt.Errorf("%s must not be negative (got %d)", f.name, f.v)
		}
	}

	// ------------------------------------------------------------
	// SENSOR
	// ------------------------------------------------------------

	// The driver registry owns the set of sensor types; only the values
	// config itself interprets are checked here.

	if p := cfg.Sensor.PressureMbar; p != 0 && !mathx.Between(p, 700, 1400) {
		return fmt.Errorf("sensor.pressure_mbar must be 0 (off) or 700..1400 (got %d)", p)
	}
	if s := cfg.Sensor.IntervalS; s != 0 && !mathx.Between(s, 2, 1800) {
		return fmt.Errorf("sensor.interval_s must be 0 (default) or 2..1800 (got %d)", s)
	}
	if rh := cfg.Sensor.Sim.RH; !mathx.Between(rh, 0, 100) {
		return fmt.Errorf("sensor.sim.rh must be 0..100 (got %g)", rh)
	}

	// ------------------------------------------------------------
	// UPLINK
	// ------------------------------------------------------------

	switch typ := cfg.Uplink.Type; {
	case typ == "":
		// Defaults to the simulator in Normalize.
	case strings.EqualFold(typ, "sim"):
	case strings.EqualFold(typ, "atmodem"):
		if cfg.Uplink.Atmodem.Device == "" && cfg.Uplink.Atmodem.UART == "" {
			return fmt.Errorf("uplink.atmodem needs a device (host) or uart (mcu)")
		}
	case strings.EqualFold(typ, "wsbridge"):
		if cfg.Uplink.Bridge.URL == "" {
			return fmt.Errorf("uplink.wsbridge.url is required")
		}
	default:
		return fmt.Errorf("uplink.type %q unknown (atmodem, wsbridge, sim)", typ)
	}

	return nil
}
