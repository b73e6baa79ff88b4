package config

import "scd30node-go/x/strx"

// Normalize applies post-validation defaults and canonical forms.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Node.Name == "" {
		cfg.Node.Name = "scd30-node"
	}
	if cfg.Node.PollIntervalMS == 0 {
		cfg.Node.PollIntervalMS = 20
	}
	if cfg.Node.HeartbeatS == 0 {
		cfg.Node.HeartbeatS = 30
	}

	// Measure zeros stay zero: the loop fills its own defaults.

	cfg.Sensor.Type = canonical(cfg.Sensor.Type, "sim")
	cfg.Sensor.Bus = strx.Canonical(cfg.Sensor.Bus)

	cfg.Uplink.Type = canonical(cfg.Uplink.Type, "sim")
	cfg.Uplink.Atmodem.UART = strx.Canonical(cfg.Uplink.Atmodem.UART)
	if cfg.Uplink.Type == "atmodem" && cfg.Uplink.Atmodem.Baud == 0 {
		cfg.Uplink.Atmodem.Baud = 57600
	}
}

func canonical(s, def string) string {
	return strx.Coalesce(strx.Canonical(s), def)
}
