//go:build !rp2040

package platform

import (
	"tinygo.org/x/drivers"

	"scd30node-go/config"
	"scd30node-go/errcode"
	"scd30node-go/measure"
	"scd30node-go/power"
	"scd30node-go/uplink"
	"scd30node-go/uplink/atmodem"
	"scd30node-go/uplink/wsbridge"
)

// I2C resolves an I2C bus id. Hosts have none; I2C-attached sensors need the
// simulator or an MCU build.
func I2C(id string) (drivers.I2C, error) {
	return nil, &errcode.E{C: errcode.Unsupported, Op: "platform.i2c", Msg: id + " not available on host builds"}
}

// Transport builds the hardware-backed uplink the config names. The sim
// type never reaches here; the node service builds it directly.
func Transport(node string, cfg config.UplinkConfig) (uplink.Transport, error) {
	switch cfg.Type {
	case "atmodem":
		if cfg.Atmodem.Device == "" {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "platform.uplink", Msg: "atmodem on host needs a device path"}
		}
		m, err := atmodem.OpenSerial(atmodem.SerialConfig{
			Device: cfg.Atmodem.Device,
			Baud:   cfg.Atmodem.Baud,
			Modem:  atmodem.Config{Confirmed: cfg.Atmodem.Confirmed},
		})
		if err != nil {
			return nil, err
		}
		if _, err := m.Version(); err != nil {
			_ = m.Close()
			return nil, &errcode.E{C: errcode.LinkDown, Op: "platform.uplink", Msg: "modem not responding", Err: err}
		}
		return m, nil
	case "wsbridge":
		return wsbridge.DialAuto(wsbridge.Config{
			URL:                cfg.Bridge.URL,
			Username:           cfg.Bridge.Username,
			Password:           cfg.Bridge.Password,
			Node:               node,
			InsecureSkipVerify: cfg.Bridge.InsecureSkipVerify,
		}), nil
	}
	return nil, &errcode.E{C: errcode.InvalidParams, Op: "platform.uplink", Msg: "unknown type " + cfg.Type}
}

// Power returns the capped sleep simulator when deep sleep is enabled,
// otherwise the null manager.
func Power(cfg config.PowerConfig) power.Manager {
	if !cfg.DeepSleep {
		return power.Null{}
	}
	return &power.Host{Cap: cfg.MaxSleep()}
}

// Volts supplies fixed bench readings so host payloads carry the telemetry
// fields.
func Volts() measure.VoltageSource { return hostVolts{} }

type hostVolts struct{}

func (hostVolts) BatteryVolts() (float32, error) { return 3.28, nil }
func (hostVolts) SystemVolts() (float32, error)  { return 4.97, nil }

// Boot reports a fixed first boot; hosts keep no boot counter.
func Boot() measure.BootCounter { return hostBoot{} }

type hostBoot struct{}

func (hostBoot) BootCount() uint32 { return 1 }
