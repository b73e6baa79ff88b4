//go:build rp2040

package platform

import (
	"context"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
	"tinygo.org/x/drivers"

	"scd30node-go/config"
	"scd30node-go/errcode"
	"scd30node-go/measure"
	"scd30node-go/power"
	"scd30node-go/uplink"
	"scd30node-go/uplink/atmodem"
)

// I2C configures and returns a machine I2C bus on the board default pins.
// 100kHz: the SCD30 tops out there.
func I2C(id string) (drivers.I2C, error) {
	var hw *machine.I2C
	switch id {
	case "i2c0":
		hw = machine.I2C0
	case "i2c1":
		hw = machine.I2C1
	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "platform.i2c", Msg: "unknown bus " + id}
	}
	if err := hw.Configure(machine.I2CConfig{Frequency: 100_000}); err != nil {
		return nil, err
	}
	return hw, nil
}

// Transport builds the modem transport over a uartx UART. The websocket
// bridge needs a host build.
func Transport(node string, cfg config.UplinkConfig) (uplink.Transport, error) {
	switch cfg.Type {
	case "atmodem":
		u, err := openUART(cfg.Atmodem)
		if err != nil {
			return nil, err
		}
		return atmodem.New(u, atmodem.Config{Confirmed: cfg.Atmodem.Confirmed}), nil
	case "wsbridge":
		return nil, &errcode.E{C: errcode.Unsupported, Op: "platform.uplink", Msg: "wsbridge needs a host build"}
	}
	return nil, &errcode.E{C: errcode.InvalidParams, Op: "platform.uplink", Msg: "unknown type " + cfg.Type}
}

func openUART(cfg config.AtmodemConfig) (*uartStream, error) {
	var hw *uartx.UART
	var tx, rx machine.Pin
	switch cfg.UART {
	case "uart0":
		hw = uartx.UART0
		tx, rx = machine.UART0_TX_PIN, machine.UART0_RX_PIN
	case "uart1":
		hw = uartx.UART1
		tx, rx = machine.UART1_TX_PIN, machine.UART1_RX_PIN
	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "platform.uart", Msg: "unknown uart " + cfg.UART}
	}
	baud := uint32(cfg.Baud)
	if baud == 0 {
		baud = atmodem.DefaultBaud
	}
	if err := hw.Configure(uartx.UARTConfig{BaudRate: baud, TX: tx, RX: rx}); err != nil {
		return nil, err
	}
	return &uartStream{u: hw}, nil
}

// uartStream adapts uartx to the io.ReadWriter the modem consumes.
type uartStream struct{ u *uartx.UART }

func (s *uartStream) Read(p []byte) (int, error) {
	return s.u.RecvSomeContext(context.Background(), p)
}

func (s *uartStream) Write(p []byte) (int, error) { return s.u.Write(p) }

// Power never grants deep sleep on rp2040.
// TODO: dormant-mode sleep once tinygo exposes rp2040 clock control.
func Power(config.PowerConfig) power.Manager { return power.Null{} }

// Volts reads VSYS through the on-board divider (GPIO29, ADC3).
func Volts() measure.VoltageSource {
	machine.InitADC()
	a := machine.ADC{Pin: machine.Pin(29)}
	a.Configure(machine.ADCConfig{})
	return picoVolts{vsys: a}
}

type picoVolts struct{ vsys machine.ADC }

// No battery rail on the reference wiring; the loop omits the field.
func (picoVolts) BatteryVolts() (float32, error) { return 0, errcode.Unsupported }

func (p picoVolts) SystemVolts() (float32, error) {
	raw := p.vsys.Get()
	return float32(raw) * 3 * 3.3 / 65535, nil
}

// Boot returns nil and the loop omits the boot-count field. A persistent
// counter needs watchdog scratch or flash support.
func Boot() measure.BootCounter { return nil }
