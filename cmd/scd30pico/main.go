//go:build rp2040

package main

import (
	"context"
	"time"

	"scd30node-go/bus"
	"scd30node-go/config"
	"scd30node-go/node"
	"scd30node-go/types"

	// Sensor drivers register themselves by config type. The Modbus driver
	// stays out: its serial stack needs a host.
	_ "scd30node-go/devices/scd30dev"
	_ "scd30node-go/devices/shtc3dev"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(3 * time.Second)
	println("[boot] scd30 node")

	cfg := config.Default()
	cfg.Node.Name = "scd30-pico"
	cfg.Sensor.Type = "scd30"
	cfg.Sensor.Bus = "i2c0"
	cfg.Measure.CommissioningCount = 5
	cfg.Uplink.Type = "atmodem"
	cfg.Uplink.Atmodem.UART = "uart0"

	b := bus.New(4)
	svc, err := node.New(cfg, b, node.Options{})
	if err != nil {
		for {
			println("[boot] node init failed:", err.Error())
			time.Sleep(5 * time.Second)
		}
	}

	watch := b.NewConnection("console")
	sub := watch.Subscribe(bus.Parse(bus.Wildcard))
	go func() {
		for m := range sub.Channel() {
			logMessage(m)
		}
	}()

	println("[boot] node running")
	svc.Run(context.Background())
}

// logMessage prints bus traffic over USB CDC. Readings go out as centi-units
// to keep fmt out of the build.
func logMessage(m *bus.Message) {
	switch p := m.Payload.(type) {
	case types.NodeState:
		println("[state]", p.State)
	case types.Measurement:
		if p.Valid {
			println("[meas] co2_cppm:", int(p.CO2PPM*100), "temp_cc:", int(p.TempC*100), "rh_c%:", int(p.RH*100))
		} else {
			println("[meas] degraded cycle")
		}
	case types.UplinkReport:
		if p.Error != "" {
			println("[uplink] failed:", p.Error)
		} else {
			println("[uplink] port:", int(p.Port), "bytes:", p.Bytes, p.Payload)
		}
	case types.SleepNotice:
		println("[sleep] ms:", int(p.ForMS))
	case types.Fault:
		println("[fault]", p.Code, p.Detail)
	case types.LinkStatus:
		println("[link]", string(p.Link), p.Error)
	}
}
