//go:build rp2040

// Command modemtest is an on-device smoke test for the LoRaWAN modem link.
// Flash it instead of the node firmware, watch the serial console: it brings
// up UART0, queries the modem firmware banner and pushes one uplink through
// the full transmit path, reporting PASS or FAIL per step.
package main

import (
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"scd30node-go/payload"
	"scd30node-go/uplink"
	"scd30node-go/uplink/atmodem"
)

func main() {
	println("[modem] boot ...")
	time.Sleep(1500 * time.Millisecond)

	println("[modem] uart0 @", atmodem.DefaultBaud, "baud")
	err := uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: atmodem.DefaultBaud,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	if err != nil {
		println("[modem] uart: FAIL:", err.Error())
		return
	}
	m := atmodem.New(&stream{u: uartx.UART0}, atmodem.Config{})

	println("[modem] sys get ver ...")
	ver, err := m.Version()
	if err != nil {
		println("[modem] version: FAIL:", err.Error())
		return
	}
	println("[modem] version: PASS:", ver)

	// One real frame, CO2 only, so the network side can decode it too.
	var rec payload.Record
	rec.Flags = payload.FlagCO2PPM
	rec.CO2 = 600
	var buf payload.TxBuffer
	rec.Encode(&buf)

	println("[modem] tx", buf.Len(), "bytes on port", payload.UplinkPort, "...")
	done := make(chan error, 1)
	err = m.Send(uplink.Message{Port: payload.UplinkPort, Payload: buf.Bytes()}, func(e error) {
		done <- e
	})
	if err != nil {
		println("[modem] tx: FAIL: rejected:", err.Error())
		return
	}
	select {
	case e := <-done:
		if e != nil {
			println("[modem] tx: FAIL:", e.Error())
		} else {
			println("[modem] tx: PASS")
		}
	case <-time.After(30 * time.Second):
		println("[modem] tx: FAIL: no result after 30s")
	}
}

// stream adapts the UART to the io.ReadWriter the modem consumes.
type stream struct{ u *uartx.UART }

func (s *stream) Read(p []byte) (int, error) {
	return s.u.RecvSomeContext(context.Background(), p)
}

func (s *stream) Write(p []byte) (int, error) { return s.u.Write(p) }
