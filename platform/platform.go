// Package platform resolves configuration names to hardware. Host builds
// serve simulators, serial ports, and the websocket bridge; the rp2040 build
// wires machine peripherals (I2C0/I2C1, uartx UARTs, the VSYS ADC). The
// exported surface is identical across targets so the node service carries
// no build tags.
package platform
