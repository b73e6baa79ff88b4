package main

import (
	"os"

	// Sensor drivers register themselves by config type.
	_ "scd30node-go/devices/scd30dev"
	_ "scd30node-go/devices/senseairdev"
	_ "scd30node-go/devices/shtc3dev"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
