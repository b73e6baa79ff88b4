package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"scd30node-go/config"
)

var (
	cfgPath  string
	forceSim bool
)

var rootCmd = &cobra.Command{
	Use:   "scd30node",
	Short: "CO2 measurement node",
	Long: `scd30node runs a CO2/temperature/humidity measurement node on a host:
it polls a sensor on a fixed cadence, encodes each cycle into a compact
format-0x1E payload and uplinks it over a LoRa modem, a websocket bridge
or a simulator.

Commands:
  run      headless node, events on stdout
  monitor  the same node with a live TUI
  decode   inspect an encoded payload

For websocket bridge authentication the password comes from the
SCD30NODE_PASSWORD environment variable, or an interactive prompt when the
config names a username without a password. There is no --password flag;
shell history is the wrong place for credentials.`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (default: built-in sim profile)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig builds the effective configuration: file (or defaults), then the
// --sim override, then credential resolution.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
	}
	if forceSim {
		cfg.Sensor.Type = "sim"
		cfg.Uplink.Type = "sim"
	}
	if err := resolveBridgePassword(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveBridgePassword fills in the bridge password when the config names a
// username without one: environment first, interactive prompt second.
func resolveBridgePassword(cfg *config.Config) error {
	if cfg.Uplink.Type != "wsbridge" ||
		cfg.Uplink.Bridge.Username == "" || cfg.Uplink.Bridge.Password != "" {
		return nil
	}
	if pw := os.Getenv("SCD30NODE_PASSWORD"); pw != "" {
		cfg.Uplink.Bridge.Password = pw
		return nil
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", cfg.Uplink.Bridge.Username)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	cfg.Uplink.Bridge.Password = string(pw)
	return nil
}
