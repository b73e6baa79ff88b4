package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scd30node-go/bus"
	"scd30node-go/node"
	"scd30node-go/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the node headless, printing events to stdout",
	RunE:  runNode,
}

func init() {
	runCmd.Flags().BoolVar(&forceSim, "sim", false, "simulated sensor and uplink, whatever the config says")
	rootCmd.AddCommand(runCmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.New(64)
	svc, err := node.New(cfg, b, node.Options{})
	if err != nil {
		return err
	}

	watch := b.NewConnection("cli")
	defer watch.Disconnect()
	go printEvents(watch.Subscribe(bus.Parse(bus.Wildcard)))

	log.Printf("node %q up: sensor=%s uplink=%s interval=%s",
		cfg.Node.Name, cfg.Sensor.Type, cfg.Uplink.Type, cfg.Measure.Interval())
	svc.Run(ctx)
	log.Printf("node stopped")
	return nil
}

// printEvents renders bus traffic as log lines, one per message.
func printEvents(sub *bus.Subscription) {
	for m := range sub.Channel() {
		switch p := m.Payload.(type) {
		case types.NodeState:
			log.Printf("state  %s (from %s)", p.State, p.Prev)
		case types.Measurement:
			if p.Valid {
				log.Printf("meas   co2=%.0fppm temp=%.2f°C rh=%.1f%%", p.CO2PPM, p.TempC, p.RH)
			} else {
				log.Printf("meas   degraded cycle, no reading")
			}
		case types.UplinkReport:
			if p.Error != "" {
				log.Printf("uplink FAILED %s (port %d, %d bytes)", p.Error, p.Port, p.Bytes)
			} else {
				log.Printf("uplink port=%d %dB %s", p.Port, p.Bytes, p.Payload)
			}
		case types.SleepNotice:
			log.Printf("sleep  %dms deep=%v", p.ForMS, p.Deep)
		case types.Fault:
			log.Printf("fault  %s %s", p.Code, p.Detail)
		case types.LinkStatus:
			if p.Error != "" {
				log.Printf("link   %s: %s", p.Link, p.Error)
			} else {
				log.Printf("link   %s", p.Link)
			}
		case types.Heartbeat:
			log.Printf("beat   seq=%d uptime=%dms", p.Seq, p.Uptime)
		}
	}
}
