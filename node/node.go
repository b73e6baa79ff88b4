// Package node assembles a running measurement node: it builds the sensor,
// uplink and power collaborators named by the configuration, wires them into
// a measurement loop, drives the loop from a poll ticker and adapts loop
// status onto bus topics for the CLI and the monitor.
package node

import (
	"context"
	"io"
	"time"

	"scd30node-go/bus"
	"scd30node-go/config"
	"scd30node-go/errcode"
	"scd30node-go/measure"
	"scd30node-go/platform"
	"scd30node-go/poller"
	"scd30node-go/power"
	"scd30node-go/sensor"
	"scd30node-go/types"
	"scd30node-go/uplink"
)

// Bus topics published by the service. State, heartbeat and link status are
// retained so late subscribers see the current value.
var (
	topicState       = bus.Parse("node/state")
	topicMeasurement = bus.Parse("node/measurement")
	topicUplink      = bus.Parse("node/uplink")
	topicSleep       = bus.Parse("node/sleep")
	topicFault       = bus.Parse("node/fault")
	topicHeartbeat   = bus.Parse("node/heartbeat")
	topicLink        = bus.Parse("link/status")
)

// Options overrides collaborators the service would otherwise build from the
// configuration. Tests substitute deterministic ones; the zero value means
// build everything.
type Options struct {
	Sensor    sensor.Driver
	Transport uplink.Transport
	Power     power.Manager
	Clock     measure.Clock
	Volts     measure.VoltageSource
	Boot      measure.BootCounter
}

// Service is one assembled node. Build it with New, run it with Run.
type Service struct {
	cfg  *config.Config
	conn *bus.Connection
	clk  measure.Clock

	drv  sensor.Driver
	tr   uplink.Transport // as built; Close target
	loop *measure.Loop
	set  poller.Set
	sink *busSink
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// New builds the node's collaborators from cfg, honoring any overrides in
// opt, and wires the measurement loop. Nothing starts until Run.
func New(cfg *config.Config, b *bus.Bus, opt Options) (*Service, error) {
	s := &Service{
		cfg:  cfg,
		conn: b.NewConnection(cfg.Node.Name),
		clk:  opt.Clock,
	}
	if s.clk == nil {
		s.clk = wallClock{}
	}

	drv, err := buildSensor(cfg.Sensor, opt)
	if err != nil {
		return nil, err
	}
	s.drv = drv

	tr, err := buildTransport(cfg, opt)
	if err != nil {
		return nil, err
	}
	s.tr = tr
	cap := &captureTransport{next: tr}

	s.sink = &busSink{conn: s.conn, cap: cap, clk: s.clk}

	pm := opt.Power
	if pm == nil {
		pm = platform.Power(cfg.Power)
	}
	volts := opt.Volts
	if volts == nil {
		volts = platform.Volts()
	}
	boot := opt.Boot
	if boot == nil {
		boot = platform.Boot()
	}

	loop, err := measure.New(measure.Config{
		Sensor:    drv,
		Uplink:    cap,
		Power:     pm,
		Scheduler: &s.set,
		Clock:     opt.Clock,
		Status:    s.sink,
		Volts:     volts,
		Boot:      boot,

		Interval:              cfg.Measure.Interval(),
		CommissioningInterval: cfg.Measure.CommissioningInterval(),
		CommissioningCount:    cfg.Measure.CommissioningCount,
		ReadyTimeout:          cfg.Measure.ReadyTimeout(),
		TxTimeout:             cfg.Measure.TxTimeout(),
		MinDeepSleep:          cfg.Measure.MinDeepSleep(),
		KeepSensorAwake:       cfg.Measure.KeepSensorAwake,
	})
	if err != nil {
		return nil, err
	}
	s.loop = loop

	// Optimistic until the first uplink says otherwise.
	s.sink.setLink(types.LinkUp, nil)
	return s, nil
}

// buildSensor resolves the configured sensor driver. The simulator is built
// directly so its scripting survives; everything else goes through the
// registry, with the I2C bus resolved first when one is named.
func buildSensor(cfg config.SensorConfig, opt Options) (sensor.Driver, error) {
	if opt.Sensor != nil {
		return opt.Sensor, nil
	}
	if cfg.Type == "sim" {
		return sensor.NewSim(sensor.SimConfig{
			Warmup: cfg.Sim.Warmup(),
			CO2:    cfg.Sim.CO2PPM,
			TempC:  cfg.Sim.TempC,
			RH:     cfg.Sim.RH,
			Drift:  cfg.Sim.DriftPPM,
		}), nil
	}
	settings := sensor.Settings{
		Addr:     cfg.Address,
		Interval: cfg.Interval(),
		Pressure: cfg.PressureMbar,
		Device:   cfg.Device,
		Baud:     cfg.Baud,
		UnitID:   cfg.UnitID,
	}
	if cfg.Bus != "" {
		i2c, err := platform.I2C(cfg.Bus)
		if err != nil {
			return nil, err
		}
		settings.Bus = i2c
	}
	return sensor.Build(cfg.Type, cfg.Type, settings)
}

// buildTransport resolves the configured uplink. The simulator is built
// directly; real transports come from the platform.
func buildTransport(cfg *config.Config, opt Options) (uplink.Transport, error) {
	if opt.Transport != nil {
		return opt.Transport, nil
	}
	if cfg.Uplink.Type == "sim" {
		var fail error
		if cfg.Uplink.Sim.Fail {
			fail = errcode.TxFailed
		}
		return uplink.NewSim(uplink.SimConfig{
			Latency: cfg.Uplink.Sim.Latency(),
			Fail:    fail,
			Silent:  cfg.Uplink.Sim.Silent,
		}), nil
	}
	return platform.Transport(cfg.Node.Name, cfg.Uplink)
}

// Run starts the loop and polls it until ctx is done, then winds the node
// down. It blocks for the node's whole life.
func (s *Service) Run(ctx context.Context) {
	s.begin()

	hbCtx, stopHB := context.WithCancel(ctx)
	defer stopHB()
	go s.heartbeat(hbCtx)

	s.set.Run(ctx, s.cfg.Node.PollInterval())
	s.shutdown()
}

// begin starts the FSM in measuring mode. Split from Run so tests can drive
// the poll set by hand.
func (s *Service) begin() {
	s.loop.Begin()
	s.loop.RequestActive(true)
}

// shutdown winds the loop down cooperatively. The drain is bounded: a cycle
// stuck waiting out a transmission is abandoned to the transport rather than
// holding process exit hostage.
func (s *Service) shutdown() {
	s.loop.End()
	for i := 0; i < 16 && s.loop.Running(); i++ {
		s.set.Poll()
	}
	if !s.cfg.Measure.KeepSensorAwake {
		_ = s.drv.Sleep()
	}
	if c, ok := s.tr.(io.Closer); ok {
		_ = c.Close()
	}
	s.conn.Disconnect()
}

// heartbeat retains a liveness beat while the service runs.
func (s *Service) heartbeat(ctx context.Context) {
	start := s.clk.Now()
	var seq uint64
	beat := func() {
		s.conn.Publish(&bus.Message{
			Topic: topicHeartbeat,
			Payload: types.Heartbeat{
				Seq:    seq,
				Uptime: s.clk.Now().Sub(start).Milliseconds(),
				TS:     s.clk.Now().UnixMilli(),
			},
			Retained: true,
		})
		seq++
	}
	beat()

	tick := time.NewTicker(s.cfg.Node.Heartbeat())
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			beat()
		}
	}
}
