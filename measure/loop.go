// Package measure implements the node's measurement-and-uplink control loop.
//
// The loop is a finite-state machine driven by cooperative polling: a
// scheduler calls Poll on a bounded cadence and each poll performs one
// dispatch, which runs at most one state's logic and decides at most one
// transition. Nothing in the loop blocks; waits (sensor warm-up, radio
// completion, the inter-measurement interval) are expressed through a single
// deadline timer checked at poll time. The one deliberate exception is deep
// sleep, where the loop itself asks the power manager to stop the world.
//
// Poll, and everything dispatch touches, belongs to one goroutine. The
// control surface that other goroutines may use is deliberately tiny:
// RequestActive, End, and the transport completion callback, all of which
// funnel through atomic words.
package measure

import (
	"errors"
	"sync/atomic"
	"time"

	"scd30node-go/errcode"
	"scd30node-go/payload"
	"scd30node-go/poller"
	"scd30node-go/power"
	"scd30node-go/sensor"
	"scd30node-go/uplink"
)

// Clock supplies the loop's time base. Tests substitute a hand-cranked one.
type Clock interface {
	Now() time.Time
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// Scheduler is where the loop registers itself for polling. poller.Set
// satisfies it.
type Scheduler interface {
	Register(poller.Pollable)
	Deregister(poller.Pollable)
}

// VoltageSource supplies supply-rail telemetry for the uplink payload.
// A rail that errors is simply left out of the record.
type VoltageSource interface {
	BatteryVolts() (float32, error)
	SystemVolts() (float32, error)
}

// BootCounter supplies the session's boot count for the uplink payload.
type BootCounter interface {
	BootCount() uint32
}

// StatusSink receives loop lifecycle notifications. Calls arrive on the poll
// goroutine and must not block; the node service adapts them onto the bus.
type StatusSink interface {
	// StateChanged fires on every transition, after the state is updated.
	StateChanged(from, to State)
	// MeasurementDone fires once per cycle with the record as measured,
	// before telemetry fields are added. valid is false for a degraded
	// cycle (sensor timeout, read failure, implausible reading).
	MeasurementDone(rec payload.Record, valid bool)
	// UplinkDone fires once per transmitted cycle with the payload size
	// and the outcome. err is an errcode.Code on failure or timeout.
	UplinkDone(bytes int, err error)
	// SleepNotice fires before the first deep sleep of a session.
	SleepNotice(d time.Duration, deep bool)
	// LoopError reports faults the loop absorbed and worked around.
	LoopError(code errcode.Code, err error)
}

// NopSink is the StatusSink used when Config.Status is nil.
type NopSink struct{}

func (NopSink) StateChanged(State, State)            {}
func (NopSink) MeasurementDone(payload.Record, bool) {}
func (NopSink) UplinkDone(int, error)                {}
func (NopSink) SleepNotice(time.Duration, bool)      {}
func (NopSink) LoopError(errcode.Code, error)        {}

// Config wires a Loop. Sensor and Uplink are required; everything else has a
// usable default.
type Config struct {
	Sensor sensor.Driver
	Uplink uplink.Transport

	Power     power.Manager // default power.Null{}
	Scheduler Scheduler     // optional; Begin registers, Final deregisters
	Clock     Clock         // default wall clock
	Status    StatusSink    // default NopSink
	Volts     VoltageSource // optional; feeds the Vbat and Vcc fields
	Boot      BootCounter   // optional; feeds the Boot field

	// Interval is the standard inter-measurement period.
	Interval time.Duration // default 6m
	// CommissioningInterval replaces Interval for the first
	// CommissioningCount cycles of a session, so a freshly powered node
	// shows up quickly. Zero count disables the warm-up cadence.
	CommissioningInterval time.Duration // default 30s
	CommissioningCount    int
	// ReadyTimeout bounds the wait for sensor data in Wake.
	ReadyTimeout time.Duration // default 5s
	// TxTimeout bounds the wait for a transport completion.
	TxTimeout time.Duration // default 30s
	// MinDeepSleep is the smallest timer remainder worth a deep sleep.
	MinDeepSleep time.Duration // default 10s
	// KeepSensorAwake skips the per-cycle sensor sleep, for sensors that
	// need continuous operation to hold calibration.
	KeepSensorAwake bool
}

// Loop is the measurement FSM. Create one with New, start it with Begin,
// drive it with Poll. The zero Loop is not usable and a Loop must not be
// copied: the scheduler and the transport completion hold its identity.
type Loop struct {
	_ [0]func() // non-copyable

	cfg Config

	fl    flags
	tx    txState
	timer pollTimer

	// Poll-goroutine state. stateNow shadows state for cross-goroutine
	// reads via State().
	state       State
	stateNow    atomic.Uint32
	entryDue    bool
	sensorReady bool
	rec         payload.Record
	buf         payload.TxBuffer
	curInterval time.Duration
	cyclesLeft  int
	saved       sleepSnapshot
}

// New validates cfg, fills in defaults and returns a stopped Loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Sensor == nil {
		return nil, errors.New("measure: sensor driver required")
	}
	if cfg.Uplink == nil {
		return nil, errors.New("measure: uplink transport required")
	}
	if cfg.Power == nil {
		cfg.Power = power.Null{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockFunc(time.Now)
	}
	if cfg.Status == nil {
		cfg.Status = NopSink{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Minute
	}
	if cfg.CommissioningInterval <= 0 {
		cfg.CommissioningInterval = 30 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 30 * time.Second
	}
	if cfg.MinDeepSleep <= 0 {
		cfg.MinDeepSleep = 10 * time.Second
	}
	return &Loop{cfg: cfg}, nil
}

// Begin probes the sensor, registers with the scheduler and starts the FSM
// in Initial. It must run before the scheduler starts polling the loop (or
// on the polling goroutine itself). Begin on a running loop is a no-op.
func (l *Loop) Begin() {
	if l.fl.has(flagRunning) {
		return
	}

	// A fresh session keeps nothing from the previous one.
	l.fl.store(0)
	l.tx.reset()
	l.timer.disarm()
	l.rec.Reset()
	l.entryDue = false
	l.sensorReady = false
	l.cyclesLeft = l.cfg.CommissioningCount
	l.curInterval = l.cfg.Interval

	// Presence probe. A sensor that cannot wake now is treated as absent
	// for the whole session; cycles still run and the payload simply
	// omits its fields.
	if err := l.cfg.Sensor.Wake(); err != nil {
		l.cfg.Status.LoopError(errcode.SensorAbsent, err)
	} else {
		l.fl.set(flagSensorOK)
		if err := l.cfg.Sensor.Sleep(); err != nil {
			l.cfg.Status.LoopError(errcode.SensorRead, err)
		}
	}

	if l.cfg.Scheduler != nil {
		l.cfg.Scheduler.Register(l)
		l.fl.set(flagRegistered)
	}
	l.setState(StateInitial)
	l.fl.set(flagRunning)
}

// End requests a cooperative shutdown: a cycle in flight completes first,
// then the loop winds down through Inactive into Final, where it deregisters
// itself. Safe from any goroutine; a no-op when the loop is not running.
func (l *Loop) End() {
	if !l.fl.has(flagRunning) {
		return
	}
	l.fl.set(flagExit | flagRqInactive)
}

// RequestActive asks the loop to enter or leave measuring mode. Requests are
// consumed at the Inactive and Sleeping evaluations, never mid-cycle, and a
// deactivate beats a simultaneous activate. Safe from any goroutine.
func (l *Loop) RequestActive(enable bool) {
	if enable {
		l.fl.set(flagRqActive)
	} else {
		l.fl.set(flagRqInactive)
	}
}

// State reports the loop's current state. Readable from any goroutine.
func (l *Loop) State() State { return State(l.stateNow.Load()) }

// Running reports whether Begin has run and Final's teardown has not.
func (l *Loop) Running() bool { return l.fl.has(flagRunning) }

// Active reports whether the loop is in measuring mode.
func (l *Loop) Active() bool { return l.fl.has(flagActive) }

// Poll advances the FSM by one dispatch. It never blocks except to carry
// out a deep sleep inside the power manager.
func (l *Loop) Poll() {
	if !l.fl.has(flagRunning) {
		return
	}
	l.timer.update(l.cfg.Clock.Now())

	entry := l.entryDue
	l.entryDue = false
	next := l.fsmDispatch(l.state, entry)
	if next == StateNoChange {
		return
	}
	l.setState(next)
}

// setState installs next and schedules its entry action for the following
// dispatch. Re-entering the current state re-arms entry without a
// transition notification.
func (l *Loop) setState(next State) {
	from := l.state
	l.state = next
	l.stateNow.Store(uint32(next))
	l.entryDue = true
	if from != next {
		l.cfg.Status.StateChanged(from, next)
	}
}

// fsmDispatch evaluates one state for one poll. entry is true exactly on the
// first dispatch after a transition. Returning StateNoChange stays put;
// returning the current state re-arms its entry action.
func (l *Loop) fsmDispatch(cur State, entry bool) State {
	next := StateNoChange

	switch cur {
	case StateInitial:
		if entry {
			l.rec.Reset()
			l.tx.reset()
		}
		next = StateInactive

	case StateInactive:
		// Requests are consumed here and at Sleeping, nowhere else.
		// A deactivate beats a simultaneous activate.
		rqIn := l.fl.take(flagRqInactive)
		rqAct := l.fl.take(flagRqActive)
		switch {
		case l.fl.has(flagExit):
			next = StateFinal
		case rqAct && !rqIn:
			l.fl.set(flagActive)
			next = StateSleeping
		}

	case StateSleeping:
		if entry {
			l.updateTxCycleTime()
			l.timer.arm(l.cfg.Clock.Now(), l.curInterval)
		}
		rqIn := l.fl.take(flagRqInactive)
		l.fl.take(flagRqActive) // already active; drop it
		switch {
		case rqIn || l.fl.has(flagExit):
			l.fl.clear(flagActive)
			l.timer.disarm()
			next = StateInactive
		case l.timer.consume():
			next = StateWake
		default:
			l.maybeDeepSleep()
		}

	case StateWake:
		if entry {
			l.fl.clear(flagValid)
			l.sensorReady = false
			l.rec.Reset()
			if !l.fl.has(flagSensorOK) {
				// No sensor this session; go straight to the
				// read step, which leaves its fields unset.
				return StateMeasure
			}
			if err := l.cfg.Sensor.Wake(); err != nil {
				l.cfg.Status.LoopError(errcode.SensorRead, err)
			}
			if err := l.cfg.Sensor.StartMeasurement(); err != nil {
				l.cfg.Status.LoopError(errcode.SensorRead, err)
			}
			l.timer.arm(l.cfg.Clock.Now(), l.cfg.ReadyTimeout)
		}
		if !l.fl.has(flagSensorOK) {
			next = StateMeasure
		} else if ready, err := l.cfg.Sensor.DataReady(); err == nil && ready {
			l.timer.disarm()
			l.sensorReady = true
			next = StateMeasure
		} else if l.timer.consume() {
			// The cycle carries on degraded; whatever telemetry
			// remains still goes up.
			l.cfg.Status.LoopError(errcode.SensorTimeout, err)
			next = StateMeasure
		}

	case StateMeasure:
		if entry {
			if l.sensorReady {
				l.takeMeasurement()
			}
			l.cfg.Status.MeasurementDone(l.rec, l.fl.has(flagValid))
		}
		next = StateSleepSensor

	case StateSleepSensor:
		if entry && !l.cfg.KeepSensorAwake && l.fl.has(flagSensorOK) {
			if err := l.cfg.Sensor.Sleep(); err != nil {
				l.cfg.Status.LoopError(errcode.SensorRead, err)
			}
		}
		next = StateTransmit

	case StateTransmit:
		if entry {
			l.fillTxBuffer()
			if l.rec.Flags == 0 {
				// Nothing measured and no telemetry wired: an
				// empty uplink helps nobody.
				return StateSleeping
			}
			l.startTransmission()
			l.timer.arm(l.cfg.Clock.Now(), l.cfg.TxTimeout)
		}
		if l.tx.complete() {
			l.timer.disarm()
			l.finishTransmission(false)
			next = StateSleeping
		} else if l.timer.consume() {
			l.finishTransmission(true)
			next = StateSleeping
		}

	case StateFinal:
		if entry {
			if l.cfg.Scheduler != nil && l.fl.has(flagRegistered) {
				l.cfg.Scheduler.Deregister(l)
			}
			l.fl.clear(flagRegistered | flagRunning | flagActive | flagExit)
		}

	default:
		// Unrecognized state: a programming error. Report it and park
		// the loop somewhere safe rather than wedge.
		l.cfg.Status.LoopError(errcode.BadState, nil)
		next = StateInactive
	}

	return next
}

// takeMeasurement reads the sensor and maps its fields onto the record.
// Failures and implausible readings leave the record empty; the cycle
// carries on either way.
func (l *Loop) takeMeasurement() {
	m, err := l.cfg.Sensor.ReadMeasurement()
	if err != nil {
		l.cfg.Status.LoopError(errcode.SensorRead, err)
		return
	}
	if !plausible(m) {
		l.cfg.Status.LoopError(errcode.SensorRead, errcode.InvalidParams)
		return
	}
	if m.Fields&sensor.FieldTH != 0 {
		l.rec.Flags |= payload.FlagTH
		l.rec.TempC = m.TempC
		l.rec.RH = m.RH
	}
	if m.Fields&sensor.FieldCO2 != 0 {
		l.rec.Flags |= payload.FlagCO2PPM
		l.rec.CO2 = m.CO2PPM
	}
	if l.rec.Flags != 0 {
		l.fl.set(flagValid)
	}
}

// plausible rejects readings outside the supported sensors' physical range.
// The SCD30 reports 0 ppm while warming up, which is not a usable value.
func plausible(m sensor.Measurement) bool {
	if m.Fields&sensor.FieldCO2 != 0 && (m.CO2PPM <= 0 || m.CO2PPM > 40000) {
		return false
	}
	if m.Fields&sensor.FieldTH != 0 &&
		(m.TempC < -40 || m.TempC > 85 || m.RH < 0 || m.RH > 100) {
		return false
	}
	return true
}

// fillTxBuffer adds the telemetry fields to the cycle's record and encodes
// it into the transmit buffer.
func (l *Loop) fillTxBuffer() {
	if v := l.cfg.Volts; v != nil {
		if vbat, err := v.BatteryVolts(); err == nil {
			l.rec.Flags |= payload.FlagVbat
			l.rec.Vbat = vbat
		}
		if vcc, err := v.SystemVolts(); err == nil {
			l.rec.Flags |= payload.FlagVcc
			l.rec.Vcc = vcc
		}
	}
	if b := l.cfg.Boot; b != nil {
		l.rec.Flags |= payload.FlagBoot
		l.rec.Boot = uint8(b.BootCount())
	}
	l.rec.Encode(&l.buf)
}

// startTransmission opens a transmission generation and hands the encoded
// payload to the transport. The payload is copied: the transmit buffer is
// reused next cycle while the transport may still hold the message.
func (l *Loop) startTransmission() {
	gen := l.tx.begin()
	msg := uplink.Message{
		Port:    payload.UplinkPort,
		Payload: append([]byte(nil), l.buf.Bytes()...),
	}
	err := l.cfg.Uplink.Send(msg, func(err error) {
		l.sendBufferDone(gen, err == nil)
	})
	if err != nil {
		// Never accepted; the completion will not be called.
		l.cfg.Status.LoopError(errcode.TxFailed, err)
		l.tx.finish(gen, false)
	}
}

// sendBufferDone is the transport completion entry point. It may run on any
// goroutine; an outcome for a stale generation is dropped in txState.
func (l *Loop) sendBufferDone(gen uint32, ok bool) {
	l.tx.finish(gen, ok)
}

// finishTransmission records the cycle's uplink outcome. timedOut means the
// bounded wait expired with no completion; the transmission stays pending in
// txState, which blocks deep sleep until the transport settles.
func (l *Loop) finishTransmission(timedOut bool) {
	n := l.buf.Len()
	switch {
	case timedOut:
		l.cfg.Status.UplinkDone(n, errcode.TxTimeout)
	case l.tx.errored():
		l.cfg.Status.UplinkDone(n, errcode.TxFailed)
	default:
		l.cfg.Status.UplinkDone(n, nil)
	}
}

// updateTxCycleTime picks the inter-measurement interval: the commissioning
// cadence for the first CommissioningCount cycles of a session, the standard
// one after.
func (l *Loop) updateTxCycleTime() {
	if l.cyclesLeft > 0 {
		l.cyclesLeft--
		l.curInterval = l.cfg.CommissioningInterval
		return
	}
	l.curInterval = l.cfg.Interval
}
