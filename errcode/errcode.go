// Package errcode defines the stable error identifiers the node reports on
// its telemetry topics. Collaborator packages keep their own sentinel errors;
// these codes are the short, wire-friendly names the service layer maps them
// to.
package errcode

import "errors"

// Code is a stable, telemetry-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Measurement cycle.
	SensorTimeout Code = "sensor_timeout" // data not ready within the bounded wait
	SensorAbsent  Code = "sensor_absent"  // probe failed at Begin; session continues without it
	SensorRead    Code = "sensor_read"    // read or range-validation failure
	TxFailed      Code = "tx_failed"      // transport reported failure
	TxTimeout     Code = "tx_timeout"     // no completion within the bounded wait
	BadState      Code = "bad_state"      // dispatch saw an unknown state (programming error)

	// Collaborators.
	Busy          Code = "busy"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"
	LinkDown      Code = "link_down"
	Timeout       Code = "timeout"

	Error Code = "error" // generic fallback
)

// E is an optional wrapper when an operation and a cause add context.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}
