// Package types holds the payload schemas published on the bus and mirrored
// over the bridge. Field names are wire contract; timestamps are unix
// milliseconds.
package types

// NodeState is retained on node/state.
type NodeState struct {
	State string `json:"state"`
	Prev  string `json:"prev,omitempty"`
	TS    int64  `json:"ts_ms"`
}

// Measurement is published on node/measurement once per cycle, valid or not.
// A degraded cycle carries Valid=false and zero readings.
type Measurement struct {
	CO2PPM float32 `json:"co2_ppm"`
	TempC  float32 `json:"temp_c"`
	RH     float32 `json:"rh"`
	Valid  bool    `json:"valid"`
	TS     int64   `json:"ts_ms"`
}

// UplinkReport is published on node/uplink after each transmitted cycle.
// Payload is the encoded message, hex.
type UplinkReport struct {
	Port    uint8  `json:"port"`
	Bytes   int    `json:"bytes"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
	TS      int64  `json:"ts_ms"`
}

// SleepNotice is published on node/sleep before the first deep sleep of a
// session.
type SleepNotice struct {
	ForMS int64 `json:"for_ms"`
	Deep  bool  `json:"deep"`
	TS    int64 `json:"ts_ms"`
}

// Fault is published on node/fault for every error the loop absorbed.
type Fault struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
	TS     int64  `json:"ts_ms"`
}

// Link is a transport liveness level.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

// LinkStatus is retained on link/status by whichever uplink transport is in
// use.
type LinkStatus struct {
	Link  Link   `json:"link"`
	Error string `json:"error,omitempty"`
	TS    int64  `json:"ts_ms"`
}

// Heartbeat is retained on node/heartbeat while the service runs.
type Heartbeat struct {
	Seq    uint64 `json:"seq"`
	Uptime int64  `json:"uptime_ms"`
	TS     int64  `json:"ts_ms"`
}
