package node

import (
	"errors"
	"time"

	"scd30node-go/bus"
	"scd30node-go/errcode"
	"scd30node-go/measure"
	"scd30node-go/payload"
	"scd30node-go/types"
	"scd30node-go/uplink"
	"scd30node-go/x/conv"
)

// captureTransport records what the loop last handed to the transport so the
// uplink report can carry the encoded payload. Send runs on the poll
// goroutine, the same one that later reads the capture from UplinkDone.
type captureTransport struct {
	next     uplink.Transport
	lastPort uint8
	lastHex  string
}

func (c *captureTransport) Send(msg uplink.Message, done uplink.CompletionFunc) error {
	c.lastPort = msg.Port
	c.lastHex = string(conv.Hex(make([]byte, 2*len(msg.Payload)), msg.Payload))
	return c.next.Send(msg, done)
}

// busSink adapts measure.StatusSink onto bus topics. Every method runs on the
// poll goroutine and publishes without blocking, which is the sink contract.
type busSink struct {
	conn *bus.Connection
	cap  *captureTransport
	clk  measure.Clock
	link types.Link
}

func (s *busSink) ts() int64 { return s.clk.Now().UnixMilli() }

func (s *busSink) StateChanged(from, to measure.State) {
	s.conn.Publish(&bus.Message{
		Topic:    topicState,
		Payload:  types.NodeState{State: to.String(), Prev: from.String(), TS: s.ts()},
		Retained: true,
	})
}

func (s *busSink) MeasurementDone(rec payload.Record, valid bool) {
	s.conn.Publish(&bus.Message{
		Topic: topicMeasurement,
		Payload: types.Measurement{
			CO2PPM: rec.CO2,
			TempC:  rec.TempC,
			RH:     rec.RH,
			Valid:  valid,
			TS:     s.ts(),
		},
	})
}

func (s *busSink) UplinkDone(bytes int, err error) {
	rep := types.UplinkReport{
		Port:    s.cap.lastPort,
		Bytes:   bytes,
		Payload: s.cap.lastHex,
		TS:      s.ts(),
	}
	if err != nil {
		rep.Error = string(errcode.Of(err))
	}
	s.conn.Publish(&bus.Message{Topic: topicUplink, Payload: rep})

	if err == nil {
		s.setLink(types.LinkUp, nil)
	} else if s.link != types.LinkDown {
		// A failed completion never papers over an established down
		// level; only a success clears it.
		s.setLink(types.LinkDegraded, err)
	}
}

func (s *busSink) SleepNotice(d time.Duration, deep bool) {
	s.conn.Publish(&bus.Message{
		Topic:   topicSleep,
		Payload: types.SleepNotice{ForMS: d.Milliseconds(), Deep: deep, TS: s.ts()},
	})
}

func (s *busSink) LoopError(code errcode.Code, err error) {
	f := types.Fault{Code: string(code), TS: s.ts()}
	if err != nil {
		f.Detail = err.Error()
	}
	s.conn.Publish(&bus.Message{Topic: topicFault, Payload: f})

	// A rejected send tells us about the link before any completion would.
	if code == errcode.TxFailed && err != nil {
		if errcode.Of(err) == errcode.LinkDown || errors.Is(err, uplink.ErrClosed) {
			s.setLink(types.LinkDown, err)
		} else {
			s.setLink(types.LinkDegraded, err)
		}
	}
}

// setLink retains the link level, publishing only on change.
func (s *busSink) setLink(l types.Link, err error) {
	if s.link == l {
		return
	}
	s.link = l
	st := types.LinkStatus{Link: l, TS: s.ts()}
	if err != nil {
		st.Error = err.Error()
	}
	s.conn.Publish(&bus.Message{Topic: topicLink, Payload: st, Retained: true})
}
