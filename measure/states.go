package measure

import "scd30node-go/x/strconvx"

// State enumerates the loop's FSM states. StateNoChange is the pseudo-state
// dispatch returns to stay put; it is never the loop's resident state.
type State uint8

const (
	StateNoChange State = iota // "no transition"; must stay zero
	StateInitial               // the only entry state
	StateInactive              // parked; not measuring
	StateSleeping              // active; waiting out the inter-measurement interval
	StateWake                  // waking the sensor and starting a measurement
	StateMeasure               // reading and validating the measurement
	StateSleepSensor           // returning the sensor to low power
	StateTransmit              // uplinking the encoded record
	StateFinal                 // terminal; reached only via shutdown

	stateCount // sentinel, keep last
)

// stateNames is indexed by State. The array is sized by the sentinel so a
// state added past stateCount fails to compile, and TestStateNamesComplete
// rejects a state added without a name.
var stateNames = [stateCount]string{
	StateNoChange:    "NoChange",
	StateInitial:     "Initial",
	StateInactive:    "Inactive",
	StateSleeping:    "Sleeping",
	StateWake:        "Wake",
	StateMeasure:     "Measure",
	StateSleepSensor: "SleepSensor",
	StateTransmit:    "Transmit",
	StateFinal:       "Final",
}

func (s State) String() string {
	if s < stateCount && stateNames[s] != "" {
		return stateNames[s]
	}
	return "State(" + strconvx.Itoa(int(s)) + ")"
}

// valid reports whether s is a real resident state (not NoChange, not junk).
func (s State) valid() bool { return s > StateNoChange && s < stateCount }
