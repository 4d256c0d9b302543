package governor

import (
	"fmt"
)

// State is the thermal state of the governor. Exactly one state is
// current at any time and it is durable across restarts.
type State int

const (
	// StateSilent means the fan is held off, temperature is well below
	// the silent/active boundary.
	StateSilent State = iota
	// StateActive means the EC's automatic control law is driving the fan.
	StateActive
	// StateEmergency means emergency cooling failed or critical
	// temperature was reached, the EC is in automatic mode.
	StateEmergency
	// StateCoolingDown means emergency cooling succeeded and the
	// quarantine window is (or was just) open.
	StateCoolingDown
)

var stateNames = map[State]string{
	StateSilent:      "silent",
	StateActive:      "active",
	StateEmergency:   "emergency",
	StateCoolingDown: "cooling_down",
}

func (s State) String() string {
	name, ok := stateNames[s]
	if !ok {
		return fmt.Sprintf("unknown(%d)", int(s))
	}
	return name
}

// States lists all valid states in declaration order.
func States() []State {
	return []State{StateSilent, StateActive, StateEmergency, StateCoolingDown}
}

// ParseState maps a persisted state name back to its State.
func ParseState(name string) (State, error) {
	for state, stateName := range stateNames {
		if stateName == name {
			return state, nil
		}
	}
	return StateSilent, fmt.Errorf("unknown thermal state name: %q", name)
}
