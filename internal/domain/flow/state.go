package flow

import "fmt"

// State classifies momentary engagement.
type State int

// Flow states, from most to least absorbed.
const (
	Neutral State = iota
	DeepFlow
	LightFlow
	Struggling
	Frustrated
)

var stateNames = map[State]string{
	DeepFlow:   "DEEP_FLOW",
	LightFlow:  "LIGHT_FLOW",
	Neutral:    "NEUTRAL",
	Struggling: "STRUGGLING",
	Frustrated: "FRUSTRATED",
}

// String returns the upper-snake name of the state.
func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("flow: invalid state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for k, n := range stateNames {
		if n == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("flow: unknown state %q", string(b))
}
