package momentum

import "fmt"

// Type is the discrete momentum category derived from the score and trend.
type Type int

// Momentum types. SteadyProgress is the neutral zero value.
const (
	SteadyProgress Type = iota
	PeakPerformance
	ConfidenceBuilding
	MinorSetback
	RecoveryMode
	ConfidenceCrisis
)

var typeNames = map[Type]string{
	PeakPerformance:    "PEAK_PERFORMANCE",
	ConfidenceBuilding: "CONFIDENCE_BUILDING",
	SteadyProgress:     "STEADY_PROGRESS",
	MinorSetback:       "MINOR_SETBACK",
	RecoveryMode:       "RECOVERY_MODE",
	ConfidenceCrisis:   "CONFIDENCE_CRISIS",
}

// String returns the upper-snake name of the type.
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if _, ok := typeNames[t]; !ok {
		return nil, fmt.Errorf("momentum: invalid type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	for k, n := range typeNames {
		if n == string(b) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("momentum: unknown type %q", string(b))
}

// Horizon selects a trend window.
type Horizon int

// Trend horizons.
const (
	Short Horizon = iota
	Medium
	Long
)

// Trends are confidence regression slopes scaled to [-1, 1].
type Trends struct {
	Short  float64 `json:"short"`
	Medium float64 `json:"medium"`
	Long   float64 `json:"long"`
}

// Streak is a counter with its best value.
type Streak struct {
	Current int `json:"current"`
	Best    int `json:"best"`
}

func (s *Streak) set(v int) {
	s.Current = v
	if v > s.Best {
		s.Best = v
	}
}

// Streaks are the four per-response counters.
type Streaks struct {
	Confidence  Streak `json:"confidence"`
	Struggle    Streak `json:"struggle"`
	Improvement Streak `json:"improvement"`
	Consistency Streak `json:"consistency"`
}

// EmotionalState summarizes affect; every field is in [0, 1].
type EmotionalState struct {
	Confidence  float64 `json:"confidence"`
	Frustration float64 `json:"frustration"`
	Engagement  float64 `json:"engagement"`
	Fatigue     float64 `json:"fatigue"`
}

// Result is returned by Process.
type Result struct {
	Type        Type           `json:"type"`
	Previous    Type           `json:"previous"`
	TypeChanged bool           `json:"typeChanged"`
	Candidate   Type           `json:"candidate"`
	Score       float64        `json:"score"`
	RawScore    float64        `json:"rawScore"`
	Trends      Trends         `json:"trends"`
	Streaks     Streaks        `json:"streaks"`
	Emotional   EmotionalState `json:"emotional"`
}
