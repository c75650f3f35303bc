package srs

import (
	"encoding/json"
	"fmt"
)

// Rating is the four-level outcome fed into the stability update.
type Rating int

// Ratings, worst first.
const (
	Again Rating = iota + 1
	Hard
	Good
	Easy
)

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// IsValid reports whether r is Again through Easy.
func (r Rating) IsValid() bool { return r >= Again && r <= Easy }

// String returns the rating name.
func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(b []byte) error {
	for i := Again; i <= Easy; i++ {
		if ratingNames[i] == string(b) {
			*r = i
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidRating, string(b))
}

// State is the lifecycle stage of a card.
type State int

// Card states.
const (
	StateNew State = iota
	Learning
	Review
	Relearning
)

var stateNames = [...]string{StateNew: "New", Learning: "Learning", Review: "Review", Relearning: "Relearning"}

// IsValid reports whether s is a known state.
func (s State) IsValid() bool { return s >= StateNew && s <= Relearning }

// String returns the state name.
func (s State) String() string {
	if s.IsValid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidState, int(s))
	}
	return json.Marshal(stateNames[s])
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidState, string(b))
	}
	for i := StateNew; i <= Relearning; i++ {
		if stateNames[i] == name {
			*s = i
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidState, name)
}
