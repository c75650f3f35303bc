package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/srs"
)

// Kind names a group of checkpoint entries that share a save cadence.
type Kind string

// Checkpoint kinds.
const (
	KindConfidence Kind = "confidence"
	KindTemporal   Kind = "temporal"
	KindCards      Kind = "cards"
)

// ErrUnknownKind is returned for a checkpoint kind the engine does not own.
var ErrUnknownKind = errors.New("engine: unknown checkpoint kind")

// Entry is one key and its opaque blob.
type Entry struct {
	Key   string
	Value []byte
}

type dirtySet struct {
	confidence bool
	temporal   bool
	cards      map[string]struct{}
}

func newDirtySet() dirtySet {
	return dirtySet{cards: make(map[string]struct{})}
}

// Checkpoint returns the entries of kind changed since the previous call and
// marks them clean. Card checkpoints also carry the card index under
// model.CardIndexKey. Callers hand failed entries back with MarkDirty.
func (e *Engine) Checkpoint(kind Kind) ([]Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch kind {
	case KindConfidence:
		if !e.dirty.confidence {
			return nil, nil
		}
		b, err := e.confidence.Export()
		if err != nil {
			return nil, err
		}
		e.dirty.confidence = false
		return []Entry{{Key: model.ConfidenceKey(e.userID), Value: b}}, nil

	case KindTemporal:
		if !e.dirty.temporal {
			return nil, nil
		}
		b, err := e.temporal.Export()
		if err != nil {
			return nil, err
		}
		e.dirty.temporal = false
		return []Entry{{Key: model.TemporalKey(e.userID), Value: b}}, nil

	case KindCards:
		if len(e.dirty.cards) == 0 {
			return nil, nil
		}
		out := make([]Entry, 0, len(e.dirty.cards)+1)
		for key := range e.dirty.cards {
			b, err := json.Marshal(e.cards[key])
			if err != nil {
				return nil, fmt.Errorf("engine: encode card %s: %w", key, err)
			}
			out = append(out, Entry{Key: key, Value: b})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

		keys := make([]string, 0, len(e.cards))
		for key := range e.cards {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		idx, err := json.Marshal(keys)
		if err != nil {
			return nil, fmt.Errorf("engine: encode card index: %w", err)
		}
		out = append(out, Entry{Key: model.CardIndexKey(e.userID), Value: idx})
		e.dirty.cards = make(map[string]struct{})
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// MarkDirty flags entries again after a failed save. For KindCards the
// card keys are given; the index key is ignored.
func (e *Engine) MarkDirty(kind Kind, keys ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch kind {
	case KindConfidence:
		e.dirty.confidence = true
	case KindTemporal:
		e.dirty.temporal = true
	case KindCards:
		for _, k := range keys {
			if _, ok := e.cards[k]; ok {
				e.dirty.cards[k] = struct{}{}
			}
		}
	}
}

// Restore replaces state from a stored blob. KindCards blobs hold one card.
// Restored state is clean.
func (e *Engine) Restore(kind Kind, blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch kind {
	case KindConfidence:
		return e.confidence.Import(blob)
	case KindTemporal:
		return e.temporal.Import(blob)
	case KindCards:
		var c srs.Card
		if err := json.Unmarshal(blob, &c); err != nil {
			return fmt.Errorf("engine: decode card: %w", err)
		}
		if c.Key == "" {
			return errors.New("engine: decode card: missing key")
		}
		e.cards[c.Key] = c
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// DecodeCardIndex parses a card index blob written by Checkpoint.
func DecodeCardIndex(blob []byte) ([]string, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var keys []string
	if err := json.Unmarshal(blob, &keys); err != nil {
		return nil, fmt.Errorf("engine: decode card index: %w", err)
	}
	return keys, nil
}

func sortCards(cs []srs.Card) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].Due.Equal(cs[j].Due) {
			return cs[i].Due.Before(cs[j].Due)
		}
		return cs[i].Key < cs[j].Key
	})
}
