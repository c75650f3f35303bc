package srs

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cadence/internal/domain/confidence"
	"github.com/okian/cadence/internal/domain/flow"
	"github.com/okian/cadence/internal/domain/temporal"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestFallbackTable(t *testing.T) {
	Convey("Given a scheduler with the adaptive path disabled", t, func() {
		s := New(WithAdaptive(false))
		card := NewCard("u|indicative|present|1s|hablar", t0)

		Convey("Five clean successes walk the fixed table", func() {
			now := t0
			var got []int
			for i := 0; i < 5; i++ {
				res := s.CalculateNextInterval(card, true, 0, Meta{Now: now})
				So(res.UsedFallback, ShouldBeTrue)
				So(res.FallbackReason, ShouldEqual, ReasonDisabled)
				card = res.Card
				got = append(got, card.IntervalDays)
				now = card.Due
			}
			So(got, ShouldResemble, []int{1, 3, 7, 14, 30})
			So(card.Reps, ShouldEqual, 5)
			So(card.State, ShouldEqual, Review)

			Convey("A failure resets reps and the interval and lowers ease", func() {
				ease := card.Ease
				res := s.CalculateNextInterval(card, false, 0, Meta{Now: now})
				So(res.Card.Reps, ShouldEqual, 0)
				So(res.Card.IntervalDays, ShouldEqual, 1)
				So(res.Card.Lapses, ShouldEqual, 1)
				So(res.Card.State, ShouldEqual, Relearning)
				So(res.Card.Ease, ShouldAlmostEqual, ease-0.2, 1e-9)
			})
		})

		Convey("Ease never drops below the floor", func() {
			card.Ease = MinEase + 0.05
			res := s.CalculateNextInterval(card, false, 0, Meta{Now: t0})
			So(res.Card.Ease, ShouldEqual, MinEase)
		})

		Convey("Hints shrink the interval", func() {
			card.Reps = 2
			res := s.CalculateNextInterval(card, true, 1, Meta{Now: t0})
			So(res.Card.IntervalDays, ShouldEqual, 6)
		})

		Convey("Past the table the interval grows by ease", func() {
			card.Reps = 6
			card.IntervalDays = 90
			card.Ease = 2.0
			res := s.CalculateNextInterval(card, true, 0, Meta{Now: t0})
			So(res.Card.IntervalDays, ShouldEqual, 180)
		})
	})
}

func TestEaseDifficultyRoundTrip(t *testing.T) {
	Convey("Ease survives a round trip through difficulty", t, func() {
		for e := MinEase; e <= MaxEase+1e-9; e += 0.05 {
			So(DifficultyToEase(EaseToDifficulty(e)), ShouldAlmostEqual, e, 1e-6)
		}
		So(EaseToDifficulty(MinEase), ShouldAlmostEqual, 10, 1e-9)
		So(EaseToDifficulty(MaxEase), ShouldAlmostEqual, 1, 1e-9)
		So(EaseToDifficulty(0.5), ShouldAlmostEqual, 10, 1e-9)
	})
}

func TestDeriveRating(t *testing.T) {
	Convey("Ratings follow outcome, hints, speed and signals", t, func() {
		cases := []struct {
			name    string
			correct bool
			hints   int
			meta    Meta
			want    Rating
		}{
			{"incorrect", false, 0, Meta{}, Again},
			{"accent only", false, 0, Meta{ErrorTypes: []string{"accent"}}, Hard},
			{"accent plus other", false, 0, Meta{ErrorTypes: []string{"accent", "conjugation"}}, Again},
			{"plain correct", true, 0, Meta{ResponseTimeMs: 4000}, Good},
			{"hinted", true, 1, Meta{ResponseTimeMs: 4000}, Hard},
			{"fast", true, 0, Meta{ResponseTimeMs: 1500}, Easy},
			{"fast but frustrated", true, 0, Meta{ResponseTimeMs: 1500, Frustrated: true}, Good},
			{"hinted and struggling", true, 1, Meta{Confidence: confidence.Struggling}, Hard},
			{"deep flow", true, 0, Meta{ResponseTimeMs: 4000, Flow: flow.DeepFlow}, Easy},
			{"hinted and confident", true, 2, Meta{ResponseTimeMs: 4000, Confidence: confidence.Confident}, Good},
			{"frustration wins over flow", true, 0, Meta{ResponseTimeMs: 4000, Flow: flow.DeepFlow, Confidence: confidence.Hesitant}, Hard},
		}
		for _, tc := range cases {
			Convey(tc.name, func() {
				So(DeriveRating(tc.correct, tc.hints, tc.meta), ShouldEqual, tc.want)
			})
		}
	})
}

func TestAdaptivePath(t *testing.T) {
	Convey("Given the adaptive scheduler", t, func() {
		s := New()
		card := NewCard("u|subjunctive|present|3s|tener", t0)

		Convey("A first Good review schedules at the initial stability", func() {
			res := s.CalculateNextInterval(card, true, 0, Meta{ResponseTimeMs: 4000, Now: t0})
			So(res.UsedFallback, ShouldBeFalse)
			So(res.Rating, ShouldEqual, Good)
			So(res.Card.State, ShouldEqual, Review)
			So(res.Card.Reps, ShouldEqual, 1)
			So(res.Card.Stability, ShouldAlmostEqual, DefaultParameters[2], 1e-9)
			So(res.Card.IntervalDays, ShouldEqual, 2)
			So(res.Card.Due, ShouldEqual, t0.Add(48*time.Hour))
			So(res.LegacyEase, ShouldEqual, res.Card.Ease)
			So(s.Stats(), ShouldResemble, Stats{Adaptive: 1})
		})

		Convey("A first failure enters learning with a one-day floor", func() {
			res := s.CalculateNextInterval(card, false, 0, Meta{Now: t0})
			So(res.Rating, ShouldEqual, Again)
			So(res.Card.State, ShouldEqual, Learning)
			So(res.Card.Lapses, ShouldEqual, 1)
			So(res.Card.IntervalDays, ShouldEqual, 1)
		})

		Convey("Repeated successes grow the interval", func() {
			now := t0
			prev := 0
			for i := 0; i < 6; i++ {
				res := s.CalculateNextInterval(card, true, 0, Meta{ResponseTimeMs: 4000, Now: now})
				card = res.Card
				So(card.IntervalDays, ShouldBeGreaterThanOrEqualTo, prev)
				prev = card.IntervalDays
				now = card.Due
			}
			So(prev, ShouldBeGreaterThan, 2)
		})

		Convey("Intervals stay within [1, maximum]", func() {
			s := New(WithMaximumInterval(10))
			card.State = Review
			card.Stability = 400
			card.LastReview = t0.Add(-200 * 24 * time.Hour)
			res := s.CalculateNextInterval(card, true, 0, Meta{ResponseTimeMs: 1000, Now: t0})
			So(res.Card.IntervalDays, ShouldEqual, 10)
			So(res.Card.Difficulty, ShouldBeBetweenOrEqual, 1.0, 10.0)
		})
	})
}

func TestAdjustments(t *testing.T) {
	Convey("Given the adaptive scheduler", t, func() {
		card := NewCard("u|k", t0)

		Convey("Frustration adds a day and low confidence shortens", func() {
			res := New().CalculateNextInterval(card, true, 0, Meta{
				ResponseTimeMs: 4000, Now: t0, Frustrated: true, Confidence: confidence.Struggling,
			})
			So(res.Adjustment.ExtraDays, ShouldEqual, 1.0)
			So(res.Adjustment.Multiplier, ShouldAlmostEqual, 0.7, 1e-9)
			So(res.Adjustment.Reasons, ShouldContain, "frustration_delay")
		})

		Convey("Timing multiplies and optimal time may advance", func() {
			s := New(WithTimingAdvance(true))
			res := s.CalculateNextInterval(card, true, 0, Meta{
				ResponseTimeMs: 4000, Now: t0,
				Timing: temporal.Recommendation{TimingMultiplier: 1.2, IsOptimalTime: true, Reasons: []string{"peak_hour"}},
			})
			So(res.Adjustment.Multiplier, ShouldAlmostEqual, 1.08, 1e-9)
			So(res.Adjustment.Reasons, ShouldContain, "peak_hour")
			So(res.Adjustment.Reasons, ShouldContain, "optimal_time_advance")
		})

		Convey("A fatigue delay adds a day", func() {
			res := New().CalculateNextInterval(card, true, 0, Meta{
				ResponseTimeMs: 4000, Now: t0,
				Timing: temporal.Recommendation{TimingMultiplier: 0.8, ShouldDelay: true},
			})
			So(res.Adjustment.ExtraDays, ShouldEqual, 1.0)
			So(res.Adjustment.Multiplier, ShouldAlmostEqual, 0.8, 1e-9)
		})
	})
}

func TestFallbackOnFailure(t *testing.T) {
	Convey("Given an adaptive scheduler", t, func() {
		s := New()
		card := NewCard("u|k", t0)

		Convey("A panicking update falls back to the table", func() {
			s.update = func(Card, Rating, Meta, time.Time) (Card, Adjustment, error) {
				panic("boom")
			}
			res := s.CalculateNextInterval(card, true, 0, Meta{Now: t0})
			So(res.UsedFallback, ShouldBeTrue)
			So(res.FallbackReason, ShouldEqual, ReasonPanic)
			So(res.Card.IntervalDays, ShouldEqual, 1)
			So(s.Stats(), ShouldResemble, Stats{Fallback: 1, Errors: 1})
		})

		Convey("A wrapped panic error is recognisable", func() {
			s.update = func(Card, Rating, Meta, time.Time) (Card, Adjustment, error) {
				panic("boom")
			}
			_, _, err := s.safeUpdate(card, Good, Meta{}, t0)
			So(errors.Is(err, ErrAdaptivePanic), ShouldBeTrue)
		})

		Convey("Non-finite memory values fall back", func() {
			card.State = Review
			card.Stability = math.NaN()
			card.LastReview = t0.Add(-72 * time.Hour)
			res := s.CalculateNextInterval(card, true, 0, Meta{Now: t0})
			So(res.UsedFallback, ShouldBeTrue)
			So(res.FallbackReason, ShouldEqual, ReasonNonFinite)
			So(math.IsNaN(res.Card.Stability), ShouldBeFalse)
			So(res.Card.IntervalDays, ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("Other errors are reported generically", func() {
			s.update = func(c Card, _ Rating, _ Meta, _ time.Time) (Card, Adjustment, error) {
				return c, Adjustment{}, errors.New("store down")
			}
			res := s.CalculateNextInterval(card, true, 0, Meta{Now: t0})
			So(res.FallbackReason, ShouldEqual, ReasonError)
		})
	})
}

func TestLeech(t *testing.T) {
	Convey("Cards are flagged once lapses reach the threshold", t, func() {
		s := New(WithLeechThreshold(2))
		card := NewCard("u|k", t0)
		card = s.CalculateNextInterval(card, false, 0, Meta{Now: t0}).Card
		So(card.Leech, ShouldBeFalse)
		card = s.CalculateNextInterval(card, false, 0, Meta{Now: t0.Add(time.Hour)}).Card
		So(card.Leech, ShouldBeTrue)
		card = s.CalculateNextInterval(card, true, 0, Meta{Now: t0.Add(48 * time.Hour)}).Card
		So(card.Leech, ShouldBeTrue)
	})
}

func TestRetrievability(t *testing.T) {
	Convey("Retrievability reaches 0.9 after one stability span", t, func() {
		s := New()
		So(s.Retrievability(NewCard("u|k", t0), t0), ShouldEqual, 1.0)

		card := Card{State: Review, Stability: 10, LastReview: t0}
		So(s.Retrievability(card, t0), ShouldAlmostEqual, 1, 1e-9)
		So(s.Retrievability(card, t0.Add(10*24*time.Hour)), ShouldAlmostEqual, 0.9, 1e-9)
		So(s.Retrievability(card, t0.Add(40*24*time.Hour)), ShouldBeLessThan, 0.9)
	})
}

func TestOptionsAndParameters(t *testing.T) {
	Convey("Invalid options are ignored", t, func() {
		s := New(WithDesiredRetention(1.5), WithMaximumInterval(0), WithLeechThreshold(-1))
		So(s.retention, ShouldEqual, defaultRetention)
		So(s.maxInterval, ShouldEqual, defaultMaxInterval)
		So(s.leechThreshold, ShouldEqual, defaultLeechThreshold)
		So(s.Adaptive(), ShouldBeTrue)

		bad := DefaultParameters
		bad[20] = 2
		So(errors.Is(ValidateParameters(bad), ErrInvalidParameters), ShouldBeTrue)
		So(ValidateParameters(DefaultParameters), ShouldBeNil)
	})

	Convey("Enum text forms round trip", t, func() {
		var r Rating
		So(r.UnmarshalText([]byte("Hard")), ShouldBeNil)
		So(r, ShouldEqual, Hard)
		So(r.UnmarshalText([]byte("Meh")), ShouldNotBeNil)
		b, err := Relearning.MarshalJSON()
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, `"Relearning"`)
	})

	Convey("A fresh card starts in the new state and is due at once", t, func() {
		card := NewCard("u|indicative|present|1s|hablar", t0)
		So(card.State, ShouldEqual, StateNew)
		So(card.State.String(), ShouldEqual, "New")
		So(card.IsDue(t0.Add(-time.Hour)), ShouldBeTrue)

		b, err := json.Marshal(card)
		So(err, ShouldBeNil)
		var back Card
		So(json.Unmarshal(b, &back), ShouldBeNil)
		So(back.State, ShouldEqual, StateNew)

		res := New().CalculateNextInterval(card, true, 0, Meta{Now: t0, ResponseTimeMs: 3000})
		So(res.Card.State, ShouldNotEqual, StateNew)
	})
}
