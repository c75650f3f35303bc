package flow

import (
	"math/rand"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cadence/internal/domain/model"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func record(correct bool, rtMs float64, at time.Time) model.ResponseRecord {
	return model.NewRecord(model.AttemptEvent{
		Correct:        correct,
		ResponseTimeMs: rtMs,
		Timestamp:      at,
	}, model.DefaultThresholds())
}

func TestDetectorScenarios(t *testing.T) {
	Convey("Given a fresh detector", t, func() {
		d := New()

		Convey("When fewer than three responses are seen", func() {
			r1 := d.Process(record(false, 20000, t0))
			r2 := d.Process(record(false, 20000, t0.Add(time.Second)))

			Convey("Then it should stay neutral", func() {
				So(r1.State, ShouldEqual, Neutral)
				So(r2.Candidate, ShouldEqual, Neutral)
				So(r2.StateChanged, ShouldBeFalse)
			})
		})

		Convey("When fifteen fast correct answers arrive", func() {
			var last Result
			for i := 0; i < 15; i++ {
				last = d.Process(record(true, 800, t0.Add(time.Duration(i)*5*time.Second)))
			}

			Convey("Then the learner should end in flow", func() {
				So(last.State, ShouldBeIn, DeepFlow, LightFlow)
				So(last.Metrics.Accuracy, ShouldEqual, 1.0)
				So(last.Metrics.CorrectStreak, ShouldEqual, 15)
			})

			Convey("Then light flow should precede deep flow", func() {
				h := d.History()
				So(len(h), ShouldEqual, 2)
				So(h[0].To, ShouldEqual, LightFlow)
				So(h[1].To, ShouldEqual, DeepFlow)
				So(d.TimeInState(t0.Add(80*time.Second)), ShouldEqual, 60*time.Second)
			})
		})

		Convey("When fifteen slow wrong answers arrive", func() {
			var last Result
			for i := 0; i < 15; i++ {
				last = d.Process(record(false, 5000, t0.Add(time.Duration(i)*5*time.Second)))
			}

			Convey("Then the learner should end struggling or frustrated", func() {
				So(last.State, ShouldBeIn, Struggling, Frustrated)
				So(last.Metrics.ErrorStreak, ShouldEqual, 15)
			})
		})
	})
}

func TestDetectorHysteresis(t *testing.T) {
	Convey("Given a detector that just became frustrated", t, func() {
		d := New()
		for i := 0; i < 3; i++ {
			d.Process(record(false, 5000, t0.Add(time.Duration(i)*time.Second)))
		}
		So(d.State(), ShouldEqual, Frustrated)

		Convey("When performance recovers within the dwell time", func() {
			var r Result
			for i := 3; i < 8; i++ {
				r = d.Process(record(true, 800, t0.Add(time.Duration(i)*time.Second)))
			}

			Convey("Then the candidate should change but the state should hold", func() {
				So(r.Candidate, ShouldNotEqual, Frustrated)
				So(r.StateChanged, ShouldBeFalse)
				So(r.State, ShouldEqual, Frustrated)
			})

			Convey("Then the change should commit once ten seconds have passed", func() {
				var committed Result
				for i := 8; i <= 12; i++ {
					committed = d.Process(record(true, 800, t0.Add(time.Duration(i)*time.Second)))
				}
				So(committed.StateChanged, ShouldBeTrue)
				So(committed.Previous, ShouldEqual, Frustrated)
				So(committed.State, ShouldEqual, DeepFlow)
			})
		})
	})

	Convey("Given a frustrated candidate without corroboration", t, func() {
		d := New()
		var r Result
		for i := 0; i < 3; i++ {
			r = d.Process(record(true, 800, t0.Add(time.Duration(i)*time.Second)))
		}
		So(r.State, ShouldEqual, LightFlow)
		for i := 3; i < 10; i++ {
			d.Process(record(false, 5000, t0.Add(time.Duration(i)*time.Second)))
		}
		for i := 10; i <= 12; i++ {
			r = d.Process(record(true, 800, t0.Add(time.Duration(i)*time.Second)))
		}

		Convey("Then it should not commit while the last three responses disagree", func() {
			So(r.Candidate, ShouldEqual, Frustrated)
			So(r.StateChanged, ShouldBeFalse)
			So(r.State, ShouldEqual, LightFlow)
		})
	})
}

func TestDetectorNoFlapping(t *testing.T) {
	Convey("Given a noisy stream alternating good and bad blocks one second apart", t, func() {
		d := New()
		rng := rand.New(rand.NewSource(7))
		var commits []time.Time

		for i := 0; i < 300; i++ {
			good := (i/15)%2 == 0
			correct := good
			if rng.Intn(10) == 0 {
				correct = !correct
			}
			rt := 5000 + rng.Float64()*9000
			if good {
				rt = 600 + rng.Float64()*900
			}
			at := t0.Add(time.Duration(i) * time.Second)
			if r := d.Process(record(correct, rt, at)); r.StateChanged {
				commits = append(commits, at)
			}
		}

		Convey("Then no two committed changes should be closer than ten seconds", func() {
			So(len(commits), ShouldBeGreaterThan, 1)
			for i := 1; i < len(commits); i++ {
				So(commits[i].Sub(commits[i-1]), ShouldBeGreaterThanOrEqualTo, 10*time.Second)
			}
		})
	})
}

func TestDetectorReset(t *testing.T) {
	Convey("Given a detector with history", t, func() {
		d := New(WithMinDwell(time.Minute))
		for i := 0; i < 5; i++ {
			d.Process(record(false, 5000, t0.Add(time.Duration(i)*time.Second)))
		}
		So(d.State(), ShouldEqual, Frustrated)

		Convey("When reset", func() {
			d.Reset()

			Convey("Then the session state should be cleared but history kept", func() {
				So(d.State(), ShouldEqual, Neutral)
				So(d.Metrics().Samples, ShouldEqual, 0)
				So(len(d.History()), ShouldEqual, 1)
			})

			Convey("Then the next change should not wait for the dwell", func() {
				var r Result
				for i := 0; i < 3; i++ {
					r = d.Process(record(true, 800, t0.Add(time.Duration(10+i)*time.Second)))
				}
				So(r.StateChanged, ShouldBeTrue)
				So(r.State, ShouldEqual, LightFlow)
			})
		})
	})
}

func TestStateText(t *testing.T) {
	Convey("Given flow states", t, func() {
		b, err := DeepFlow.MarshalText()
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, "DEEP_FLOW")

		var s State
		So(s.UnmarshalText([]byte("FRUSTRATED")), ShouldBeNil)
		So(s, ShouldEqual, Frustrated)
		So(s.UnmarshalText([]byte("BORED")), ShouldNotBeNil)
		So(State(42).String(), ShouldEqual, "State(42)")
	})
}
