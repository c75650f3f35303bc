package confidence

import (
	"math/rand"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cadence/internal/domain/model"
)

var (
	t0      = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	present = model.Item{Verb: "comer", Mood: "indicative", Tense: "present", Person: "3s"}
	past    = model.Item{Verb: "vivir", Mood: "indicative", Tense: "preterite", Person: "1p"}
)

func record(item model.Item, correct bool, rtMs float64, at time.Time) model.ResponseRecord {
	return model.NewRecord(model.AttemptEvent{
		Correct:        correct,
		ResponseTimeMs: rtMs,
		Item:           item,
		Timestamp:      at,
	}, model.DefaultThresholds())
}

func ptr(v float64) *float64 { return &v }

func TestLevels(t *testing.T) {
	Convey("Given confidence values", t, func() {
		Convey("Representative values should map to their level", func() {
			So(LevelFor(0.95), ShouldEqual, Overconfident)
			So(LevelFor(0.8), ShouldEqual, Confident)
			So(LevelFor(0.6), ShouldEqual, Uncertain)
			So(LevelFor(0.4), ShouldEqual, Hesitant)
			So(LevelFor(0.2), ShouldEqual, Struggling)
		})

		Convey("Boundary values should resolve to the upper level", func() {
			So(LevelFor(0.9), ShouldEqual, Overconfident)
			So(LevelFor(0.7), ShouldEqual, Confident)
			So(LevelFor(0.5), ShouldEqual, Uncertain)
			So(LevelFor(0.3), ShouldEqual, Hesitant)
		})

		Convey("Unknown level names should fall back to uncertain", func() {
			So(ParseLevel(" Confident "), ShouldEqual, Confident)
			So(ParseLevel("ecstatic"), ShouldEqual, Uncertain)
		})
	})
}

func TestSpeedFactor(t *testing.T) {
	Convey("Given the trapezoid speed curve", t, func() {
		So(SpeedFactor(0), ShouldEqual, 0.7)
		So(SpeedFactor(1000), ShouldAlmostEqual, 0.85, 1e-12)
		So(SpeedFactor(2000), ShouldEqual, 1.0)
		So(SpeedFactor(4000), ShouldEqual, 1.0)
		So(SpeedFactor(8000), ShouldAlmostEqual, 0.5, 1e-12)
		So(SpeedFactor(12000), ShouldEqual, 0.0)
		So(SpeedFactor(30000), ShouldEqual, 0.0)
	})
}

func TestProcess(t *testing.T) {
	Convey("Given an empty engine", t, func() {
		e := New()

		Convey("When there are no profiles", func() {
			So(e.Overall(t0), ShouldEqual, 0.5)
			So(e.CategoryConfidence(present, t0), ShouldEqual, 0.5)
		})

		Convey("When a correct answer lands in the optimal band", func() {
			r := e.Process(record(present, true, 3000, t0), nil)

			Convey("Then the literal weights should cap confidence at 0.8", func() {
				So(r.Category, ShouldAlmostEqual, 0.8, 1e-9)
				So(r.Level, ShouldEqual, Confident)
				So(r.Trend, ShouldEqual, Neutral)
			})

			Convey("Then mood, category and item profiles should exist", func() {
				So(e.Len(), ShouldEqual, 3)
				_, ok := e.Profile("mood:indicative")
				So(ok, ShouldBeTrue)
				_, ok = e.Profile("category:indicative|present")
				So(ok, ShouldBeTrue)
				p, ok := e.Profile("item:comer|indicative|present|3s")
				So(ok, ShouldBeTrue)
				So(p.Attempts, ShouldEqual, 1)
				So(p.AvgResponseTimeMs, ShouldEqual, 3000)
			})

			Convey("Then the calibration should not move without a self-report", func() {
				So(r.Calibration.Samples, ShouldEqual, 0)
			})
		})

		Convey("When two categories have different confidence", func() {
			e.Process(record(present, true, 3000, t0), nil)
			e.Process(record(present, true, 3000, t0.Add(time.Minute)), nil)
			r := e.Process(record(past, false, 3000, t0.Add(2*time.Minute)), nil)

			Convey("Then overall should be attempt weighted", func() {
				So(r.Overall, ShouldAlmostEqual, (0.8*2+0.4)/3, 1e-9)
			})

			Convey("Then stale categories should be ignored at read time", func() {
				So(e.Overall(t0.Add(31*24*time.Hour)), ShouldEqual, 0.5)
				So(e.Len(), ShouldEqual, 5)
			})
		})

		Convey("When a category turns around", func() {
			var r Result
			for i := 0; i < 6; i++ {
				r = e.Process(record(present, i >= 3, 3000, t0.Add(time.Duration(i)*time.Minute)), nil)
			}

			Convey("Then the trend should be improving", func() {
				So(r.Trend, ShouldEqual, Improving)
				types := make([]string, 0, len(r.Recommendations))
				for _, rec := range r.Recommendations {
					types = append(types, rec.Type)
				}
				So(types, ShouldContain, "keep_momentum")
			})
		})

		Convey("When self-reports are supplied", func() {
			e.Process(record(present, true, 3000, t0), ptr(0.9))
			r := e.Process(record(present, false, 3000, t0.Add(time.Minute)), ptr(0.9))

			Convey("Then the calibration should follow the EMA", func() {
				So(r.Calibration.Samples, ShouldEqual, 2)
				So(r.Calibration.Score, ShouldAlmostEqual, 0.74, 1e-9)
				So(r.Calibration.Bias, ShouldAlmostEqual, 0.10, 1e-9)
			})
		})
	})
}

func TestConfidenceBounds(t *testing.T) {
	Convey("Given random attempts", t, func() {
		e := New()
		rng := rand.New(rand.NewSource(3))
		items := []model.Item{present, past}

		Convey("Then confidence should stay in [0, 1]", func() {
			for i := 0; i < 300; i++ {
				var self *float64
				if rng.Intn(2) == 0 {
					self = ptr(rng.Float64())
				}
				r := e.Process(record(items[rng.Intn(2)], rng.Intn(2) == 0, rng.Float64()*20000, t0.Add(time.Duration(i)*time.Second)), self)
				So(r.Overall, ShouldBeBetweenOrEqual, 0, 1)
				So(r.Category, ShouldBeBetweenOrEqual, 0, 0.8)
				So(r.Calibration.Score, ShouldBeBetweenOrEqual, 0, 1)
			}
		})
	})
}

func TestRecommend(t *testing.T) {
	Convey("Given recommendation inputs", t, func() {
		Convey("Struggling should ask for fundamentals at high priority", func() {
			r := Recommend(Struggling, Calibration{}, Stable)
			So(len(r), ShouldEqual, 1)
			So(r[0].Type, ShouldEqual, "review_fundamentals")
			So(r[0].Priority, ShouldEqual, PriorityHigh)
		})

		Convey("Poor calibration should add a low priority tracking hint", func() {
			r := Recommend(Confident, Calibration{Score: 0.5, Samples: 4}, Declining)
			So(len(r), ShouldEqual, 3)
			So(r[1].Type, ShouldEqual, "track_confidence")
			So(r[1].Priority, ShouldEqual, PriorityLow)
			So(r[2].Type, ShouldEqual, "take_break_or_review")
		})

		Convey("An unused calibration should be ignored", func() {
			r := Recommend(Uncertain, Calibration{}, Neutral)
			So(len(r), ShouldEqual, 1)
			So(r[0].Type, ShouldEqual, "mixed_practice")
		})
	})
}

func TestInsights(t *testing.T) {
	Convey("Given practice across two categories", t, func() {
		e := New()
		for i := 0; i < 3; i++ {
			at := t0.Add(time.Duration(i) * time.Minute)
			e.Process(record(present, true, 3000, at), ptr(1))
			e.Process(record(past, false, 9000, at), ptr(1))
		}
		insights := e.Insights(t0.Add(time.Hour))

		Convey("Then strongest, weakest and bias should be reported", func() {
			So(len(insights), ShouldEqual, 3)
			So(insights[0].Kind, ShouldEqual, "strongest_category")
			So(insights[0].Key, ShouldEqual, "category:indicative|present")
			So(insights[1].Kind, ShouldEqual, "weakest_category")
			So(insights[1].Key, ShouldEqual, "category:indicative|preterite")
			So(insights[2].Kind, ShouldEqual, "overconfident")
		})
	})
}

func TestExportImport(t *testing.T) {
	Convey("Given an engine with profiles", t, func() {
		e := New()
		e.Process(record(present, true, 2500, t0), ptr(0.8))
		e.Process(record(past, false, 7000, t0.Add(time.Minute)), nil)

		blob, err := e.Export()
		So(err, ShouldBeNil)

		Convey("When imported into a fresh engine", func() {
			other := New()
			So(other.Import(blob), ShouldBeNil)

			Convey("Then profiles and calibration should match", func() {
				So(other.Len(), ShouldEqual, e.Len())
				So(other.Calibration(), ShouldResemble, e.Calibration())
				So(other.Overall(t0.Add(time.Hour)), ShouldAlmostEqual, e.Overall(t0.Add(time.Hour)), 1e-12)
			})
		})

		Convey("When the blob is corrupt", func() {
			So(New().Import([]byte("{")), ShouldNotBeNil)
		})
	})
}
