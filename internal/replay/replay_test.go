package replay

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cadence/internal/adapters/http/api"
	service "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestReadRows(t *testing.T) {
	Convey("Given tabular rows with a header", t, func() {
		rows := [][]string{
			{"ID", " user_id ", "verb", "mood", "tense", "person", "correct", "response_time_ms", "hints_used", "timestamp", "confidence", "error_types"},
			{"a1", "u1", "hablar", "indicative", "present", "1s", "true", "2400", "0", "2026-03-02T10:00:00Z", "0.8", ""},
			{"a2", "u1", "comer", "indicative", "present", "3s", "no", "", "1", "", "", "accent;ending"},
			{},
			{"a3", "u1", "vivir", "indicative", "present", "1p", "maybe", "1000", "0", "", "", ""},
			{"a4", "", "ser", "indicative", "present", "1s", "yes", "", "", "", "", ""},
		}

		attempts, rowErrors, err := ReadRows(rows)
		So(err, ShouldBeNil)
		So(len(attempts), ShouldEqual, 2)
		So(len(rowErrors), ShouldEqual, 2)
		So(rowErrors[0], ShouldStartWith, "Row 5:")
		So(rowErrors[1], ShouldContainSubstring, "empty user_id")

		first := attempts[0]
		So(first.Correct, ShouldBeTrue)
		So(first.ResponseTimeMs, ShouldEqual, 2400.0)
		So(first.Timestamp.Equal(t0), ShouldBeTrue)
		So(*first.SelfReportedConfidence, ShouldEqual, 0.8)

		second := attempts[1]
		So(second.Correct, ShouldBeFalse)
		So(second.HintsUsed, ShouldEqual, 1)
		So(second.Timestamp.IsZero(), ShouldBeTrue)
		So(second.ErrorTypes, ShouldResemble, []string{"accent", "ending"})
	})

	Convey("Given rows without a required column", t, func() {
		_, _, err := ReadRows([][]string{{"user_id", "verb", "mood", "tense", "person"}})
		So(errors.Is(err, ErrMissingColumn), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "correct")
	})
}

func TestSortChronological(t *testing.T) {
	Convey("Attempts are ordered by time, ties keep log order", t, func() {
		attempts := []model.AttemptEvent{
			{ID: "late", Timestamp: t0.Add(time.Minute)},
			{ID: "tie-1", Timestamp: t0},
			{ID: "early", Timestamp: t0.Add(-time.Minute)},
			{ID: "tie-2", Timestamp: t0},
		}
		SortChronological(attempts)

		ids := make([]string, len(attempts))
		for i, a := range attempts {
			ids[i] = a.ID
		}
		So(ids, ShouldResemble, []string{"early", "tie-1", "tie-2", "late"})
	})
}

func TestFiles(t *testing.T) {
	Convey("Given a generated log", t, func() {
		dir := t.TempDir()
		attempts := Generate(7, 2, 5, t0)

		Convey("A spreadsheet round trip keeps every attempt", func() {
			path := filepath.Join(dir, "log.xlsx")
			So(WriteXLSX(path, "attempts", attempts), ShouldBeNil)

			got, rowErrors, err := Load(path, "attempts")
			So(err, ShouldBeNil)
			So(rowErrors, ShouldBeEmpty)
			So(len(got), ShouldEqual, len(attempts))
			for i := range got {
				So(got[i].ID, ShouldEqual, attempts[i].ID)
				So(got[i].Item, ShouldResemble, attempts[i].Item)
				So(got[i].Correct, ShouldEqual, attempts[i].Correct)
				So(got[i].Timestamp.Equal(attempts[i].Timestamp.Truncate(time.Second)), ShouldBeTrue)
			}

			_, _, err = Load(path, "")
			So(err, ShouldBeNil)
		})

		Convey("CSV and JSON logs load", func() {
			csvPath := filepath.Join(dir, "log.csv")
			csv := "user_id,verb,mood,tense,person,correct\nu1,ir,indicative,future,2s,1\n"
			So(os.WriteFile(csvPath, []byte(csv), 0o600), ShouldBeNil)
			got, _, err := Load(csvPath, "")
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
			So(got[0].Correct, ShouldBeTrue)

			got, err = ReadJSON(strings.NewReader(`[{"userId":"u1","correct":true,"item":{"verb":"ir"}}]`))
			So(err, ShouldBeNil)
			So(got[0].Item.Verb, ShouldEqual, "ir")

			_, _, err = Load(filepath.Join(dir, "log.txt"), "")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestGenerate(t *testing.T) {
	Convey("Generation depends only on the seed", t, func() {
		a := Generate(42, 4, 30, t0)
		b := Generate(42, 4, 30, t0)
		So(len(a), ShouldEqual, 120)
		for i := range a {
			So(a[i].UserID, ShouldEqual, b[i].UserID)
			So(a[i].Correct, ShouldEqual, b[i].Correct)
			So(a[i].ResponseTimeMs, ShouldEqual, b[i].ResponseTimeMs)
			So(a[i].Timestamp.Equal(b[i].Timestamp), ShouldBeTrue)
		}
		So(a[0].Timestamp.After(t0), ShouldBeTrue)
	})
}

func TestSessions(t *testing.T) {
	Convey("Given one learner's attempts over two sittings", t, func() {
		var attempts []model.AttemptEvent
		add := func(at time.Time, correct bool, rt float64) {
			attempts = append(attempts, model.AttemptEvent{
				ID: "a" + strconv.Itoa(len(attempts)), UserID: "u1",
				Correct: correct, ResponseTimeMs: rt, Timestamp: at,
			})
		}
		add(t0, true, 2000)
		add(t0.Add(time.Minute), false, 4000)
		add(t0.Add(2*time.Minute), false, 6000)
		add(t0.Add(3*time.Minute), true, 4000)
		add(t0.Add(2*time.Hour), true, 1000)
		add(t0.Add(2*time.Hour+30*time.Second), true, 3000)

		Convey("Idle time past the gap starts a new session", func() {
			groups := SplitSessions(attempts, 0)
			So(len(groups), ShouldEqual, 2)
			So(len(groups[0]), ShouldEqual, 4)
			So(len(groups[1]), ShouldEqual, 2)

			So(len(SplitSessions(attempts, 3*time.Hour)), ShouldEqual, 1)
			So(len(SplitSessions(attempts, 30*time.Second)), ShouldEqual, 5)
			So(SplitSessions(nil, 0), ShouldBeEmpty)
		})

		Convey("A summary covers the session's attempts", func() {
			sum, ok := SummarizeSession(SplitSessions(attempts, 0)[0])
			So(ok, ShouldBeTrue)
			So(sum.UserID, ShouldEqual, "u1")
			So(sum.Start.Equal(t0), ShouldBeTrue)
			So(sum.End.Equal(t0.Add(3*time.Minute)), ShouldBeTrue)
			So(sum.Attempts, ShouldEqual, 4)
			So(sum.Accuracy, ShouldEqual, 0.5)
			So(sum.AvgResponseTimeMs, ShouldEqual, 4000.0)
			So(sum.LongestErrorStreak, ShouldEqual, 2)
			So(sum.SessionType, ShouldEqual, model.SessionPractice)

			_, ok = SummarizeSession(nil)
			So(ok, ShouldBeFalse)
		})

		Convey("A replay submits one summary per session", func() {
			ctx := context.Background()
			svc := service.New(service.WithWorkerCount(1), service.WithLogger(logger.Discard()))
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			stats := &Stats{}
			snaps, err := Replay(ctx, NewServiceTarget(svc), attempts, 1, 0, false, stats)
			So(err, ShouldBeNil)
			So(stats.Processed, ShouldEqual, 6)
			So(stats.Sessions, ShouldEqual, 2)
			So(snaps["u1"].Temporal.Sessions, ShouldEqual, 2)
		})
	})
}

func TestReplay(t *testing.T) {
	Convey("Given a generated log", t, func() {
		ctx := context.Background()
		cfg := &Config{Users: 3, PerUser: 40, Seed: 3, GeneratedAt: t0, Workers: 2}

		Convey("An in-process replay processes every attempt", func() {
			stats, snaps, err := Run(ctx, cfg, service.WithWorkerCount(2), service.WithLogger(logger.Discard()))
			So(err, ShouldBeNil)
			So(stats.Loaded, ShouldEqual, 120)
			So(stats.Users, ShouldEqual, 3)
			So(stats.Processed, ShouldEqual, 120)
			So(stats.Failed, ShouldEqual, 0)
			So(stats.Sessions, ShouldEqual, 3)
			So(len(snaps), ShouldEqual, 3)
			for _, s := range snaps {
				So(s.Attempts, ShouldEqual, 40)
				So(s.Temporal.Sessions, ShouldEqual, 1)
				So(s.Scheduling.Cards, ShouldBeGreaterThan, 0)
			}
		})

		Convey("A replay against a server sees duplicates", func() {
			svc := service.New(service.WithWorkerCount(2), service.WithLogger(logger.Discard()))
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			srv := httptest.NewServer(api.NewServer(svc, svc).Handler())
			defer srv.Close()

			target := NewHTTPTarget(srv.URL, time.Second)
			So(target.CheckHealth(ctx), ShouldBeNil)

			stats := &Stats{}
			attempts, err := Attempts(cfg, stats)
			So(err, ShouldBeNil)
			attempts = append(attempts, attempts[0])

			snaps, err := Replay(ctx, target, attempts, 2, 0, false, stats)
			So(err, ShouldBeNil)
			So(stats.Duplicates, ShouldEqual, 1)
			So(stats.Processed, ShouldEqual, 120)
			So(snaps["learner-1"].Attempts, ShouldEqual, 40)
			So(stats.Sessions, ShouldEqual, 3)
			So(snaps["learner-1"].Temporal.Sessions, ShouldEqual, 1)

			out := filepath.Join(t.TempDir(), "out", "snaps.json")
			So(SaveSnapshots(out, snaps), ShouldBeNil)
			data, err := os.ReadFile(out)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"learner-2"`)
		})
	})
}
