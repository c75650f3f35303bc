package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewManager(WithRegistry(prometheus.NewRegistry()))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "cadence")
				So(manager.SampleInterval(), ShouldEqual, defaultSampleInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("learning"),
				WithSubsystem("engine"),
				WithLatencyBuckets([]float64{0.1, 0.5, 1.0}),
				WithEnabled(true),
				WithSampleInterval(30*time.Second),
				WithNode("node-a"),
				WithRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager.subsystem, ShouldEqual, "engine")
				So(manager.latencyBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.SampleInterval(), ShouldEqual, 30*time.Second)
			})

			Convey("And every series should carry the names and node label", func() {
				manager.RecordAttemptProcessed(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					So(f.GetName(), ShouldStartWith, "learning_engine_")
					if f.GetName() == "learning_engine_attempts_processed_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "node")
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "node-a")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When passing invalid option values", func() {
			manager := NewManager(
				WithRegistry(prometheus.NewRegistry()),
				WithNamespace(""),
				WithSubsystem("not valid"),
				WithLatencyBuckets([]float64{5, 1}),
				WithSampleInterval(-time.Second),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "cadence")
				So(manager.subsystem, ShouldEqual, "scheduler")
				So(manager.latencyBuckets[0], ShouldEqual, 0.05)
				So(manager.SampleInterval(), ShouldEqual, defaultSampleInterval)
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given a configured global manager", t, func() {
		m := Configure(WithNamespace("cfgtest"), WithNode("n1"))
		Reset(func() { Configure() })

		So(Global(), ShouldPointTo, m)
		RecordAttemptDuplicate()
		RecordCheckpointSave("cards", "ok")

		Convey("Then the global functions record on the new registry", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := map[string]bool{}
			for _, f := range families {
				names[f.GetName()] = true
			}
			So(names["cfgtest_scheduler_attempts_duplicate_total"], ShouldBeTrue)
			So(names["cfgtest_scheduler_checkpoint_saves_total"], ShouldBeTrue)
		})

		Convey("Then a disabled manager records nothing", func() {
			off := Configure(WithEnabled(false))
			RecordAttemptDuplicate()
			So(testutil.ToFloat64(off.attemptsDuplicate), ShouldEqual, 0)
		})
	})
}

func TestEngineMetrics(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		manager := NewManager(WithRegistry(prometheus.NewRegistry()))

		Convey("When recording engine events", func() {
			manager.RecordAttemptProcessed(1.5)
			manager.RecordAttemptProcessed(2.5)
			manager.RecordSessionProcessed()
			manager.RecordFlowTransition("NEUTRAL", "DEEP_FLOW")
			manager.RecordMomentumTransition("STEADY_PROGRESS", "ACCELERATING")
			manager.RecordSchedulingDecision("fallback")
			manager.RecordSchedulingError("panic")
			manager.RecordObserverNotification()

			Convey("Then the counters should reflect them", func() {
				So(testutil.ToFloat64(manager.attemptsProcessed), ShouldEqual, 2)
				So(testutil.ToFloat64(manager.sessionsProcessed), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.flowTransitions.WithLabelValues("NEUTRAL", "DEEP_FLOW")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.momentumTransitions.WithLabelValues("STEADY_PROGRESS", "ACCELERATING")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.schedulingDecisions.WithLabelValues("fallback")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.schedulingErrors.WithLabelValues("panic")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.observerNotification), ShouldEqual, 1)
			})
		})

		Convey("When the manager is disabled", func() {
			disabled := NewManager(WithRegistry(prometheus.NewRegistry()), WithEnabled(false))
			disabled.RecordAttemptProcessed(1)
			disabled.RecordFlowTransition("a", "b")

			Convey("Then nothing should be recorded", func() {
				So(testutil.ToFloat64(disabled.attemptsProcessed), ShouldEqual, 0)
			})
		})
	})
}

func TestGlobalRecording(t *testing.T) {
	Convey("Given the global metrics functions", t, func() {
		Convey("When recording service metrics", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordAttemptDuplicate()
					UpdateActiveUsers(12)
					RecordCheckpointSave("momentum", "ok")
					RecordCheckpointLoad("flow", "miss")
					RecordCheckpointLatency("srs", "save", 3.2)
					UpdateQueueSize(10)
					UpdateQueueCapacity(1000)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					UpdateWorkerCount(4)
					RecordWorkerProcessingLatency(1.2)
					RecordWorkerError()
					RecordWorkerTimeout()
					RecordHTTPRequest("/attempts", "POST", "202")
					RecordHTTPRequestDuration("/attempts", "POST", "202", 4.0)
					RecordErrorByComponent("repository", "save_failed")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(42)
					RecordSystemGCPauseTime(0.4)
				}, ShouldNotPanic)
			})

			Convey("And the global manager should be exposed", func() {
				So(Global(), ShouldNotBeNil)
				So(GetRegistry(), ShouldNotBeNil)
			})
		})
	})
}
