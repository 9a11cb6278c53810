package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry and custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("arena"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then every collector should be registered on that registry", func() {
				So(manager, ShouldNotBeNil)
				manager.relayConnections.Set(1)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
				So(families[0].GetName(), ShouldStartWith, "test_arena_")
			})
		})
	})
}

func TestRelayMetrics(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When relay gauges are updated", func() {
			UpdateRelayConnections(3)
			UpdateRelaySessions(1)
			UpdateRelayDegraded(true)

			Convey("Then the gauges reflect the latest values", func() {
				So(testutil.ToFloat64(globalManager.relayConnections), ShouldEqual, 3.0)
				So(testutil.ToFloat64(globalManager.relaySessions), ShouldEqual, 1.0)
				So(testutil.ToFloat64(globalManager.relayDegraded), ShouldEqual, 1.0)
				UpdateRelayDegraded(false)
				So(testutil.ToFloat64(globalManager.relayDegraded), ShouldEqual, 0.0)
			})
		})

		Convey("When messages are relayed on a channel", func() {
			before := testutil.ToFloat64(globalManager.relayMessages.WithLabelValues("battles"))
			RecordRelayMessage("battles")
			RecordRelayMessage("battles")

			Convey("Then the per-channel counter grows", func() {
				So(testutil.ToFloat64(globalManager.relayMessages.WithLabelValues("battles")), ShouldEqual, before+2)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording helpers", t, func() {
		So(func() {
			RecordRelayDeliveryFailure()
			RecordRelayEviction()
			RecordRelaySubscriptionError()
			RecordRelayBroadcastLatency(1.5)
			RecordEventPublished("models")
			RecordEventPublishError("models")
			RecordBattleResolved("speed", "win")
			RecordBattleRejected("insufficient_data")
			RecordBenchmarkRecorded()
			RecordSubmissionDuplicate()
			UpdateQueueSize(10)
			UpdateQueueCapacity(100)
			RecordQueueEnqueueError("queue_full")
			RecordSeriesWrite()
			RecordSeriesWriteError()
			UpdateWorkerCount(4)
			RecordHTTPRequest("battles", "POST", "200")
			RecordHTTPRequestDuration("battles", "POST", "200", 12)
			UpdateSystemMemoryUsage(1 << 20)
			UpdateSystemGoroutineCount(12)
			UpdateSystemCPUPercent(42.5)
		}, ShouldNotPanic)

		So(GetRegistry(), ShouldNotBeNil)
	})
}
