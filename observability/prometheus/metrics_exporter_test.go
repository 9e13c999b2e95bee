package prometheus

import (
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/Swind/go-task-orchestrator/core"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("orchestrator", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("pool-a", core.TaskPriorityCritical, 250*time.Millisecond)
	exporter.RecordTaskFailure("pool-a", "panic")
	exporter.RecordTaskFailure("pool-a", "error")
	exporter.RecordTaskFailure("pool-a", "error")
	exporter.RecordQueueDepth("pool-a", 7)
	exporter.RecordTaskRejected("pool-a", "stopped")

	if got := testutil.ToFloat64(exporter.taskFailureTotal.WithLabelValues("pool-a", "error")); got != 2 {
		t.Fatalf("error failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.taskFailureTotal.WithLabelValues("pool-a", "panic")); got != 1 {
		t.Fatalf("panic failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("pool-a")); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("pool-a", "stopped")); got != 1 {
		t.Fatalf("rejected total = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("pool-a", "critical"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_BalancerAndAggregator(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordServiceSelection("db", true)
	exporter.RecordServiceSelection("db", true)
	exporter.RecordServiceSelection("cache", false)
	exporter.RecordAggregation("ok")
	exporter.RecordAggregation("empty")

	expected := `
# HELP orchestrator_service_selection_total Total number of backend selections by outcome.
# TYPE orchestrator_service_selection_total counter
orchestrator_service_selection_total{outcome="selected",service_type="db"} 2
orchestrator_service_selection_total{outcome="unavailable",service_type="cache"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "orchestrator_service_selection_total"); err != nil {
		t.Fatalf("unexpected selection metrics: %v", err)
	}
	if got := testutil.ToFloat64(exporter.aggregationTotal.WithLabelValues("empty")); got != 1 {
		t.Fatalf("empty aggregations = %v, want 1", got)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("orchestrator", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("orchestrator", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskFailure("pool-a", "error")
	second.RecordTaskFailure("pool-a", "error")

	got := testutil.ToFloat64(first.taskFailureTotal.WithLabelValues("pool-a", "error"))
	if got != 2 {
		t.Fatalf("shared failure counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilSafe(t *testing.T) {
	var exporter *MetricsExporter
	exporter.RecordTaskDuration("x", 0, time.Second)
	exporter.RecordTaskFailure("x", "error")
	exporter.RecordQueueDepth("x", 1)
	exporter.RecordTaskRejected("x", "stopped")
	exporter.RecordServiceSelection("x", true)
	exporter.RecordAggregation("ok")
}

func TestPriorityLabel(t *testing.T) {
	cases := map[core.TaskPriority]string{
		core.TaskPriorityCritical:   "critical",
		core.TaskPriorityDefault:    "default",
		core.TaskPriorityBackground: "background",
		-50:                         "critical",
		-4:                          "high",
		3:                           "low",
		1 << 20:                     "background",
	}
	for p, want := range cases {
		if got := priorityLabel(p); got != want {
			t.Errorf("priorityLabel(%d) = %q, want %q", p, got, want)
		}
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
