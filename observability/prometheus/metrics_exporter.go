package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-task-orchestrator/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskFailureTotal    *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
	serviceSelection    *prom.CounterVec
	aggregationTotal    *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "orchestrator"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"scheduler", "priority"})
	failureVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failure_total",
		Help:      "Total number of failed task executions.",
	}, []string{"scheduler", "kind"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected tasks.",
	}, []string{"scheduler", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth.",
	}, []string{"scheduler"})
	selectionVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "service_selection_total",
		Help:      "Total number of backend selections by outcome.",
	}, []string{"service_type", "outcome"})
	aggregationVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "aggregation_total",
		Help:      "Total number of result aggregations by outcome.",
	}, []string{"outcome"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failureVec, err = registerCollector(reg, failureVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if selectionVec, err = registerCollector(reg, selectionVec); err != nil {
		return nil, err
	}
	if aggregationVec, err = registerCollector(reg, aggregationVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskFailureTotal:    failureVec,
		taskRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		serviceSelection:    selectionVec,
		aggregationTotal:    aggregationVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(schedulerName string, priority core.TaskPriority, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(schedulerName, "unknown"), priorityLabel(priority)).Observe(duration.Seconds())
}

// RecordTaskFailure records failed executions.
func (m *MetricsExporter) RecordTaskFailure(schedulerName string, kind string) {
	if m == nil {
		return
	}
	m.taskFailureTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(kind, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(schedulerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(schedulerName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordServiceSelection records backend selections. Every distinct
// serviceType becomes its own series, so service types should come from a
// small fixed set such as the configured services.
func (m *MetricsExporter) RecordServiceSelection(serviceType string, ok bool) {
	if m == nil {
		return
	}
	outcome := "selected"
	if !ok {
		outcome = "unavailable"
	}
	m.serviceSelection.WithLabelValues(normalizeLabel(serviceType, "unknown"), outcome).Inc()
}

// RecordAggregation records aggregation outcomes.
func (m *MetricsExporter) RecordAggregation(outcome string) {
	if m == nil {
		return
	}
	m.aggregationTotal.WithLabelValues(normalizeLabel(outcome, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// priorityLabel maps any priority onto a fixed set of bands so the label
// stays bounded.
func priorityLabel(priority core.TaskPriority) string {
	switch {
	case priority <= core.TaskPriorityCritical:
		return "critical"
	case priority < core.TaskPriorityDefault:
		return "high"
	case priority == core.TaskPriorityDefault:
		return "default"
	case priority < core.TaskPriorityBackground:
		return "low"
	default:
		return "background"
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
