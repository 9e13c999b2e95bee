package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-task-orchestrator/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current scheduler/pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// BalancerSnapshotProvider provides current load balancer stats snapshots.
type BalancerSnapshotProvider interface {
	Stats() core.BalancerStats
}

// AggregatorSnapshotProvider provides current result aggregator stats snapshots.
type AggregatorSnapshotProvider interface {
	Stats() core.AggregatorStats
}

// SnapshotPoller periodically exports Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	providersMu sync.RWMutex
	pools       map[string]PoolSnapshotProvider
	balancers   map[string]BalancerSnapshotProvider
	aggregators map[string]AggregatorSnapshotProvider

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	balancerTypes     *prom.GaugeVec
	balancerInstances *prom.GaugeVec
	balancerWeight    *prom.GaugeVec

	aggregatorBuckets *prom.GaugeVec
	aggregatorResults *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "orchestrator"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	p := &SnapshotPoller{
		interval:    interval,
		pools:       make(map[string]PoolSnapshotProvider),
		balancers:   make(map[string]BalancerSnapshotProvider),
		aggregators: make(map[string]AggregatorSnapshotProvider),

		poolQueued:  gauge("pool_queued", "Queued tasks per scheduler.", "pool"),
		poolActive:  gauge("pool_active", "Active tasks per scheduler.", "pool"),
		poolWorkers: gauge("pool_workers", "Worker count per scheduler.", "pool"),
		poolRunning: gauge("pool_running", "Scheduler running state (1=running, 0=stopped).", "pool"),

		balancerTypes:     gauge("balancer_service_types", "Registered service types per balancer.", "balancer"),
		balancerInstances: gauge("balancer_instances", "Registered instances per service type.", "balancer", "service_type"),
		balancerWeight:    gauge("balancer_total_weight", "Total weight per service type.", "balancer", "service_type"),

		aggregatorBuckets: gauge("aggregator_buckets", "Result buckets per aggregator.", "aggregator"),
		aggregatorResults: gauge("aggregator_results", "Stored results per aggregator.", "aggregator"),
	}

	for _, g := range []**prom.GaugeVec{
		&p.poolQueued, &p.poolActive, &p.poolWorkers, &p.poolRunning,
		&p.balancerTypes, &p.balancerInstances, &p.balancerWeight,
		&p.aggregatorBuckets, &p.aggregatorResults,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.providersMu.Lock()
	p.pools[name] = provider
	p.providersMu.Unlock()
}

// AddBalancer adds or replaces a balancer snapshot provider by name.
func (p *SnapshotPoller) AddBalancer(name string, provider BalancerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "balancer")
	p.providersMu.Lock()
	p.balancers[name] = provider
	p.providersMu.Unlock()
}

// AddAggregator adds or replaces an aggregator snapshot provider by name.
func (p *SnapshotPoller) AddAggregator(name string, provider AggregatorSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "aggregator")
	p.providersMu.Lock()
	p.aggregators[name] = provider
	p.providersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	done := p.done
	p.stateMu.Unlock()

	go p.loop(pollCtx, done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce reads every provider once and updates the gauges.
func (p *SnapshotPoller) CollectOnce() {
	p.providersMu.RLock()
	defer p.providersMu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}

	for name, provider := range p.balancers {
		stats := provider.Stats()
		p.balancerTypes.WithLabelValues(name).Set(float64(stats.Types))
		// Drop series of service types that were unregistered since the last poll.
		p.balancerInstances.DeletePartialMatch(prom.Labels{"balancer": name})
		p.balancerWeight.DeletePartialMatch(prom.Labels{"balancer": name})
		for serviceType, st := range stats.PerType {
			p.balancerInstances.WithLabelValues(name, serviceType).Set(float64(st.Instances))
			p.balancerWeight.WithLabelValues(name, serviceType).Set(st.TotalWeight)
		}
	}

	for name, provider := range p.aggregators {
		stats := provider.Stats()
		p.aggregatorBuckets.WithLabelValues(name).Set(float64(stats.Buckets))
		p.aggregatorResults.WithLabelValues(name).Set(float64(stats.Results))
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
