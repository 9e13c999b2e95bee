// Package balancer provides weighted-random selection among backend instances
// registered under a service-type key.
//
// Instances are compared with ==, so handles must have stable identity
// (pointers, ids, addresses). Registering an instance that is already present
// updates its weight in place and keeps its position.
package balancer

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Swind/go-task-orchestrator/core"
)

// DefaultWeight is used by RegisterDefault.
const DefaultWeight = 1.0

// Instance is a registered backend and its weight.
type Instance[I comparable] struct {
	Handle I
	Weight float64
}

type serviceGroup[I comparable] struct {
	instances []Instance[I]
	index     map[I]int
	total     float64
}

func (g *serviceGroup[I]) recomputeTotal() {
	g.total = 0
	for _, in := range g.instances {
		g.total += in.Weight
	}
}

// LoadBalancer maps service types to weighted sets of instances.
// It is safe for concurrent use.
type LoadBalancer[I comparable] struct {
	mu       sync.RWMutex
	services map[string]*serviceGroup[I]

	randMu sync.Mutex
	rng    *rand.Rand

	selections atomic.Uint64
	misses     atomic.Uint64

	logger  core.Logger
	metrics core.Metrics
}

// Option configures a LoadBalancer.
type Option func(*options)

type options struct {
	logger  core.Logger
	metrics core.Metrics
	rng     *rand.Rand
}

// WithLogger sets the logger. Defaults to core.NoOpLogger.
func WithLogger(l core.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to core.NilMetrics.
func WithMetrics(m core.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRand sets the random source used by Select. Without it the
// goroutine-safe top-level math/rand/v2 generator is used.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// New creates an empty LoadBalancer.
func New[I comparable](opts ...Option) *LoadBalancer[I] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = core.NewNoOpLogger()
	}
	if o.metrics == nil {
		o.metrics = &core.NilMetrics{}
	}
	return &LoadBalancer[I]{
		services: make(map[string]*serviceGroup[I]),
		rng:      o.rng,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// Register adds instance under serviceType or updates its weight.
// weight must be positive and finite.
func (lb *LoadBalancer[I]) Register(serviceType string, instance I, weight float64) error {
	if serviceType == "" {
		return core.NewValidationError("serviceType", "must not be empty")
	}
	if !(weight > 0) || math.IsInf(weight, 0) {
		return core.NewValidationError("weight", fmt.Sprintf("must be positive and finite, got %v", weight))
	}

	lb.mu.Lock()
	g, ok := lb.services[serviceType]
	if !ok {
		g = &serviceGroup[I]{index: make(map[I]int)}
		lb.services[serviceType] = g
	}
	updated := false
	if i, ok := g.index[instance]; ok {
		g.instances[i].Weight = weight
		updated = true
	} else {
		g.index[instance] = len(g.instances)
		g.instances = append(g.instances, Instance[I]{Handle: instance, Weight: weight})
	}
	g.recomputeTotal()
	count := len(g.instances)
	lb.mu.Unlock()

	lb.logger.Info("service registered",
		core.F("service_type", serviceType),
		core.F("weight", weight),
		core.F("updated", updated),
		core.F("instances", count),
	)
	return nil
}

// RegisterDefault registers instance with DefaultWeight.
func (lb *LoadBalancer[I]) RegisterDefault(serviceType string, instance I) error {
	return lb.Register(serviceType, instance, DefaultWeight)
}

// Unregister removes instance from serviceType and reports whether it was present.
// A service type left without instances is removed.
func (lb *LoadBalancer[I]) Unregister(serviceType string, instance I) bool {
	lb.mu.Lock()
	g, ok := lb.services[serviceType]
	if !ok {
		lb.mu.Unlock()
		lb.logger.Debug("unregister of unknown service type", core.F("service_type", serviceType))
		return false
	}
	i, ok := g.index[instance]
	if !ok {
		lb.mu.Unlock()
		lb.logger.Debug("unregister of unknown instance", core.F("service_type", serviceType))
		return false
	}

	g.instances = append(g.instances[:i], g.instances[i+1:]...)
	delete(g.index, instance)
	for j := i; j < len(g.instances); j++ {
		g.index[g.instances[j].Handle] = j
	}
	g.recomputeTotal()
	remaining := len(g.instances)
	if remaining == 0 {
		delete(lb.services, serviceType)
	}
	lb.mu.Unlock()

	lb.logger.Info("service unregistered",
		core.F("service_type", serviceType),
		core.F("instances", remaining),
	)
	return true
}

// Select picks an instance of serviceType with probability proportional to its weight.
// It returns an error wrapping core.ErrNoServiceAvailable when the type is
// unknown or has no instances.
func (lb *LoadBalancer[I]) Select(serviceType string) (I, error) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	g, ok := lb.services[serviceType]
	if !ok || len(g.instances) == 0 {
		var zero I
		lb.misses.Add(1)
		lb.metrics.RecordServiceSelection(serviceType, false)
		lb.logger.Warn("no service available", core.F("service_type", serviceType))
		return zero, fmt.Errorf("select %q: %w", serviceType, core.ErrNoServiceAvailable)
	}

	r := lb.randFloat() * g.total
	picked := pickWeighted(g.instances, r)
	if picked < 0 {
		// Floating-point drift only: r < total always terminates the walk.
		picked = lb.randIntN(len(g.instances))
	}

	lb.selections.Add(1)
	lb.metrics.RecordServiceSelection(serviceType, true)
	lb.logger.Debug("service selected",
		core.F("service_type", serviceType),
		core.F("position", picked),
	)
	return g.instances[picked].Handle, nil
}

// pickWeighted returns the index of the first instance whose cumulative
// weight exceeds r, or -1 if none does.
func pickWeighted[I comparable](instances []Instance[I], r float64) int {
	var upto float64
	for i, in := range instances {
		upto += in.Weight
		if upto > r {
			return i
		}
	}
	return -1
}

func (lb *LoadBalancer[I]) randFloat() float64 {
	if lb.rng == nil {
		return rand.Float64()
	}
	lb.randMu.Lock()
	defer lb.randMu.Unlock()
	return lb.rng.Float64()
}

func (lb *LoadBalancer[I]) randIntN(n int) int {
	if lb.rng == nil {
		return rand.IntN(n)
	}
	lb.randMu.Lock()
	defer lb.randMu.Unlock()
	return lb.rng.IntN(n)
}

// Count returns the number of instances registered for serviceType.
func (lb *LoadBalancer[I]) Count(serviceType string) int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	if g, ok := lb.services[serviceType]; ok {
		return len(g.instances)
	}
	return 0
}

// Types returns the registered service types in sorted order.
func (lb *LoadBalancer[I]) Types() []string {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	out := make([]string, 0, len(lb.services))
	for t := range lb.services {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Instances returns a snapshot of serviceType's instances in registration order.
func (lb *LoadBalancer[I]) Instances(serviceType string) []Instance[I] {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	g, ok := lb.services[serviceType]
	if !ok {
		return nil
	}
	out := make([]Instance[I], len(g.instances))
	copy(out, g.instances)
	return out
}

// Stats returns current observability data for this balancer.
func (lb *LoadBalancer[I]) Stats() core.BalancerStats {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	stats := core.BalancerStats{
		Types:      len(lb.services),
		Selections: lb.selections.Load(),
		Misses:     lb.misses.Load(),
		PerType:    make(map[string]core.ServiceTypeStats, len(lb.services)),
	}
	for t, g := range lb.services {
		stats.Instances += len(g.instances)
		stats.PerType[t] = core.ServiceTypeStats{
			Instances:   len(g.instances),
			TotalWeight: g.total,
		}
	}
	return stats
}
