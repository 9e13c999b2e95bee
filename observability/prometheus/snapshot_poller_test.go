package prometheus

import (
	"context"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Swind/go-task-orchestrator/core"
)

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

type balancerStub struct {
	mu    sync.Mutex
	stats core.BalancerStats
}

func (s *balancerStub) Stats() core.BalancerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *balancerStub) set(stats core.BalancerStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

type aggregatorStub struct {
	stats core.AggregatorStats
}

func (s aggregatorStub) Stats() core.AggregatorStats { return s.stats }

func TestSnapshotPoller_CollectsPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("orchestrator", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Queued:  4,
		Active:  2,
		Workers: 8,
		Running: true,
	}})
	poller.AddAggregator("agg", aggregatorStub{stats: core.AggregatorStats{Buckets: 3, Results: 9}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		queued := testutil.ToFloat64(poller.poolQueued.WithLabelValues("pool-a"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("pool-a"))
		return queued == 4 && active == 2
	})

	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolWorkers.WithLabelValues("pool-a")); got != 8 {
		t.Fatalf("pool workers gauge = %v, want 8", got)
	}
	if got := testutil.ToFloat64(poller.aggregatorResults.WithLabelValues("agg")); got != 9 {
		t.Fatalf("aggregator results gauge = %v, want 9", got)
	}
}

func TestSnapshotPoller_BalancerTypesFollowRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("orchestrator", reg, time.Hour)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	stub := &balancerStub{}
	stub.set(core.BalancerStats{
		Types:     2,
		Instances: 3,
		PerType: map[string]core.ServiceTypeStats{
			"db":    {Instances: 2, TotalWeight: 4},
			"cache": {Instances: 1, TotalWeight: 1},
		},
	})
	poller.AddBalancer("lb", stub)

	poller.CollectOnce()
	if got := testutil.ToFloat64(poller.balancerWeight.WithLabelValues("lb", "db")); got != 4 {
		t.Fatalf("db weight gauge = %v, want 4", got)
	}
	if got := testutil.CollectAndCount(poller.balancerInstances); got != 2 {
		t.Fatalf("instance series = %d, want 2", got)
	}

	// cache unregistered
	stub.set(core.BalancerStats{
		Types:     1,
		Instances: 2,
		PerType: map[string]core.ServiceTypeStats{
			"db": {Instances: 2, TotalWeight: 4},
		},
	})
	poller.CollectOnce()

	if got := testutil.CollectAndCount(poller.balancerInstances); got != 1 {
		t.Fatalf("instance series after unregister = %d, want 1", got)
	}
	if got := testutil.ToFloat64(poller.balancerTypes.WithLabelValues("lb")); got != 1 {
		t.Fatalf("types gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()

	var nilPoller *SnapshotPoller
	nilPoller.Start(ctx)
	nilPoller.Stop()
	nilPoller.AddPool("x", poolStub{})
}

func TestSnapshotPoller_SharedRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	if _, err := NewSnapshotPoller("orchestrator", reg, time.Second); err != nil {
		t.Fatalf("first NewSnapshotPoller failed: %v", err)
	}
	if _, err := NewSnapshotPoller("orchestrator", reg, time.Second); err != nil {
		t.Fatalf("second NewSnapshotPoller failed: %v", err)
	}
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
