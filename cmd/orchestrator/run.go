package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	orchestrator "github.com/Swind/go-task-orchestrator"
	"github.com/Swind/go-task-orchestrator/aggregator"
	"github.com/Swind/go-task-orchestrator/balancer"
	"github.com/Swind/go-task-orchestrator/config"
	"github.com/Swind/go-task-orchestrator/core"
	"github.com/Swind/go-task-orchestrator/observability/logging"
	obs "github.com/Swind/go-task-orchestrator/observability/prometheus"
)

const demoServiceType = "compute"

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Submit demo tasks, balance them over backends and aggregate their results",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Worker count (overrides scheduler.workers)",
			},
			&cli.IntFlag{
				Name:  "tasks",
				Value: 40,
				Usage: "Number of demo tasks to submit",
			},
			&cli.IntFlag{
				Name:  "jobs",
				Value: 4,
				Usage: "Number of logical jobs the task results are grouped into",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (enables metrics)",
			},
			&cli.DurationFlag{
				Name:  "linger",
				Usage: "Keep serving metrics for this long after the demo finishes",
			},
		},
		Action: RunAction,
	}
}

func RunAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	if w := c.Int("workers"); w > 0 {
		cfg.Scheduler.Workers = w
	}
	if addr := c.String("metrics-addr"); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = addr
	}
	if c.Int("tasks") < 1 || c.Int("jobs") < 1 {
		return cli.Exit("tasks and jobs must be at least 1", 1)
	}

	logger, err := logging.SetupLogger(cfg.Log)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runPipeline(ctx, cfg, logger, c.Int("tasks"), c.Int("jobs"), c.Duration("linger"))
}

// backend identifies a registered instance. Weights live in the balancer so
// re-registering the same instance updates it in place.
type backend struct {
	Type string
	Name string
}

func runPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger, tasks, jobs int, linger time.Duration) error {
	coreLogger := core.NewZapLogger(logger)

	var metrics core.Metrics = &core.NilMetrics{}
	var poller *obs.SnapshotPoller
	reg := prom.NewRegistry()
	if cfg.Metrics.Enabled {
		exporter, err := obs.NewMetricsExporter(cfg.Metrics.Namespace, reg, obs.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		metrics = exporter
		if poller, err = obs.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval); err != nil {
			return fmt.Errorf("snapshot poller: %w", err)
		}
	}

	sched := orchestrator.NewScheduler(&core.TaskSchedulerConfig{
		Name:         cfg.AppName,
		Logger:       coreLogger.Named("scheduler"),
		Metrics:      metrics,
		PollInterval: cfg.Scheduler.PollInterval,
		HistorySize:  cfg.Scheduler.HistorySize,
	})
	lb := balancer.New[backend](
		balancer.WithLogger(coreLogger.Named("balancer")),
		balancer.WithMetrics(metrics),
	)
	agg := aggregator.New[float64](
		aggregator.WithLogger(coreLogger.Named("aggregator")),
		aggregator.WithMetrics(metrics),
	)

	scales, err := registerBackends(lb, cfg.Services)
	if err != nil {
		return err
	}
	serviceTypes := lb.Types()

	if poller != nil {
		poller.AddPool(cfg.AppName, sched)
		poller.AddBalancer("default", lb)
		poller.AddAggregator("default", agg)
		poller.Start(ctx)
		defer poller.Stop()

		server := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	if err := sched.Start(ctx, cfg.Scheduler.Workers); err != nil {
		return err
	}

	jobIDs := make([]string, jobs)
	for j := range jobs {
		jobIDs[j] = fmt.Sprintf("job-%d", j)
	}

	for i := range tasks {
		jobID := jobIDs[i%jobs]
		input := float64(i + 1)
		priority := core.TaskPriority(i % 3)
		serviceType := serviceTypes[i%len(serviceTypes)]
		_, err := sched.SubmitNamed(fmt.Sprintf("%s/part-%d", jobID, i), priority, func(ctx context.Context) error {
			b, err := lb.Select(serviceType)
			if err != nil {
				return err
			}
			time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)
			agg.AddResult(jobID, input*scales[b])
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := sched.StopGraceful(cfg.Scheduler.StopTimeout); err != nil {
		logger.Warn("scheduler did not drain", zap.Error(err), zap.Int("dropped", sched.ClearQueue()))
	}

	sums := aggregator.ParallelAggregate(ctx, agg, jobIDs, sumReducer, cfg.Aggregator.MaxWorkers)
	printSummary(sched.Stats(), lb.Stats(), sums)

	if poller != nil && linger > 0 {
		poller.CollectOnce()
		select {
		case <-time.After(linger):
		case <-ctx.Done():
		}
	}
	return nil
}

// registerBackends registers services with lb, falling back to two demo
// compute backends, and returns each backend's result scale. A later entry
// for the same type and instance overrides the earlier one.
func registerBackends(lb *balancer.LoadBalancer[backend], services []config.ServiceConfig) (map[backend]float64, error) {
	if len(services) == 0 {
		services = []config.ServiceConfig{
			{Type: demoServiceType, Instance: "small", Weight: 1},
			{Type: demoServiceType, Instance: "large", Weight: 3},
		}
	}
	scales := make(map[backend]float64, len(services))
	for _, s := range services {
		b := backend{Type: s.Type, Name: s.Instance}
		if err := lb.Register(s.Type, b, s.Weight); err != nil {
			return nil, fmt.Errorf("register %s/%s: %w", s.Type, s.Instance, err)
		}
		scales[b] = s.Weight
	}
	return scales, nil
}

func sumReducer(values []float64) (float64, error) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum, nil
}

func metricsMux(reg *prom.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func printSummary(pool core.PoolStats, lb core.BalancerStats, sums map[string]float64) {
	fmt.Printf("executed=%d failed=%d queued=%d\n", pool.Executed, pool.Failed, pool.Queued)
	fmt.Printf("selections=%d misses=%d\n", lb.Selections, lb.Misses)

	ids := make([]string, 0, len(sums))
	for id := range sums {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("%s: %.1f\n", id, sums[id])
	}
}
