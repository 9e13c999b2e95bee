package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Swind/go-task-orchestrator/balancer"
	"github.com/Swind/go-task-orchestrator/config"
)

func TestRegisterBackends_DefaultsWhenEmpty(t *testing.T) {
	lb := balancer.New[backend]()
	scales, err := registerBackends(lb, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, lb.Count(demoServiceType))
	assert.Equal(t, 3.0, scales[backend{Type: demoServiceType, Name: "large"}])
}

func TestRegisterBackends_FromConfig(t *testing.T) {
	lb := balancer.New[backend]()
	_, err := registerBackends(lb, []config.ServiceConfig{
		{Type: "compute", Instance: "a", Weight: 2},
		{Type: "storage", Instance: "b", Weight: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"compute", "storage"}, lb.Types())

	_, err = registerBackends(lb, []config.ServiceConfig{{Type: "compute", Instance: "bad", Weight: -1}})
	assert.Error(t, err)
}

func TestRegisterBackends_SameInstanceUpserts(t *testing.T) {
	lb := balancer.New[backend]()
	scales, err := registerBackends(lb, []config.ServiceConfig{
		{Type: "compute", Instance: "a", Weight: 1},
		{Type: "compute", Instance: "a", Weight: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, lb.Count("compute"))
	assert.Equal(t, 4.0, scales[backend{Type: "compute", Name: "a"}])
}

func TestRunPipeline_NonDefaultServiceType(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Workers = 2
	cfg.Scheduler.PollInterval = 10 * time.Millisecond
	cfg.Scheduler.StopTimeout = 5 * time.Second
	cfg.Services = []config.ServiceConfig{{Type: "storage", Instance: "s1", Weight: 1}}

	require.NoError(t, runPipeline(context.Background(), cfg, zap.NewNop(), 6, 2, 0))
}

func TestSumReducer(t *testing.T) {
	got, err := sumReducer([]float64{1, 2.5, 3})
	require.NoError(t, err)
	assert.Equal(t, 6.5, got)
}

func TestRunPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Workers = 2
	cfg.Scheduler.PollInterval = 10 * time.Millisecond
	cfg.Scheduler.StopTimeout = 5 * time.Second

	err := runPipeline(context.Background(), cfg, zap.NewNop(), 12, 3, 0)
	assert.NoError(t, err)
}

func TestRunPipeline_WithMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Workers = 2
	cfg.Scheduler.StopTimeout = 5 * time.Second
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.Metrics.PollInterval = 10 * time.Millisecond

	err := runPipeline(context.Background(), cfg, zap.NewNop(), 6, 2, 20*time.Millisecond)
	assert.NoError(t, err)
}

func TestConfigAction_PrintsEffectiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_name: demo\n"), 0o644))

	var out bytes.Buffer
	app := &cli.App{
		Writer:   &out,
		Flags:    []cli.Flag{&cli.StringFlag{Name: "config"}},
		Commands: []*cli.Command{ConfigCommand()},
	}
	require.NoError(t, app.Run([]string{"orchestrator", "--config", path, "config"}))
	assert.Contains(t, out.String(), "app_name: demo\n")
	assert.Contains(t, out.String(), "poll_interval: 1s\n")
}
