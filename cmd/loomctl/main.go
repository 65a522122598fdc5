package main

import (
	"fmt"
	"os"

	"github.com/loom-run/loom/config"
	"github.com/loom-run/loom/exec"
	"github.com/loom-run/loom/logging"
	"github.com/loom-run/loom/sched"
	"github.com/loom-run/loom/store"
)

// AppContext bundles the long-lived services cobra commands share,
// following the teacher's own AppContext-as-dependency-bag shape.
type AppContext struct {
	Logger     *logging.Logger
	Config     *config.Config
	Store      *store.Store
	Suspension store.SuspensionStore
	Scheduler  *sched.Scheduler
	Executor   *exec.Executor
	Runner     *exec.Runner
}

func newAppContext(cfg *config.Config) *AppContext {
	logCfg := logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	logger := logging.New(logCfg)

	scheduler := sched.New(sched.Config{
		MaxConcurrency:   cfg.DefaultConcurrency,
		MaxQueueSize:     cfg.SchedulerMaxQueueSize,
		AgingEvery:       cfg.SchedulerAgingEvery,
		BoostPerInterval: cfg.SchedulerBoostPerTick,
	})

	executor := exec.NewExecutor(logger.Zerolog(), scheduler)
	runner := exec.NewRunner(executor, ModuleRegistry{})

	var suspension store.SuspensionStore
	if cfg.SuspensionStoreEnabled {
		suspension = store.NewMemorySuspensionStore()
	}

	return &AppContext{
		Logger:     logger,
		Config:     cfg,
		Store:      store.New(),
		Suspension: suspension,
		Scheduler:  scheduler,
		Executor:   executor,
		Runner:     runner,
	}
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
