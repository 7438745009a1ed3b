// Package execution runs a flattened execution graph with bounded
// parallelism, respecting dependency order, reusing cached results, and
// routing final artifacts as nodes complete.
package execution

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pipevine/pipevine/pkg/cache"
	"github.com/pipevine/pipevine/pkg/graph"
	"github.com/pipevine/pipevine/pkg/sink"
	"github.com/pipevine/pipevine/pkg/workflow"
)

// DefaultParallelism is the worker count used when RunConfig leaves
// Parallelism unset.
const DefaultParallelism = 2

// RunConfig configures one run of an execution graph.
type RunConfig struct {
	// Parallelism is the bounded worker count.
	Parallelism int
	// CacheDirectory holds the persistent hash store. Defaults to
	// WorkingDirectory/cache.
	CacheDirectory string
	// WorkingDirectory is partitioned into one private subdirectory per
	// execution-graph node.
	WorkingDirectory string
}

func (c RunConfig) withDefaults() (RunConfig, error) {
	if c.WorkingDirectory == "" {
		return c, fmt.Errorf("run config: working directory is required")
	}
	if c.Parallelism <= 0 {
		c.Parallelism = DefaultParallelism
	}
	if c.CacheDirectory == "" {
		c.CacheDirectory = filepath.Join(c.WorkingDirectory, "cache")
	}
	return c, nil
}

// Engine is the scheduler/executor for flattened graphs.
type Engine struct {
	logger *zap.Logger
	router *sink.Router
}

// NewEngine creates an engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// SetRouter attaches an output router. Outputs of nodes designated by the
// router's rules are copied out as the nodes succeed.
func (e *Engine) SetRouter(router *sink.Router) {
	e.router = router
}

// Run executes the graph and returns the complete per-node status report.
// The run itself is "complete" even when nodes fail: Run returns a nil error
// for partial success, and callers inspect Report.OK. A non-nil error means
// the run could not proceed at all (bad configuration, cache store failure)
// or was cancelled; on cancellation the report still covers every node, with
// never-attempted nodes left pending.
func (e *Engine) Run(ctx context.Context, g *graph.Graph, cfg RunConfig) (*Report, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	store, err := cache.Open(cfg.CacheDirectory)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	runID := workflow.NewRunID().String()
	report := newReport(runID)
	st := newRunState(g, report)

	e.logger.Info("starting run",
		zap.String("run_id", runID),
		zap.Int("nodes", g.Len()),
		zap.Int("parallelism", cfg.Parallelism))

	st.seedReady()

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Parallelism; i++ {
		group.Go(func() error {
			return e.worker(groupCtx, st, cfg, store)
		})
	}
	waitErr := group.Wait()

	st.finalize()
	report.Finished = time.Now()

	e.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("statuses", report.statusLine()))

	if waitErr != nil && ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// worker pulls ready nodes until the queue closes or the context is
// cancelled. Node execution blocks the worker but never the scheduler; other
// workers keep dispatching ready work.
func (e *Engine) worker(ctx context.Context, st *runState, cfg RunConfig, store *cache.Store) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-st.readyCh:
			if !ok {
				return nil
			}
			st.setRunning(n)
			e.logger.Debug("executing node", zap.String("node", n.ID))
			res := e.executeNode(ctx, n, st, cfg, store)
			if ctx.Err() != nil && res.Status != StatusSucceeded && res.Status != StatusCached {
				// Cancelled mid-flight: the node was never properly
				// attempted, leave it pending rather than failed.
				return ctx.Err()
			}
			st.complete(n, res)
			e.logger.Info("node finished",
				zap.String("node", n.ID),
				zap.String("status", string(res.Status)),
				zap.Duration("duration", res.Duration()))
		}
	}
}
