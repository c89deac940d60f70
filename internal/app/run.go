package app

import (
	"context"
	"fmt"

	"github.com/vk/stencilgo/internal/ctxlog"
	"github.com/vk/stencilgo/internal/driver"
	"github.com/vk/stencilgo/internal/env"
	"github.com/vk/stencilgo/internal/socketenv"
)

// Run reports the work statistics of every stage and then evaluates the
// configured steps.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.healthCheckServer()
		defer a.closeHealthCheckServer()
	}

	e, closeEnv, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer closeEnv()

	for _, st := range a.kernel.Stages {
		if err := st.InitWorkStats(ctx, e, a.outW); err != nil {
			return fmt.Errorf("work stats: %w", err)
		}
	}

	if a.config.StatsOnly || a.config.Steps == 0 {
		a.logger.Info("Nothing to run.", "stats_only", a.config.StatsOnly, "steps", a.config.Steps)
		return nil
	}

	a.logger.Info("🚀 Starting run...", "kernel", a.kernel.Name, "rank", e.Rank(), "num_ranks", e.NumRanks())
	if err := driver.New(a.kernel).Run(ctx, a.config.FirstStep, a.config.Steps); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}
	a.logPerformance()
	a.logger.Info("🏁 Execution finished.")
	return nil
}

// connect joins the process group. One rank needs no coordinator.
func (a *App) connect(ctx context.Context) (env.Env, func(), error) {
	if a.config.NumRanks <= 1 {
		return env.Local{}, func() {}, nil
	}
	e, err := socketenv.Dial(ctx, socketenv.Config{
		URL:      a.config.RankURL,
		Rank:     a.config.Rank,
		NumRanks: a.config.NumRanks,
		Timeout:  a.config.RankTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("joining rank group: %w", err)
	}
	return e, func() {
		if err := e.Close(); err != nil {
			a.logger.Warn("Closing coordinator connection failed", "error", err)
		}
	}, nil
}

func (a *App) logPerformance() {
	for _, st := range a.kernel.Stages {
		ws := st.Stats()
		steps := st.StepsDone()
		secs := st.Elapsed().Seconds()
		attrs := []any{
			"stage", st.Name(),
			"steps", steps,
			"elapsed", st.Elapsed(),
		}
		if secs > 0 {
			attrs = append(attrs,
				"reads_per_sec", float64(ws.TotReadsPerStep*steps)/secs,
				"writes_per_sec", float64(ws.TotWritesPerStep*steps)/secs,
				"fp_ops_per_sec", float64(ws.TotFPOpsPerStep*steps)/secs,
			)
		}
		a.logger.Info("Stage performance.", attrs...)
	}
	if counts := a.tally.Snapshot(); len(counts) > 0 {
		a.logger.Info("Evaluator totals.", "counts", counts)
	}
}
