// Package orchestrator launches N concurrent session units, streams their
// results into the aggregator as they finish, and applies the fail-fast
// policy across the whole run.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"smbtempest/internal/config"
	"smbtempest/internal/metrics"
	"smbtempest/internal/smbio"
	"smbtempest/internal/workload"
)

// RunOutcome is the final derived view of a run, computed once from the
// frozen aggregate. It serializes for machine consumption.
type RunOutcome struct {
	Mode      string    `json:"mode"`
	Sessions  int       `json:"sessions"`
	StartedAt time.Time `json:"started_at"`

	Succeeded    uint64 `json:"succeeded"`
	Failed       uint64 `json:"failed"`
	Cancelled    uint64 `json:"cancelled"`
	NeverStarted uint64 `json:"never_started"`

	TotalBytes   uint64 `json:"total_bytes"`
	BytesRead    uint64 `json:"bytes_read"`
	BytesWritten uint64 `json:"bytes_written"`
	TotalOps     uint64 `json:"total_ops"`
	FilesCreated uint64 `json:"files_created"`
	FilesDeleted uint64 `json:"files_deleted"`

	ElapsedSeconds    float64 `json:"elapsed_seconds"`
	ThroughputMBps    float64 `json:"throughput_mbps"`
	MaxThroughputMBps float64 `json:"max_throughput_mbps"`
	MaxIOPS           float64 `json:"max_iops"`
	P50SessionMs      int64   `json:"p50_session_ms"`
	P99SessionMs      int64   `json:"p99_session_ms"`

	FailedSessions []metrics.SessionError `json:"failed_sessions,omitempty"`
	ExitCode       int                    `json:"exit_code"`
}

// Orchestrator owns the run: the config, the dialer and the aggregator.
type Orchestrator struct {
	cfg    config.RunConfig
	dialer smbio.Dialer
	agg    *metrics.Aggregator
	log    *slog.Logger

	units []*SessionUnit
}

func New(cfg config.RunConfig, dialer smbio.Dialer, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		dialer: dialer,
		agg:    metrics.NewAggregator(),
		log:    log,
	}
}

// Aggregator exposes the live snapshot source for progress reporting.
func (o *Orchestrator) Aggregator() *metrics.Aggregator {
	return o.agg
}

// Units exposes the per-session states, for reporting.
func (o *Orchestrator) Units() []*SessionUnit {
	return o.units
}

// Run executes the whole load test. The passed context carries external
// interrupts; under fail-fast the first session failure cancels it for the
// rest of the run.
func (o *Orchestrator) Run(ctx context.Context) RunOutcome {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.units = make([]*SessionUnit, o.cfg.Sessions)
	for i := range o.units {
		o.units[i] = newUnit()
	}

	var (
		wg           sync.WaitGroup
		neverStarted atomic.Uint64
		tripped      atomic.Bool
	)
	results := make(chan workload.Result, o.cfg.Sessions)

	for i, u := range o.units {
		if runCtx.Err() != nil {
			// Cancellation preempted this unit before launch.
			u.setState(UnitNeverStarted)
			neverStarted.Add(1)
			continue
		}
		wg.Add(1)
		go func(idx int, u *SessionUnit) {
			defer wg.Done()
			o.runUnit(runCtx, idx, u, results, &neverStarted)
		}(i, u)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Streaming aggregation: every result folds on arrival, and the first
	// failure trips the shared cancellation exactly once under fail-fast.
	for res := range results {
		if err := o.agg.Fold(res); err != nil {
			o.log.Error("dropped result", "session", res.SessionID, "err", err)
		}
		if res.Status == workload.StatusFailed && o.cfg.FailFast && tripped.CompareAndSwap(false, true) {
			o.log.Warn("fail-fast tripped, cancelling remaining sessions", "session", res.SessionID)
			cancel()
		}
	}

	snap := o.agg.Freeze()
	return o.outcome(start, snap, neverStarted.Load())
}

// runUnit drives one session from dial to result. Units that observe
// cancellation before establishing their connection report never-started
// rather than cancelled.
func (o *Orchestrator) runUnit(ctx context.Context, idx int, u *SessionUnit, results chan<- workload.Result, neverStarted *atomic.Uint64) {
	if ctx.Err() != nil {
		u.setState(UnitNeverStarted)
		neverStarted.Add(1)
		return
	}
	u.setState(UnitRunning)
	o.log.Info("session starting", "n", idx, "session", u.ID)

	sess, err := o.dialer.Dial(ctx, o.cfg.SMB())
	if err != nil {
		res := workload.Result{
			SessionID: u.ID,
			Mode:      o.cfg.Mode,
			Status:    workload.StatusFailed,
			Kind:      workload.FailureConnect,
			Err:       fmt.Errorf("connect: %w", err),
		}
		if ctx.Err() != nil {
			res.Status = workload.StatusCancelled
			res.Kind = workload.FailureNone
			res.Err = nil
		}
		u.setState(stateFor(res.Status))
		results <- res
		return
	}

	eng := workload.New(o.cfg, sess, u.ID, o.log)
	res := eng.Run(ctx)
	if cerr := sess.Close(); cerr != nil {
		o.log.Warn("session close", "session", u.ID, "err", cerr)
	}

	u.setState(stateFor(res.Status))
	o.log.Info("session finished", "session", u.ID,
		"status", res.Status.String(), "bytes", res.Bytes(), "ops", res.Ops)
	results <- res
}

func stateFor(s workload.Status) UnitState {
	switch s {
	case workload.StatusFailed:
		return UnitFailed
	case workload.StatusCancelled:
		return UnitCancelled
	default:
		return UnitSucceeded
	}
}

func (o *Orchestrator) outcome(start time.Time, snap metrics.Snapshot, neverStarted uint64) RunOutcome {
	elapsed := time.Since(start).Seconds()

	throughput := 0.0
	if elapsed > 0 {
		throughput = float64(snap.TotalBytes) / (1 << 20) / elapsed
	}

	out := RunOutcome{
		Mode:              o.cfg.Mode.String(),
		Sessions:          o.cfg.Sessions,
		StartedAt:         start,
		Succeeded:         snap.Succeeded,
		Failed:            snap.Failed,
		Cancelled:         snap.Cancelled,
		NeverStarted:      neverStarted,
		TotalBytes:        snap.TotalBytes,
		BytesRead:         snap.BytesRead,
		BytesWritten:      snap.BytesWritten,
		TotalOps:          snap.Ops,
		FilesCreated:      snap.FilesCreated,
		FilesDeleted:      snap.FilesDeleted,
		ElapsedSeconds:    elapsed,
		ThroughputMBps:    throughput,
		MaxThroughputMBps: snap.MaxThroughputMBps,
		MaxIOPS:           snap.MaxIOPS,
		P50SessionMs:      snap.P50SessionMs,
		P99SessionMs:      snap.P99SessionMs,
		FailedSessions:    snap.Errors,
	}
	out.ExitCode = o.exitCode(out)
	return out
}

// exitCode is zero only when every session succeeded, or, without
// fail-fast, when failures stay within the configured threshold.
// Cancelled and never-started units are not failures.
func (o *Orchestrator) exitCode(out RunOutcome) int {
	if out.Failed == 0 {
		return 0
	}
	if !o.cfg.FailFast && out.Failed <= uint64(o.cfg.MaxFailures) {
		return 0
	}
	return 1
}
