// Package metrics folds per-session results into one consistent aggregate.
// Every fold is serialized under a single mutex so totals are the exact sum
// of all folded results regardless of completion order.
package metrics

import (
	"errors"
	"sync"
	"time"

	"smbtempest/internal/workload"
)

// ErrFrozen is returned when a result arrives after Freeze.
var ErrFrozen = errors.New("aggregate metrics frozen")

// SessionError names a failed session in the final summary.
type SessionError struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
}

// Aggregator is the only write-shared structure of a run. Sessions never
// hold a reference to it; the orchestrator feeds it completed results.
type Aggregator struct {
	mu     sync.Mutex
	frozen bool
	start  time.Time
	end    time.Time

	folded    uint64
	succeeded uint64
	failed    uint64
	cancelled uint64

	bytesRead    uint64
	bytesWritten uint64
	ops          uint64
	filesCreated uint64
	filesDeleted uint64

	// Running maxima over per-session derived rates. Total-based figures
	// would mask peak single-session performance.
	maxThroughputMBps float64
	maxIOPS           float64

	sessionTimes *SafeHistogram
	failures     []SessionError
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		start:        time.Now(),
		sessionTimes: NewSafeHistogram(),
	}
}

// Fold adds one result atomically. Results from cancelled sessions count
// toward totals but not toward failures.
func (a *Aggregator) Fold(r workload.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		return ErrFrozen
	}

	a.folded++
	switch r.Status {
	case workload.StatusSucceeded:
		a.succeeded++
	case workload.StatusCancelled:
		a.cancelled++
	case workload.StatusFailed:
		a.failed++
		detail := ""
		if r.Err != nil {
			detail = r.Err.Error()
		}
		a.failures = append(a.failures, SessionError{
			SessionID: r.SessionID,
			Kind:      r.Kind.String(),
			Detail:    detail,
		})
	}

	a.bytesRead += r.BytesRead
	a.bytesWritten += r.BytesWritten
	a.ops += r.Ops
	a.filesCreated += r.FilesCreated
	a.filesDeleted += r.FilesDeleted

	if t := r.ThroughputMBps(); t > a.maxThroughputMBps {
		a.maxThroughputMBps = t
	}
	if i := r.IOPS(); i > a.maxIOPS {
		a.maxIOPS = i
	}

	a.sessionTimes.RecordValue(r.Elapsed.Milliseconds())
	return nil
}

// Snapshot is a consistent read-only view, usable at any time for live
// progress reporting.
type Snapshot struct {
	Folded    uint64 `json:"folded"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`

	BytesRead    uint64 `json:"bytes_read"`
	BytesWritten uint64 `json:"bytes_written"`
	TotalBytes   uint64 `json:"total_bytes"`
	Ops          uint64 `json:"ops"`
	FilesCreated uint64 `json:"files_created"`
	FilesDeleted uint64 `json:"files_deleted"`

	MaxThroughputMBps float64 `json:"max_throughput_mbps"`
	MaxIOPS           float64 `json:"max_iops"`

	P50SessionMs int64 `json:"p50_session_ms"`
	P99SessionMs int64 `json:"p99_session_ms"`
	MaxSessionMs int64 `json:"max_session_ms"`

	Elapsed time.Duration  `json:"elapsed_ns"`
	Frozen  bool           `json:"frozen"`
	Errors  []SessionError `json:"errors,omitempty"`
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Snapshot {
	errs := make([]SessionError, len(a.failures))
	copy(errs, a.failures)

	elapsed := time.Since(a.start)
	if !a.end.IsZero() {
		elapsed = a.end.Sub(a.start)
	}

	return Snapshot{
		Folded:            a.folded,
		Succeeded:         a.succeeded,
		Failed:            a.failed,
		Cancelled:         a.cancelled,
		BytesRead:         a.bytesRead,
		BytesWritten:      a.bytesWritten,
		TotalBytes:        a.bytesRead + a.bytesWritten,
		Ops:               a.ops,
		FilesCreated:      a.filesCreated,
		FilesDeleted:      a.filesDeleted,
		MaxThroughputMBps: a.maxThroughputMBps,
		MaxIOPS:           a.maxIOPS,
		P50SessionMs:      a.sessionTimes.ValueAtQuantile(50),
		P99SessionMs:      a.sessionTimes.ValueAtQuantile(99),
		MaxSessionMs:      a.sessionTimes.Max(),
		Elapsed:           elapsed,
		Frozen:            a.frozen,
		Errors:            errs,
	}
}

// Freeze marks the aggregate read-only and returns the final snapshot.
// Called once by the orchestrator after the last expected result arrives.
func (a *Aggregator) Freeze() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.frozen {
		a.frozen = true
		a.end = time.Now()
	}
	return a.snapshotLocked()
}
