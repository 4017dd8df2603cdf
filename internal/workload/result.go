package workload

import (
	"time"

	"smbtempest/internal/config"
)

// Status is the terminal state of one session's workload.
type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "succeeded"
	}
}

// FailureKind classifies what killed a session.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureConnect
	FailureIO
)

func (k FailureKind) String() string {
	switch k {
	case FailureConnect:
		return "connect"
	case FailureIO:
		return "io"
	default:
		return "none"
	}
}

// Result is produced exactly once per session and consumed exactly once by
// the aggregator. Partial progress accumulated before a failure is kept so
// run totals stay meaningful.
type Result struct {
	SessionID string
	Mode      config.Mode

	Ops          uint64
	BytesRead    uint64
	BytesWritten uint64
	FilesCreated uint64
	FilesDeleted uint64

	Elapsed time.Duration
	Status  Status
	Kind    FailureKind
	Err     error
}

// Bytes is the total payload moved in either direction.
func (r Result) Bytes() uint64 {
	return r.BytesRead + r.BytesWritten
}

// ThroughputMBps is this session's data rate over its own elapsed time.
func (r Result) ThroughputMBps() float64 {
	secs := r.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.Bytes()) / (1 << 20) / secs
}

// IOPS is this session's operation rate over its own elapsed time.
func (r Result) IOPS() float64 {
	secs := r.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.Ops) / secs
}
