// Package workload drives one SMB session through a single I/O state
// machine: sequential streaming, fixed-size IOPS bursts, mixed random I/O,
// or the default write/read-back/churn sequence.
package workload

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"time"

	"smbtempest/internal/config"
	"smbtempest/internal/smbio"
)

// ErrCancelled marks a clean stop at a checkpoint. Cancelled sessions are
// not counted as failures.
var ErrCancelled = errors.New("workload cancelled")

// Engine runs exactly one workload against one established session.
type Engine struct {
	cfg  config.RunConfig
	sess smbio.Session
	id   string
	dir  string
	rng  *mrand.Rand
	log  *slog.Logger

	block   []byte
	madeDir bool
}

// New pairs a session handle with a workload. id names the session and its
// client-scoped directory on the share.
func New(cfg config.RunConfig, sess smbio.Session, id string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:  cfg,
		sess: sess,
		id:   id,
		dir:  id,
		rng:  mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64())),
		log:  log.With("session", id),
	}
}

// Run executes the configured mode to completion, failure or cancellation.
func (e *Engine) Run(ctx context.Context) Result {
	start := time.Now()
	res := Result{SessionID: e.id, Mode: e.cfg.Mode}

	var err error
	switch e.cfg.Mode {
	case config.ModeStreamingReads:
		err = e.streamingReads(ctx, &res)
	case config.ModeStreamingWrites:
		err = e.streamingWrites(ctx, &res)
	case config.ModeReadIOPS:
		err = e.readIOPS(ctx, &res)
	case config.ModeRandomIO:
		err = e.randomIO(ctx, &res)
	default:
		err = e.defaultSequence(ctx, &res)
	}

	res.Elapsed = time.Since(start)
	switch {
	case err == nil:
		res.Status = StatusSucceeded
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		res.Status = StatusCancelled
	default:
		res.Status = StatusFailed
		res.Kind = FailureIO
		res.Err = err
		e.log.Error("workload failed", "mode", e.cfg.Mode.String(), "err", err)
	}
	return res
}

// checkpoint is consulted between individual I/O calls, never mid-call.
func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}

// sessionFile is the per-session large file inside the client directory.
func (e *Engine) sessionFile() string {
	return smbio.Join(e.dir, "tempest.dat")
}

func (e *Engine) ensureDir() error {
	if e.madeDir {
		return nil
	}
	if err := e.sess.Mkdir(e.dir); err != nil {
		return fmt.Errorf("mkdir %s: %w", e.dir, err)
	}
	e.madeDir = true
	return nil
}

// writeBlock returns the reusable random payload block, sized to the
// configured block size.
func (e *Engine) writeBlock() []byte {
	if e.block == nil {
		e.block = make([]byte, e.cfg.BlockSize)
		crand.Read(e.block)
	}
	return e.block
}

func (e *Engine) streamingReads(ctx context.Context, res *Result) error {
	f, err := e.sess.Open(e.cfg.TargetFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.cfg.TargetFile, err)
	}
	defer f.Close()

	buf := make([]byte, e.cfg.BlockSize)
	var off int64
	for {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		n, rerr := f.ReadAt(buf, off)
		if n > 0 {
			res.Ops++
			res.BytesRead += uint64(n)
			off += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read at offset %d: %w", off, rerr)
		}
	}
}

func (e *Engine) streamingWrites(ctx context.Context, res *Result) error {
	if err := e.ensureDir(); err != nil {
		return err
	}
	path := e.sessionFile()
	f, err := e.sess.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	res.FilesCreated++

	return e.fillFile(ctx, f, res)
}

// fillFile writes random blocks sequentially until the size target.
func (e *Engine) fillFile(ctx context.Context, f smbio.File, res *Result) error {
	block := e.writeBlock()
	target := e.cfg.MaxBytes()
	var written int64
	for written < target {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		chunk := block
		if remaining := target - written; remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		n, werr := f.WriteAt(chunk, written)
		if n > 0 {
			res.Ops++
			res.BytesWritten += uint64(n)
			written += int64(n)
		}
		if werr != nil {
			return fmt.Errorf("write at offset %d: %w", written, werr)
		}
	}
	return nil
}

// readIOPS issues every read from offset zero. That is inherited behavior:
// the mode measures how many commands a session sustains, not data-path
// coverage, so the offset never advances.
func (e *Engine) readIOPS(ctx context.Context, res *Result) error {
	f, err := e.sess.Open(e.cfg.TargetFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.cfg.TargetFile, err)
	}
	defer f.Close()

	buf := make([]byte, config.SmallOpSize)
	for i := 0; i < e.cfg.NumIOPSReads; i++ {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		n, rerr := f.ReadAt(buf, 0)
		if n > 0 {
			res.Ops++
			res.BytesRead += uint64(n)
		}
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return fmt.Errorf("iops read %d: %w", i, rerr)
		}
	}
	return nil
}

func (e *Engine) randomIO(ctx context.Context, res *Result) error {
	f, err := e.sess.Open(e.cfg.TargetFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.cfg.TargetFile, err)
	}
	defer f.Close()

	size, err := f.Size()
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.cfg.TargetFile, err)
	}
	if size < config.SmallOpSize {
		return fmt.Errorf("target file %s is %d bytes, need at least %d", e.cfg.TargetFile, size, config.SmallOpSize)
	}

	buf := make([]byte, config.SmallOpSize)
	span := size - config.SmallOpSize + 1
	for i := 0; i < e.cfg.RandomIOOps; i++ {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		off := e.rng.Int64N(span)
		// Bernoulli draw per operation at the configured percentage.
		if e.rng.IntN(100) < e.cfg.ReadPercentage {
			n, rerr := f.ReadAt(buf, off)
			if n > 0 {
				res.Ops++
				res.BytesRead += uint64(n)
			}
			if rerr != nil && !errors.Is(rerr, io.EOF) {
				return fmt.Errorf("random read at %d: %w", off, rerr)
			}
		} else {
			n, werr := f.WriteAt(buf, off)
			if n > 0 {
				res.Ops++
				res.BytesWritten += uint64(n)
			}
			if werr != nil {
				return fmt.Errorf("random write at %d: %w", off, werr)
			}
		}
	}
	return nil
}

// defaultSequence runs the three-phase storm: stream a file out, stream it
// back, then churn many small files. A phase failure stops the session
// there; later phases never run.
func (e *Engine) defaultSequence(ctx context.Context, res *Result) error {
	if err := e.ensureDir(); err != nil {
		return err
	}
	path := e.sessionFile()

	f, err := e.sess.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	res.FilesCreated++
	if err := e.fillFile(ctx, f, res); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	e.log.Debug("write phase complete", "bytes", res.BytesWritten)

	if err := e.readBack(ctx, path, res); err != nil {
		return err
	}
	e.log.Debug("read-back phase complete", "bytes", res.BytesRead)

	return e.churn(ctx, res)
}

func (e *Engine) readBack(ctx context.Context, path string, res *Result) error {
	f, err := e.sess.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, e.cfg.BlockSize)
	var off int64
	for {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		n, rerr := f.ReadAt(buf, off)
		if n > 0 {
			res.Ops++
			res.BytesRead += uint64(n)
			off += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read at offset %d: %w", off, rerr)
		}
	}
}

// churn creates then deletes the configured number of small files inside
// the client directory. Creations and deletions already performed are
// counted even when the phase is cut short.
func (e *Engine) churn(ctx context.Context, res *Result) error {
	small := make([]byte, config.SmallOpSize)

	created := make([]string, 0, e.cfg.ChurnFiles)
	for i := 0; i < e.cfg.ChurnFiles; i++ {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		path := smbio.Join(e.dir, fmt.Sprintf("%d_churn.dat", i))
		f, err := e.sess.Create(path)
		if err != nil {
			return fmt.Errorf("churn create %s: %w", path, err)
		}
		if _, err := f.WriteAt(small, 0); err != nil {
			f.Close()
			return fmt.Errorf("churn write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("churn close %s: %w", path, err)
		}
		created = append(created, path)
		res.FilesCreated++
		res.Ops++
	}

	for _, path := range created {
		if err := checkpoint(ctx); err != nil {
			return err
		}
		if err := e.sess.Remove(path); err != nil {
			return fmt.Errorf("churn delete %s: %w", path, err)
		}
		res.FilesDeleted++
		res.Ops++
	}
	return nil
}
