package workload

import (
	"context"
	"errors"
	"testing"

	"smbtempest/internal/config"
	"smbtempest/internal/smbio"
)

func testConfig() config.RunConfig {
	cfg := config.Default()
	cfg.Server = "testserver"
	cfg.Share = "testshare"
	cfg.Sessions = 1
	cfg.BlockSize = 64 * 1024
	cfg.MaxFileSizeMiB = 1
	cfg.ChurnFiles = 25
	return cfg
}

func dial(t *testing.T, d *smbio.MemDialer, cfg config.RunConfig) smbio.Session {
	t.Helper()
	sess, err := d.Dial(context.Background(), cfg.SMB())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return sess
}

func TestDefaultSequenceRoundTrip(t *testing.T) {
	cfg := testConfig()
	d := smbio.NewMemDialer()
	sess := dial(t, d, cfg)

	res := New(cfg, sess, "unit-1", nil).Run(context.Background())

	if res.Status != StatusSucceeded {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	// Churn transfers are tracked as file counts, not bytes.
	want := uint64(cfg.MaxBytes())
	if res.BytesWritten != want {
		t.Errorf("bytes written = %d, want %d", res.BytesWritten, want)
	}
	if res.BytesRead != want {
		t.Errorf("read-back bytes = %d, want %d (round trip)", res.BytesRead, want)
	}
	if res.FilesCreated != uint64(cfg.ChurnFiles)+1 {
		t.Errorf("files created = %d, want %d", res.FilesCreated, cfg.ChurnFiles+1)
	}
	if res.FilesDeleted != uint64(cfg.ChurnFiles) {
		t.Errorf("files deleted = %d, want %d", res.FilesDeleted, cfg.ChurnFiles)
	}

	// Only the large session file survives churn.
	if got := d.Share.FileCount(); got != 1 {
		t.Errorf("files left on share = %d, want 1", got)
	}
	path := smbio.Join("unit-1", "tempest.dat")
	if size := d.Share.FileSize(path); size != cfg.MaxBytes() {
		t.Errorf("session file size = %d, want %d", size, cfg.MaxBytes())
	}
}

func TestDefaultSequenceStopsAtFailedPhase(t *testing.T) {
	cfg := testConfig()
	d := smbio.NewMemDialer()
	boom := errors.New("no space left")
	d.Share.FailOp = func(op smbio.Op, path string) error {
		if op == smbio.OpCreate && path == smbio.Join("unit-1", "10_churn.dat") {
			return boom
		}
		return nil
	}
	sess := dial(t, d, cfg)

	res := New(cfg, sess, "unit-1", nil).Run(context.Background())

	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
	if !errors.Is(res.Err, boom) {
		t.Errorf("err = %v, want wrapped %v", res.Err, boom)
	}
	// Partial progress is kept: both streaming phases plus ten churn files.
	if res.BytesRead != uint64(cfg.MaxBytes()) {
		t.Errorf("bytes read = %d, want %d", res.BytesRead, cfg.MaxBytes())
	}
	if res.FilesCreated != 11 {
		t.Errorf("files created = %d, want 11", res.FilesCreated)
	}
	if res.FilesDeleted != 0 {
		t.Errorf("files deleted = %d, want 0 (phase never reached)", res.FilesDeleted)
	}
}

func TestStreamingWrites(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = config.ModeStreamingWrites
	cfg.MaxFileSizeMiB = 2
	d := smbio.NewMemDialer()
	sess := dial(t, d, cfg)

	res := New(cfg, sess, "unit-w", nil).Run(context.Background())

	if res.Status != StatusSucceeded {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	if res.BytesWritten != uint64(cfg.MaxBytes()) {
		t.Errorf("bytes written = %d, want %d", res.BytesWritten, cfg.MaxBytes())
	}
	if res.BytesRead != 0 {
		t.Errorf("bytes read = %d, want 0", res.BytesRead)
	}
	wantOps := uint64(cfg.MaxBytes() / cfg.BlockSize)
	if res.Ops != wantOps {
		t.Errorf("ops = %d, want %d", res.Ops, wantOps)
	}
}

func TestStreamingReadsUntilEOF(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = config.ModeStreamingReads
	cfg.TargetFile = "shared.dat"
	d := smbio.NewMemDialer()
	// Not block-aligned: the tail read is short.
	size := int64(3*cfg.BlockSize + 100)
	d.Share.Seed(cfg.TargetFile, size)
	sess := dial(t, d, cfg)

	res := New(cfg, sess, "unit-r", nil).Run(context.Background())

	if res.Status != StatusSucceeded {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	if res.BytesRead != uint64(size) {
		t.Errorf("bytes read = %d, want %d", res.BytesRead, size)
	}
	if res.Ops != 4 {
		t.Errorf("ops = %d, want 4", res.Ops)
	}
}

func TestStreamingReadsMissingTarget(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = config.ModeStreamingReads
	cfg.TargetFile = "absent.dat"
	d := smbio.NewMemDialer()
	sess := dial(t, d, cfg)

	res := New(cfg, sess, "unit-r", nil).Run(context.Background())

	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
	if res.Err == nil {
		t.Fatal("expected error detail")
	}
}

func TestReadIOPSAlwaysOffsetZero(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = config.ModeReadIOPS
	cfg.TargetFile = "shared.dat"
	cfg.NumIOPSReads = 50
	d := smbio.NewMemDialer()
	d.Share.Seed(cfg.TargetFile, 8192)
	sess := dial(t, d, cfg)

	res := New(cfg, sess, "unit-i", nil).Run(context.Background())

	if res.Status != StatusSucceeded {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	if res.Ops != 50 {
		t.Errorf("ops = %d, want 50", res.Ops)
	}
	if res.BytesRead != 50*config.SmallOpSize {
		t.Errorf("bytes read = %d, want %d", res.BytesRead, 50*config.SmallOpSize)
	}
	for _, rec := range d.Share.Trace() {
		if rec.Op == smbio.OpRead && rec.Offset != 0 {
			t.Fatalf("read issued at offset %d; this mode never advances", rec.Offset)
		}
	}
}

func TestRandomIOBoundaryPercentages(t *testing.T) {
	for _, tc := range []struct {
		name string
		pct  int
	}{
		{"all reads", 100},
		{"all writes", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Mode = config.ModeRandomIO
			cfg.TargetFile = "shared.dat"
			cfg.RandomIOOps = 200
			cfg.ReadPercentage = tc.pct
			d := smbio.NewMemDialer()
			d.Share.Seed(cfg.TargetFile, 1<<20)
			sess := dial(t, d, cfg)

			res := New(cfg, sess, "unit-x", nil).Run(context.Background())

			if res.Status != StatusSucceeded {
				t.Fatalf("status = %v, err = %v", res.Status, res.Err)
			}
			if res.Ops != 200 {
				t.Errorf("ops = %d, want 200", res.Ops)
			}
			if tc.pct == 100 && res.BytesWritten != 0 {
				t.Errorf("read_percentage=100 issued %d written bytes", res.BytesWritten)
			}
			if tc.pct == 0 && res.BytesRead != 0 {
				t.Errorf("read_percentage=0 issued %d read bytes", res.BytesRead)
			}
		})
	}
}

func TestRandomIOOffsetsStayInBounds(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = config.ModeRandomIO
	cfg.TargetFile = "shared.dat"
	cfg.RandomIOOps = 500
	cfg.ReadPercentage = 50
	size := int64(256 * 1024)
	d := smbio.NewMemDialer()
	d.Share.Seed(cfg.TargetFile, size)
	sess := dial(t, d, cfg)

	res := New(cfg, sess, "unit-x", nil).Run(context.Background())
	if res.Status != StatusSucceeded {
		t.Fatalf("status = %v, err = %v", res.Status, res.Err)
	}
	for _, rec := range d.Share.Trace() {
		if rec.Op != smbio.OpRead && rec.Op != smbio.OpWrite {
			continue
		}
		if rec.Offset < 0 || rec.Offset > size-config.SmallOpSize {
			t.Fatalf("offset %d outside [0,%d]", rec.Offset, size-config.SmallOpSize)
		}
	}
	// The file never grows: every write fits inside the original bounds.
	if got := d.Share.FileSize(cfg.TargetFile); got != size {
		t.Errorf("target size = %d, want %d", got, size)
	}
}

func TestRandomIOTargetTooSmall(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = config.ModeRandomIO
	cfg.TargetFile = "tiny.dat"
	d := smbio.NewMemDialer()
	d.Share.Seed(cfg.TargetFile, 100)
	sess := dial(t, d, cfg)

	res := New(cfg, sess, "unit-x", nil).Run(context.Background())
	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", res.Status)
	}
}

func TestCancellationIsNotAFailure(t *testing.T) {
	cfg := testConfig()
	d := smbio.NewMemDialer()
	sess := dial(t, d, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := New(cfg, sess, "unit-c", nil).Run(ctx)

	if res.Status != StatusCancelled {
		t.Fatalf("status = %v, want cancelled", res.Status)
	}
	if res.Err != nil {
		t.Errorf("cancelled run carries error %v", res.Err)
	}
}

func TestChurnCancellationKeepsCounts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFileSizeMiB = 1
	cfg.ChurnFiles = 100
	d := smbio.NewMemDialer()
	sess := dial(t, d, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	var created int
	d.Share.FailOp = func(op smbio.Op, path string) error {
		if op == smbio.OpCreate && path != smbio.Join("unit-c", "tempest.dat") {
			created++
			if created == 40 {
				cancel()
			}
		}
		return nil
	}

	res := New(cfg, sess, "unit-c", nil).Run(ctx)

	if res.Status != StatusCancelled {
		t.Fatalf("status = %v, want cancelled", res.Status)
	}
	// Every create performed before the checkpoint fired is counted.
	if res.FilesCreated != 41 { // 40 churn files + the session file
		t.Errorf("files created = %d, want 41", res.FilesCreated)
	}
}
