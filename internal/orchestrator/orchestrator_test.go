package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"smbtempest/internal/config"
	"smbtempest/internal/smbio"
)

func testConfig(sessions int) config.RunConfig {
	cfg := config.Default()
	cfg.Server = "testserver"
	cfg.Share = "testshare"
	cfg.Sessions = sessions
	cfg.BlockSize = 64 * 1024
	cfg.MaxFileSizeMiB = 1
	cfg.ChurnFiles = 5
	return cfg
}

func TestRunAggregatesAcrossSessions(t *testing.T) {
	const n = 8
	cfg := testConfig(n)
	d := smbio.NewMemDialer()

	out := New(cfg, d, nil).Run(context.Background())

	if out.ExitCode != 0 {
		t.Fatalf("exit code = %d, failures: %+v", out.ExitCode, out.FailedSessions)
	}
	if out.Succeeded != n {
		t.Fatalf("succeeded = %d, want %d", out.Succeeded, n)
	}
	// Aggregate totals are the exact sum regardless of completion order.
	perSession := uint64(cfg.MaxBytes()) * 2 // written then read back
	if out.TotalBytes != n*perSession {
		t.Errorf("total bytes = %d, want %d", out.TotalBytes, n*perSession)
	}
	if out.FilesCreated != n*uint64(cfg.ChurnFiles+1) {
		t.Errorf("files created = %d, want %d", out.FilesCreated, n*uint64(cfg.ChurnFiles+1))
	}
	if out.FilesDeleted != n*uint64(cfg.ChurnFiles) {
		t.Errorf("files deleted = %d, want %d", out.FilesDeleted, n*uint64(cfg.ChurnFiles))
	}
	if d.Dialed() != n {
		t.Errorf("dialed = %d, want %d", d.Dialed(), n)
	}
}

func TestSessionsNeverShareDirectories(t *testing.T) {
	const n = 4
	cfg := testConfig(n)
	cfg.ChurnFiles = 0
	d := smbio.NewMemDialer()

	orch := New(cfg, d, nil)
	out := orch.Run(context.Background())
	if out.Succeeded != n {
		t.Fatalf("succeeded = %d, want %d", out.Succeeded, n)
	}

	seen := map[string]bool{}
	for _, u := range orch.Units() {
		if seen[u.ID] {
			t.Fatalf("duplicate unit id %s", u.ID)
		}
		seen[u.ID] = true
		path := smbio.Join(u.ID, "tempest.dat")
		if size := d.Share.FileSize(path); size != cfg.MaxBytes() {
			t.Errorf("unit %s file size = %d, want %d", u.ID, size, cfg.MaxBytes())
		}
	}
}

func TestOneFailureDoesNotAffectSiblings(t *testing.T) {
	const n = 10
	cfg := testConfig(n)
	d := smbio.NewMemDialer()
	boom := errors.New("access denied")
	d.DialErr = func(attempt int) error {
		if attempt == 5 {
			return boom
		}
		return nil
	}

	out := New(cfg, d, nil).Run(context.Background())

	if out.Failed != 1 {
		t.Fatalf("failed = %d, want 1", out.Failed)
	}
	if out.Succeeded != n-1 {
		t.Fatalf("succeeded = %d, want %d", out.Succeeded, n-1)
	}
	// The survivors each report their full byte counts.
	perSession := uint64(cfg.MaxBytes()) * 2
	if out.TotalBytes != (n-1)*perSession {
		t.Errorf("total bytes = %d, want %d", out.TotalBytes, (n-1)*perSession)
	}
	if out.ExitCode == 0 {
		t.Error("exit code should be non-zero with a failed session")
	}
	if len(out.FailedSessions) != 1 {
		t.Fatalf("failed sessions = %d, want 1", len(out.FailedSessions))
	}
	if out.FailedSessions[0].Kind != "connect" {
		t.Errorf("kind = %s, want connect", out.FailedSessions[0].Kind)
	}
}

func TestMaxFailuresThreshold(t *testing.T) {
	const n = 6
	cfg := testConfig(n)
	cfg.MaxFailures = 1
	d := smbio.NewMemDialer()
	d.DialErr = func(attempt int) error {
		if attempt == 2 {
			return errors.New("induced")
		}
		return nil
	}

	out := New(cfg, d, nil).Run(context.Background())

	if out.Failed != 1 {
		t.Fatalf("failed = %d, want 1", out.Failed)
	}
	if out.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0 within threshold", out.ExitCode)
	}
}

func TestFailFastStopsTheRun(t *testing.T) {
	const n = 30
	cfg := testConfig(n)
	cfg.FailFast = true
	d := smbio.NewMemDialer()

	// One session fails its dial immediately; every other session is held
	// at the connect long enough for the cancellation to trip first.
	var first atomic.Bool
	d.Share.FailOp = func(op smbio.Op, path string) error {
		if op != smbio.OpConnect {
			return nil
		}
		if first.CompareAndSwap(false, true) {
			return errors.New("induced connect failure")
		}
		time.Sleep(250 * time.Millisecond)
		return nil
	}

	out := New(cfg, d, nil).Run(context.Background())

	if out.Failed != 1 {
		t.Fatalf("failed = %d, want exactly 1", out.Failed)
	}
	if out.Succeeded != 0 {
		t.Errorf("succeeded = %d, want 0 after fail-fast", out.Succeeded)
	}
	if out.Cancelled+out.NeverStarted != n-1 {
		t.Errorf("cancelled %d + never-started %d != %d", out.Cancelled, out.NeverStarted, n-1)
	}
	if out.ExitCode == 0 {
		t.Error("fail-fast run must exit non-zero")
	}
}

func TestExternalInterruptCancelsCleanly(t *testing.T) {
	const n = 5
	cfg := testConfig(n)
	cfg.ChurnFiles = 100000 // long enough to outlive the cancel below
	d := smbio.NewMemDialer()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	out := New(cfg, d, nil).Run(ctx)

	if out.Failed != 0 {
		t.Errorf("failed = %d, interrupts are not failures", out.Failed)
	}
	if out.Succeeded+out.Cancelled+out.NeverStarted != n {
		t.Errorf("unit accounting does not add up: %+v", out)
	}
	if out.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0 with zero failures", out.ExitCode)
	}
}

func TestUnitStatesSettle(t *testing.T) {
	const n = 3
	cfg := testConfig(n)
	cfg.ChurnFiles = 0
	d := smbio.NewMemDialer()

	orch := New(cfg, d, nil)
	orch.Run(context.Background())

	for _, u := range orch.Units() {
		if s := u.State(); s != UnitSucceeded {
			t.Errorf("unit %s state = %s, want succeeded", u.ID, s)
		}
	}
}
