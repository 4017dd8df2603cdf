package smbio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Op names an operation crossing the Session boundary. Used by the in-memory
// share's failure hook and trace.
type Op string

const (
	OpConnect Op = "connect"
	OpMkdir   Op = "mkdir"
	OpCreate  Op = "create"
	OpOpen    Op = "open"
	OpRead    Op = "read"
	OpWrite   Op = "write"
	OpRemove  Op = "remove"
)

// OpRecord is one traced operation.
type OpRecord struct {
	Op     Op
	Path   string
	Offset int64
	Length int
}

// MemShare is an in-memory stand-in for a real SMB share, used by tests and
// by the built-in selftest target. All sessions dialed from the same
// MemDialer see the same files, like clients of one server.
type MemShare struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
	trace []OpRecord

	// FailOp, when set, is consulted before every operation. Returning a
	// non-nil error makes that operation fail.
	FailOp func(op Op, path string) error
}

func NewMemShare() *MemShare {
	return &MemShare{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

// Seed places a file of the given size on the share, for modes that expect
// an existing target.
func (s *MemShare) Seed(path string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = make([]byte, size)
}

// FileCount returns the number of files currently on the share.
func (s *MemShare) FileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// FileSize returns the size of a file, or -1 if absent.
func (s *MemShare) FileSize(path string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[path]
	if !ok {
		return -1
	}
	return int64(len(b))
}

// Trace returns a copy of every operation seen so far.
func (s *MemShare) Trace() []OpRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OpRecord, len(s.trace))
	copy(out, s.trace)
	return out
}

func (s *MemShare) record(op Op, path string, off int64, n int) {
	s.trace = append(s.trace, OpRecord{Op: op, Path: path, Offset: off, Length: n})
}

// check runs the failure hook outside the share lock so hooks may block
// without stalling sibling sessions.
func (s *MemShare) check(op Op, path string) error {
	s.mu.Lock()
	hook := s.FailOp
	s.mu.Unlock()
	if hook != nil {
		return hook(op, path)
	}
	return nil
}

// MemDialer hands out sessions backed by one shared MemShare.
type MemDialer struct {
	Share *MemShare

	mu      sync.Mutex
	dialed  int
	DialErr func(attempt int) error // attempt is 1-based
}

func NewMemDialer() *MemDialer {
	return &MemDialer{Share: NewMemShare()}
}

func (d *MemDialer) Dial(ctx context.Context, cfg Config) (Session, error) {
	d.mu.Lock()
	d.dialed++
	attempt := d.dialed
	hook := d.DialErr
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(attempt); err != nil {
			return nil, err
		}
	}
	if err := d.Share.check(OpConnect, cfg.Share); err != nil {
		return nil, err
	}
	d.Share.mu.Lock()
	d.Share.record(OpConnect, cfg.Share, 0, 0)
	d.Share.mu.Unlock()
	return &memSession{share: d.Share}, nil
}

// Dialed reports how many Dial calls have been made.
func (d *MemDialer) Dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialed
}

type memSession struct {
	share  *MemShare
	closed bool
	mu     sync.Mutex
}

var errSessionClosed = errors.New("session closed")

func (s *memSession) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	return nil
}

func (s *memSession) Mkdir(path string) error {
	if err := s.live(); err != nil {
		return err
	}
	sh := s.share
	if err := sh.check(OpMkdir, path); err != nil {
		return err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.record(OpMkdir, path, 0, 0)
	sh.dirs[path] = true
	return nil
}

func (s *memSession) Create(path string) (File, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	sh := s.share
	if err := sh.check(OpCreate, path); err != nil {
		return nil, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.record(OpCreate, path, 0, 0)
	sh.files[path] = nil
	return &memFile{share: sh, path: path}, nil
}

func (s *memSession) Open(path string) (File, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	sh := s.share
	if err := sh.check(OpOpen, path); err != nil {
		return nil, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.files[path]; !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	sh.record(OpOpen, path, 0, 0)
	return &memFile{share: sh, path: path}, nil
}

func (s *memSession) Remove(path string) error {
	if err := s.live(); err != nil {
		return err
	}
	sh := s.share
	if err := sh.check(OpRemove, path); err != nil {
		return err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.files[path]; !ok {
		return fmt.Errorf("remove %s: %w", path, os.ErrNotExist)
	}
	sh.record(OpRemove, path, 0, 0)
	delete(sh.files, path)
	return nil
}

func (s *memSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memFile struct {
	share *MemShare
	path  string
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	sh := f.share
	if err := sh.check(OpRead, f.path); err != nil {
		return 0, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	data, ok := sh.files[f.path]
	if !ok {
		return 0, fmt.Errorf("read %s: %w", f.path, os.ErrNotExist)
	}
	if off >= int64(len(data)) {
		sh.record(OpRead, f.path, off, 0)
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	sh.record(OpRead, f.path, off, n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	sh := f.share
	if err := sh.check(OpWrite, f.path); err != nil {
		return 0, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	data, ok := sh.files[f.path]
	if !ok {
		return 0, fmt.Errorf("write %s: %w", f.path, os.ErrNotExist)
	}
	end := off + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[off:end], p)
	sh.files[f.path] = data
	sh.record(OpWrite, f.path, off, len(p))
	return len(p), nil
}

func (f *memFile) Size() (int64, error) {
	sh := f.share
	sh.mu.Lock()
	defer sh.mu.Unlock()
	data, ok := sh.files[f.path]
	if !ok {
		return 0, fmt.Errorf("stat %s: %w", f.path, os.ErrNotExist)
	}
	return int64(len(data)), nil
}

func (f *memFile) Close() error { return nil }

// Dir lists files under a directory prefix, for test assertions.
func (s *MemShare) Dir(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}
