package smbio

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/hirochachacha/go-smb2"
)

// SMBDialer dials real SMB servers through go-smb2.
type SMBDialer struct{}

func NewSMBDialer() *SMBDialer {
	return &SMBDialer{}
}

func (d *SMBDialer) Dial(ctx context.Context, cfg Config) (Session, error) {
	addr := cfg.Address
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "445")
	}

	conn, err := net.DialTimeout("tcp", addr, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.Username,
			Password: cfg.Password,
			Domain:   cfg.Domain,
		},
	}

	sess, err := dialer.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smb session setup: %w", err)
	}

	share, err := sess.Mount(cfg.Share)
	if err != nil {
		sess.Logoff()
		conn.Close()
		return nil, fmt.Errorf("mount share %q: %w", cfg.Share, err)
	}

	return &smbSession{conn: conn, sess: sess, share: share}, nil
}

type smbSession struct {
	conn  net.Conn
	sess  *smb2.Session
	share *smb2.Share
}

func (s *smbSession) Mkdir(path string) error {
	err := s.share.Mkdir(path, 0o755)
	if err != nil && strings.Contains(err.Error(), "file exists") {
		// The directory surviving a previous run is fine.
		return nil
	}
	return err
}

func (s *smbSession) Create(path string) (File, error) {
	f, err := s.share.Create(path)
	if err != nil {
		return nil, err
	}
	return &smbFile{f: f}, nil
}

func (s *smbSession) Open(path string) (File, error) {
	f, err := s.share.Open(path)
	if err != nil {
		return nil, err
	}
	return &smbFile{f: f}, nil
}

func (s *smbSession) Remove(path string) error {
	return s.share.Remove(path)
}

func (s *smbSession) Close() error {
	err := s.share.Umount()
	if lerr := s.sess.Logoff(); err == nil {
		err = lerr
	}
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

type smbFile struct {
	f *smb2.File
}

func (f *smbFile) ReadAt(p []byte, off int64) (int, error) {
	return f.f.ReadAt(p, off)
}

func (f *smbFile) WriteAt(p []byte, off int64) (int, error) {
	return f.f.WriteAt(p, off)
}

func (f *smbFile) Size() (int64, error) {
	fi, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (f *smbFile) Close() error {
	return f.f.Close()
}
