// Package smbio is the boundary between the load engine and the SMB client
// library. The engine only sees Dialer, Session and File; the wire protocol
// lives entirely behind the go-smb2 adapter.
package smbio

import (
	"context"
	"strings"
	"time"
)

// Config carries everything needed to establish one session against a share.
type Config struct {
	Address  string // host or host:port, port 445 assumed
	Share    string
	Username string
	Password string
	Domain   string
	Timeout  time.Duration
}

// Dialer opens an authenticated session with the share mounted.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Session, error)
}

// Session is one connection + tree connect. Paths are share-relative and
// backslash-separated. Close releases the tree, the session and the
// underlying connection.
type Session interface {
	Mkdir(path string) error
	Create(path string) (File, error)
	Open(path string) (File, error)
	Remove(path string) error
	Close() error
}

// File is an open handle supporting positional I/O. ReadAt returns io.EOF
// at or beyond end of file, possibly with a short count.
type File interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() (int64, error)
	Close() error
}

// Join builds a share-relative path the way SMB expects it.
func Join(elem ...string) string {
	return strings.Join(elem, `\`)
}
