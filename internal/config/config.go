// Package config holds the resolved parameters of one load run.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"smbtempest/internal/smbio"
)

// Mode selects which workload state machine every session runs. Exactly one
// mode is active per run.
type Mode int

const (
	ModeDefault Mode = iota
	ModeStreamingReads
	ModeStreamingWrites
	ModeReadIOPS
	ModeRandomIO
)

func (m Mode) String() string {
	switch m {
	case ModeStreamingReads:
		return "streaming_reads"
	case ModeStreamingWrites:
		return "streaming_writes"
	case ModeReadIOPS:
		return "read_iops"
	case ModeRandomIO:
		return "random_io"
	default:
		return "default"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode accepts both underscore and hyphen spellings.
func ParseMode(s string) (Mode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "default":
		return ModeDefault, nil
	case "streaming_reads":
		return ModeStreamingReads, nil
	case "streaming_writes":
		return ModeStreamingWrites, nil
	case "read_iops":
		return ModeReadIOPS, nil
	case "random_io":
		return ModeRandomIO, nil
	default:
		return ModeDefault, fmt.Errorf("unknown mode %q", s)
	}
}

const (
	DefaultBlockSize   = 1 << 20 // 1 MiB
	DefaultMaxFileMiB  = 1024
	DefaultIOPSReads   = 1024
	DefaultRandomIOOps = 1024
	DefaultReadPct     = 70
	DefaultChurnFiles  = 1000

	// SmallOpSize is the fixed size of read_iops, random_io and churn
	// operations.
	SmallOpSize = 4096
)

// RunConfig is immutable once the run starts.
type RunConfig struct {
	Server   string `json:"server"`
	Share    string `json:"share"`
	Username string `json:"username"`
	Password string `json:"-"`
	Domain   string `json:"domain,omitempty"`

	Sessions       int   `json:"sessions"`
	BlockSize      int64 `json:"block_size"`
	MaxFileSizeMiB int64 `json:"max_file_size"`

	Mode           Mode   `json:"mode"`
	NumIOPSReads   int    `json:"num_iops_reads"`
	RandomIOOps    int    `json:"random_io_ops"`
	ReadPercentage int    `json:"read_percentage"`
	ChurnFiles     int    `json:"churn_files"`
	TargetFile     string `json:"target_file,omitempty"`

	FailFast    bool `json:"fail_fast"`
	MaxFailures int  `json:"max_failures"`

	ConnectTimeout time.Duration `json:"connect_timeout"`
	Debug          bool          `json:"debug"`

	// Reporting surfaces; not part of the workload itself.
	Listen    string `json:"listen,omitempty"`
	OutPrefix string `json:"out_prefix,omitempty"`
}

// Default returns a RunConfig with every tunable at its default.
func Default() RunConfig {
	return RunConfig{
		Sessions:       1,
		BlockSize:      DefaultBlockSize,
		MaxFileSizeMiB: DefaultMaxFileMiB,
		Mode:           ModeDefault,
		NumIOPSReads:   DefaultIOPSReads,
		RandomIOOps:    DefaultRandomIOOps,
		ReadPercentage: DefaultReadPct,
		ChurnFiles:     DefaultChurnFiles,
		ConnectTimeout: 30 * time.Second,
	}
}

// FromViper resolves a RunConfig from bound flags and an optional JSON
// config file. Flag values win over file values, both win over defaults.
func FromViper(v *viper.Viper) (RunConfig, error) {
	cfg := Default()

	cfg.Server = v.GetString("server")
	cfg.Share = v.GetString("share")
	cfg.Username = v.GetString("username")
	cfg.Password = v.GetString("password")
	cfg.Domain = v.GetString("domain")

	if v.IsSet("sessions") {
		cfg.Sessions = v.GetInt("sessions")
	}
	if v.IsSet("block_size") {
		cfg.BlockSize = v.GetInt64("block_size")
	}
	if v.IsSet("max_file_size") {
		cfg.MaxFileSizeMiB = v.GetInt64("max_file_size")
	}
	mode, err := ParseMode(v.GetString("mode"))
	if err != nil {
		return cfg, err
	}
	cfg.Mode = mode
	if v.IsSet("num_iops_reads") {
		cfg.NumIOPSReads = v.GetInt("num_iops_reads")
	}
	if v.IsSet("random_io_ops") {
		cfg.RandomIOOps = v.GetInt("random_io_ops")
	}
	if v.IsSet("read_percentage") {
		cfg.ReadPercentage = v.GetInt("read_percentage")
	}
	if v.IsSet("churn_files") {
		cfg.ChurnFiles = v.GetInt("churn_files")
	}
	cfg.TargetFile = v.GetString("target_file")
	cfg.FailFast = v.GetBool("fail_fast")
	cfg.MaxFailures = v.GetInt("max_failures")
	if v.IsSet("connect_timeout") {
		cfg.ConnectTimeout = v.GetDuration("connect_timeout")
	}
	cfg.Debug = v.GetBool("debug")
	cfg.Listen = v.GetString("listen")
	cfg.OutPrefix = v.GetString("out")

	return cfg, cfg.Validate()
}

// Validate rejects configs the engine cannot run.
func (c *RunConfig) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Share == "" {
		return fmt.Errorf("share name is required")
	}
	if c.Sessions < 1 {
		return fmt.Errorf("sessions must be at least 1, got %d", c.Sessions)
	}
	if c.BlockSize < 1 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	if c.ReadPercentage < 0 || c.ReadPercentage > 100 {
		return fmt.Errorf("read_percentage must be in [0,100], got %d", c.ReadPercentage)
	}
	if c.NumIOPSReads < 1 {
		return fmt.Errorf("num_iops_reads must be positive, got %d", c.NumIOPSReads)
	}
	if c.RandomIOOps < 1 {
		return fmt.Errorf("random_io_ops must be positive, got %d", c.RandomIOOps)
	}
	if c.ChurnFiles < 0 {
		return fmt.Errorf("churn_files must be non-negative, got %d", c.ChurnFiles)
	}
	if c.MaxFailures < 0 {
		return fmt.Errorf("max_failures must be non-negative, got %d", c.MaxFailures)
	}
	switch c.Mode {
	case ModeStreamingWrites, ModeDefault:
		if c.MaxFileSizeMiB < 1 {
			return fmt.Errorf("max_file_size must be at least 1 MiB, got %d", c.MaxFileSizeMiB)
		}
	case ModeStreamingReads, ModeReadIOPS, ModeRandomIO:
		if c.TargetFile == "" {
			return fmt.Errorf("mode %s reads an existing file: target_file is required", c.Mode)
		}
	}
	return nil
}

// MaxBytes converts the MiB-denominated file size target to bytes.
func (c *RunConfig) MaxBytes() int64 {
	return c.MaxFileSizeMiB << 20
}

// SMB returns the dial parameters for one session.
func (c *RunConfig) SMB() smbio.Config {
	return smbio.Config{
		Address:  c.Server,
		Share:    c.Share,
		Username: c.Username,
		Password: c.Password,
		Domain:   c.Domain,
		Timeout:  c.ConnectTimeout,
	}
}

// Redacted returns a copy safe to persist or display.
func (c RunConfig) Redacted() RunConfig {
	if c.Password != "" {
		c.Password = "********"
	}
	return c
}
