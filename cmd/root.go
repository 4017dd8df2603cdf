package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"smbtempest/internal/cli"
	"smbtempest/internal/config"
	"smbtempest/internal/history"
	"smbtempest/internal/smbio"
)

var (
	cfgFile string
	live    bool
)

var rootCmd = &cobra.Command{
	Use:   "smbtempest",
	Short: "Unleash the storm on your SMB server",
	Long: `
smbtempest opens many concurrent SMB sessions against a share and drives
each through an I/O workload: streaming reads or writes, fixed-size IOPS
bursts, mixed random I/O, or the default write/read-back/churn sequence.
It aggregates per-session counters into one summary and reports totals,
per-session maxima and failures.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromViper(viper.GetViper())
		if err != nil {
			return err
		}
		os.Exit(cli.Run(cfg, smbio.NewSMBDialer(), live))
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(selftestCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "JSON config file (flags win over file values)")

	f := rootCmd.Flags()
	f.String("server", "", "SMB server address (host or host:port)")
	f.String("share", "", "Share name")
	f.String("username", "", "Username")
	f.String("password", "", "Password")
	f.String("domain", "", "NTLM domain")
	f.Int("sessions", 1, "Number of concurrent sessions")
	f.Int64("block-size", config.DefaultBlockSize, "Streaming block size in bytes")
	f.Int64("max-file-size", config.DefaultMaxFileMiB, "Per-session file size in MiB")
	f.String("mode", "default", "Workload mode: default|streaming_reads|streaming_writes|read_iops|random_io")
	f.Int("num-iops-reads", config.DefaultIOPSReads, "Read count for read_iops mode")
	f.Int("random-io-ops", config.DefaultRandomIOOps, "Operation count for random_io mode")
	f.Int("read-percentage", config.DefaultReadPct, "Read weight for random_io mode [0,100]")
	f.Int("churn-files", config.DefaultChurnFiles, "Small files created and deleted per session in default mode")
	f.String("target-file", "", "Existing file for streaming_reads/read_iops/random_io modes")
	f.Bool("fail-fast", false, "Abort the whole run on the first session failure")
	f.Int("max-failures", 0, "Failures tolerated for a zero exit without fail-fast")
	f.Duration("connect-timeout", config.Default().ConnectTimeout, "TCP connect timeout")
	f.Bool("debug", false, "Debug-level logging")
	f.String("listen", "", "Serve live stats on this address (HTTP + WebSocket)")
	f.String("out", "", "Output filename prefix for the JSON summary")

	rootCmd.Flags().BoolVar(&live, "live", false, "Show the live progress view")

	for flag, key := range map[string]string{
		"server":          "server",
		"share":           "share",
		"username":        "username",
		"password":        "password",
		"domain":          "domain",
		"sessions":        "sessions",
		"block-size":      "block_size",
		"max-file-size":   "max_file_size",
		"mode":            "mode",
		"num-iops-reads":  "num_iops_reads",
		"random-io-ops":   "random_io_ops",
		"read-percentage": "read_percentage",
		"churn-files":     "churn_files",
		"target-file":     "target_file",
		"fail-fast":       "fail_fast",
		"max-failures":    "max_failures",
		"connect-timeout": "connect_timeout",
		"debug":           "debug",
		"listen":          "listen",
		"out":             "out",
	} {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("json")
	}
	viper.SetEnvPrefix("SMBTEMPEST")
	viper.AutomaticEnv()
	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "config file: %v\n", err)
			os.Exit(1)
		}
	}
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open("")
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			rec, err := store.Get(args[0])
			if err != nil {
				return err
			}
			return printRecordJSON(rec)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := store.List(limit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("no runs recorded yet")
			return nil
		}
		for _, rec := range recs {
			fmt.Printf("%-42s %s mode=%-16s sessions=%-5d ok=%-5d failed=%-5d %.2f MB/s\n",
				rec.ID,
				rec.Timestamp.Format("2006-01-02 15:04:05"),
				rec.Outcome.Mode,
				rec.Outcome.Sessions,
				rec.Outcome.Succeeded,
				rec.Outcome.Failed,
				rec.Outcome.ThroughputMBps)
		}
		return nil
	},
}

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the engine against an in-memory share",
	Long: `
selftest drives a small default-mode run against an in-memory share
instead of a real server. Useful for checking the binary and the
reporting pipeline without SMB credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		cfg.Server = "selftest"
		cfg.Share = "mem"
		cfg.Sessions, _ = cmd.Flags().GetInt("sessions")
		cfg.MaxFileSizeMiB = 4
		cfg.ChurnFiles = 50
		if err := cfg.Validate(); err != nil {
			return err
		}
		os.Exit(cli.Run(cfg, smbio.NewMemDialer(), live))
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum runs to list")
	selftestCmd.Flags().Int("sessions", 8, "Number of concurrent sessions")
}

func printRecordJSON(rec *history.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
