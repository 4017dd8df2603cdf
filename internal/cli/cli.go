// Package cli wires a resolved config into a full run: logging, the
// orchestrator, the optional live surfaces, and the final report.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"smbtempest/internal/api"
	"smbtempest/internal/banner"
	"smbtempest/internal/config"
	"smbtempest/internal/history"
	"smbtempest/internal/logger"
	"smbtempest/internal/orchestrator"
	"smbtempest/internal/report"
	"smbtempest/internal/smbio"
	"smbtempest/internal/tui"
)

// Run executes one load test and returns the process exit code.
func Run(cfg config.RunConfig, dialer smbio.Dialer, live bool) int {
	log, closeLog, err := logger.Setup(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup: %v\n", err)
		return 1
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(cfg, dialer, log)

	if cfg.Listen != "" {
		srv := api.New(cfg.Listen, orch.Aggregator(), log)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	printHeader(cfg)

	done := make(chan orchestrator.RunOutcome, 1)
	go func() {
		done <- orch.Run(ctx)
	}()

	var out orchestrator.RunOutcome
	if live {
		out, err = tui.Run(orch.Aggregator(), cfg.Sessions, done, stop)
		if err != nil {
			// The engine still settles without its viewer.
			fmt.Fprintf(os.Stderr, "live view failed: %v\n", err)
			out = <-done
		}
	} else {
		out = monitor(orch, cfg, done)
	}

	fmt.Println(report.Render(out))

	if cfg.OutPrefix != "" {
		path, err := report.WriteJSON(out, cfg.OutPrefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "write summary: %v\n", err)
		} else {
			fmt.Printf("Summary written to %s\n", path)
		}
	}

	saveHistory(cfg, out)
	return out.ExitCode
}

// monitor renders the single-line progress ticker until the run settles.
func monitor(orch *orchestrator.Orchestrator, cfg config.RunConfig, done <-chan orchestrator.RunOutcome) orchestrator.RunOutcome {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case out := <-done:
			fmt.Println()
			return out
		case <-ticker.C:
			snap := orch.Aggregator().Snapshot()
			pct := float64(snap.Folded) / float64(cfg.Sessions)
			fmt.Printf("\r%s %3.0f%% | %d/%d sessions | %d bytes | ops: %d | failed: %d",
				progressBar(pct, 20), pct*100,
				snap.Folded, cfg.Sessions,
				snap.TotalBytes, snap.Ops, snap.Failed)
		}
	}
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func printHeader(cfg config.RunConfig) {
	fmt.Print(banner.GetString())
	fmt.Printf("\nSTARTING SMB TEMPEST\n")
	fmt.Printf("======================================================\n")
	fmt.Printf("Server     : %s\n", cfg.Server)
	fmt.Printf("Share      : %s\n", cfg.Share)
	fmt.Printf("Mode       : %s\n", cfg.Mode)
	fmt.Printf("Sessions   : %d\n", cfg.Sessions)
	fmt.Printf("Block Size : %d bytes\n", cfg.BlockSize)
	if cfg.Mode == config.ModeDefault || cfg.Mode == config.ModeStreamingWrites {
		fmt.Printf("File Size  : %d MiB\n", cfg.MaxFileSizeMiB)
	}
	if cfg.TargetFile != "" {
		fmt.Printf("Target     : %s\n", cfg.TargetFile)
	}
	fmt.Printf("Fail Fast  : %v\n", cfg.FailFast)
	fmt.Printf("======================================================\n\n")
}

func saveHistory(cfg config.RunConfig, out orchestrator.RunOutcome) {
	store, err := history.Open("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "history: %v\n", err)
		return
	}
	defer store.Close()
	if _, err := store.Save(cfg, out); err != nil {
		fmt.Fprintf(os.Stderr, "history save: %v\n", err)
	}
}
