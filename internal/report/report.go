// Package report renders the final run summary for humans and exports the
// machine-readable record.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"smbtempest/internal/orchestrator"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Bold(true)
	valStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
	ruleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

// Render formats the outcome as the classic summary block.
func Render(out orchestrator.RunOutcome) string {
	var b strings.Builder
	rule := ruleStyle.Render(strings.Repeat("=", 54))

	b.WriteString("\n" + rule + "\n")
	b.WriteString(titleStyle.Render("                   TEMPEST RUN SUMMARY") + "\n")
	b.WriteString(rule + "\n")

	line := func(k string, format string, args ...any) {
		b.WriteString(fmt.Sprintf("%s : %s\n",
			keyStyle.Render(fmt.Sprintf("%-26s", k)),
			valStyle.Render(fmt.Sprintf(format, args...))))
	}

	line("Mode", "%s", out.Mode)
	line("Sessions Requested", "%d", out.Sessions)
	line("Sessions Succeeded", "%d", out.Succeeded)
	line("Sessions Failed", "%d", out.Failed)
	if out.Cancelled > 0 {
		line("Sessions Cancelled", "%d", out.Cancelled)
	}
	if out.NeverStarted > 0 {
		line("Sessions Never Started", "%d", out.NeverStarted)
	}
	line("Churn Files Created", "%d", out.FilesCreated)
	line("Churn Files Deleted", "%d", out.FilesDeleted)
	line("Total Operations", "%d", out.TotalOps)
	line("Total Bytes Transferred", "%d (%s)", out.TotalBytes, humanBytes(out.TotalBytes))
	line("Total Time Taken", "%.2f s", out.ElapsedSeconds)
	line("Overall Throughput", "%.2f MB/s", out.ThroughputMBps)
	line("Max Session Throughput", "%.2f MB/s", out.MaxThroughputMBps)
	line("Max Session IOPS", "%.1f", out.MaxIOPS)
	line("Session Time p50/p99", "%d ms / %d ms", out.P50SessionMs, out.P99SessionMs)

	if len(out.FailedSessions) > 0 {
		b.WriteString(rule + "\n")
		b.WriteString(errStyle.Render("FAILED SESSIONS") + "\n")
		for _, fs := range out.FailedSessions {
			b.WriteString(errStyle.Render(fmt.Sprintf("  %s [%s] %s", fs.SessionID, fs.Kind, fs.Detail)) + "\n")
		}
	}

	b.WriteString(rule + "\n")

	if out.TotalBytes == 0 {
		b.WriteString(warnStyle.Render("Warning: no bytes moved. Check server visibility or permissions.") + "\n")
	}
	return b.String()
}

// WriteJSON writes the outcome record to <prefix>_summary.json.
func WriteJSON(out orchestrator.RunOutcome, prefix string) (string, error) {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	path := prefix + "_summary.json"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
