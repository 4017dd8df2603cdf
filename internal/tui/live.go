// Package tui is the optional live progress view: a progress bar over
// completed sessions and the headline counters, refreshed from aggregator
// snapshots.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"smbtempest/internal/metrics"
	"smbtempest/internal/orchestrator"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676")).Italic(true)
)

type tickMsg time.Time

type doneMsg orchestrator.RunOutcome

type model struct {
	agg    *metrics.Aggregator
	total  int
	cancel func()

	done  <-chan orchestrator.RunOutcome
	prog  progress.Model
	snap  metrics.Snapshot
	spark sparkline
	prev  uint64
	out   *orchestrator.RunOutcome
}

// Run drives the live view until the run completes. cancel is invoked when
// the user aborts with q or ctrl+c; the view then waits for the engine to
// settle and deliver its outcome.
func Run(agg *metrics.Aggregator, total int, done <-chan orchestrator.RunOutcome, cancel func()) (orchestrator.RunOutcome, error) {
	m := model{
		agg:    agg,
		total:  total,
		cancel: cancel,
		done:   done,
		prog:   progress.New(progress.WithDefaultGradient()),
		spark:  newSparkline(40, valueStyle),
	}

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return orchestrator.RunOutcome{}, err
	}
	fm, ok := final.(model)
	if !ok || fm.out == nil {
		return orchestrator.RunOutcome{}, fmt.Errorf("live view exited before run settled")
	}
	return *fm.out, nil
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitDone(done <-chan orchestrator.RunOutcome) tea.Cmd {
	return func() tea.Msg {
		return doneMsg(<-done)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), waitDone(m.done))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil
	case tickMsg:
		m.snap = m.agg.Snapshot()
		m.spark.add(m.snap.TotalBytes - m.prev)
		m.prev = m.snap.TotalBytes
		return m, tick()
	case doneMsg:
		out := orchestrator.RunOutcome(msg)
		m.out = &out
		m.snap = m.agg.Snapshot()
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.prog.Width = msg.Width - 8
		m.spark.setWidth(msg.Width - 8)
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("SMB TEMPEST") + "\n\n")

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.snap.Folded) / float64(m.total)
	}
	b.WriteString(m.prog.ViewAs(pct) + "\n\n")

	row := func(label string, value string, style lipgloss.Style) {
		b.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render(fmt.Sprintf("%-22s", label)),
			style.Render(value)))
	}

	row("Sessions done", fmt.Sprintf("%d / %d", m.snap.Folded, m.total), valueStyle)
	row("Succeeded", fmt.Sprintf("%d", m.snap.Succeeded), valueStyle)
	if m.snap.Failed > 0 {
		row("Failed", fmt.Sprintf("%d", m.snap.Failed), failStyle)
	}
	if m.snap.Cancelled > 0 {
		row("Cancelled", fmt.Sprintf("%d", m.snap.Cancelled), failStyle)
	}
	row("Bytes moved", fmt.Sprintf("%d", m.snap.TotalBytes), valueStyle)
	row("Operations", fmt.Sprintf("%d", m.snap.Ops), valueStyle)
	row("Max throughput", fmt.Sprintf("%.2f MB/s", m.snap.MaxThroughputMBps), valueStyle)
	row("Max IOPS", fmt.Sprintf("%.1f", m.snap.MaxIOPS), valueStyle)
	row("Elapsed", m.snap.Elapsed.Round(time.Second).String(), valueStyle)

	b.WriteString("\n" + labelStyle.Render("Transfer rate") + "\n")
	b.WriteString(m.spark.view() + "\n")

	b.WriteString("\n" + footerStyle.Render("q: abort run"))
	return b.String()
}
