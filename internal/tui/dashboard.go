package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"healthwatch/internal/models"
	"healthwatch/internal/monitor"
	"healthwatch/internal/redact"
)

// Run starts the dashboard program and blocks until the user quits.
func Run(mon *monitor.Monitor) error {
	aggregates := make(chan models.AggregateResult, 8)
	mon.Subscribe(func(agg models.AggregateResult) {
		select {
		case aggregates <- agg:
		default:
			// A slow terminal never blocks the probe loop.
		}
	})

	p := tea.NewProgram(newModel(mon, aggregates), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type aggregateMsg models.AggregateResult

func waitForAggregate(ch <-chan models.AggregateResult) tea.Cmd {
	return func() tea.Msg {
		return aggregateMsg(<-ch)
	}
}

type model struct {
	mon        *monitor.Monitor
	aggregates <-chan models.AggregateResult

	spinner  spinner.Model
	latest   *models.AggregateResult
	selected int
	width    int
	height   int
	paused   bool
}

func newModel(mon *monitor.Monitor, aggregates <-chan models.AggregateResult) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accent)
	return model{
		mon:        mon,
		aggregates: aggregates,
		spinner:    sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForAggregate(m.aggregates))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p":
			if m.paused {
				m.mon.Resume()
			} else {
				m.mon.Pause()
			}
			m.paused = !m.paused
			return m, nil
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down", "j":
			if m.latest != nil && m.selected < len(m.latest.Results)-1 {
				m.selected++
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case aggregateMsg:
		agg := models.AggregateResult(msg)
		m.latest = &agg
		if m.selected >= len(agg.Results) {
			m.selected = 0
		}
		return m, waitForAggregate(m.aggregates)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	indicator := m.spinner.View()
	if m.paused {
		indicator = dimStyle.Render("⏸")
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("healthwatch"),
		"  ",
		indicator,
		"  ",
		dimStyle.Render("q quit • p pause • ↑↓ select"),
	))
	b.WriteString("\n\n")

	if m.latest == nil {
		b.WriteString(dimStyle.Render("waiting for first cycle..."))
		return b.String()
	}

	b.WriteString(m.fleetLine())
	b.WriteString("\n\n")

	for i, r := range m.latest.Results {
		b.WriteString(m.serviceRow(i, r))
		b.WriteString("\n")
	}

	if m.selected < len(m.latest.Results) {
		b.WriteString("\n")
		b.WriteString(m.detailPane(m.latest.Results[m.selected]))
	}
	return b.String()
}

func (m model) fleetLine() string {
	agg := m.latest
	line := fmt.Sprintf("fleet %s %s", statusDot(agg.Status), statusStyle(agg.Status).Render(string(agg.Status)))
	if !agg.Latency.Empty {
		line += dimStyle.Render(fmt.Sprintf("   p50 %.1fms  p95 %.1fms  p99 %.1fms",
			agg.Latency.P50, agg.Latency.P95, agg.Latency.P99))
	}
	line += dimStyle.Render("   " + agg.CompletedAt.Format("15:04:05"))
	return line
}

func (m model) serviceRow(i int, r models.ServiceResult) string {
	latency := "        "
	if r.LatencyMS != nil {
		latency = fmt.Sprintf("%7.1fms", *r.LatencyMS)
	}
	row := fmt.Sprintf("  %s %-24s %-9s %s", statusDot(r.Status), r.Name, r.Status, latency)
	if r.Version != "" {
		row += "  " + dimStyle.Render(r.Version)
	}
	if i == m.selected {
		return selectedStyle.Render(row)
	}
	return row
}

func (m model) detailPane(r models.ServiceResult) string {
	var lines []string
	lines = append(lines, boldStyle.Render(r.Name))
	lines = append(lines, dimStyle.Render(redact.URLCredentials(r.URL)))

	status := fmt.Sprintf("%s %s", statusDot(r.Status), r.Status)
	if r.Error != "" {
		status += "  " + downStyle.Render(r.Error)
	}
	lines = append(lines, status)

	meta := fmt.Sprintf("age %s", (time.Duration(r.AgeMS) * time.Millisecond).Round(time.Millisecond))
	if r.Region != "" {
		meta += "  region " + r.Region
	}
	if mult := m.mon.Multiplier(r.Name); mult > 1 {
		meta += fmt.Sprintf("  backoff ×%d", mult)
	}
	lines = append(lines, dimStyle.Render(meta))

	history := m.mon.Store().History(r.Name)
	if len(history) > 0 {
		end := time.Now()
		start := history[0].CheckedAt
		points := BuildTimeline(history, start, end, DefaultTimelinePoints)
		lines = append(lines, renderTimeline(points))
	}

	return cardStyle.Render(strings.Join(lines, "\n"))
}
