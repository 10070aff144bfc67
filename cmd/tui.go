// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cytonlink/cytonlink/pkg/cyton"
)

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         cyton.Statistics
	dropped       uint64
	lastSample    cyton.FramedSample
	gains         cyton.GainReport
	events        eventLog
	synchronized  bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type detectionMsg detection
type gainsMsg cyton.GainReport
type statsMsg struct {
	stats   cyton.Statistics
	sample  cyton.FramedSample
	dropped uint64
}

// formatElapsed formats a duration as h:mm:ss
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%d:%02d:%02d", h, m, d/time.Second)
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         *cyton.NewStatistics(),
		events:        newEventLog(100),
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case statsMsg:
		m.stats = msg.stats
		m.dropped = msg.dropped
		if msg.sample != nil {
			m.lastSample = msg.sample
			if !m.synchronized {
				m.synchronized = true
				m.addLogEntry("Synchronized", false)
			}
		}

	case gainsMsg:
		m.gains = cyton.GainReport(msg)
		m.addLogEntry(fmt.Sprintf("Gains: %s", m.gains), false)

	case detectionMsg:
		m.addLogEntry(msg.message, msg.isError)
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	m.events.add(message, isError)
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("CYTONLINK - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Problems only"
	if m.showAll {
		mode = "All samples"
	}
	s.WriteString(mutedStyle.Render(fmt.Sprintf("%s | Mode: %s | Press 'q' to quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	if !m.synchronized {
		s.WriteString(noticeStyle.Render("⏳ Waiting for samples..."))
	} else {
		s.WriteString(valueStyle.Render("✓ Streaming"))
		s.WriteString(mutedStyle.Render(" for " + formatElapsed(time.Since(m.stats.StartTime))))
	}
	s.WriteString("\n\n")

	s.WriteString(panelStyle.Render(m.renderStats()))
	s.WriteString("\n\n")

	if m.lastSample != nil {
		s.WriteString(labelStyle.Render(fmt.Sprintf("Latest Sample (seq %d):", m.lastSample.Sequence())))
		s.WriteString("\n")
		s.WriteString(panelStyle.Render(m.renderChannels()))
		s.WriteString("\n\n")
	}

	s.WriteString(m.events.render(m.width-4, m.height-20, "01/02/06 15:04:05.000"))
	return s.String()
}

func (m model) renderStats() string {
	stats := m.stats
	lines := []string{labeled(
		"Windows:", valueStyle.Render(fmt.Sprintf("%d", stats.TotalWindows)),
		"Samples:", valueStyle.Render(fmt.Sprintf("%d", stats.Samples)),
		"Problems:", counter(stats.SequenceGaps+stats.UnknownWindows+m.dropped),
	)}

	if stats.SequenceGaps > 0 {
		lines = append(lines, labeled("Sequence Gaps:", counter(stats.SequenceGaps))+
			" "+mutedStyle.Render(fmt.Sprintf("(%d samples missed)", stats.MissedSamples)))
	}
	if stats.UnknownWindows > 0 || m.dropped > 0 {
		lines = append(lines, labeled("Unknown:", counter(stats.UnknownWindows), "Dropped:", counter(m.dropped)))
	}

	unknownRate := valueStyle
	if stats.UnknownRate > 0 {
		unknownRate = alertStyle
	}
	lines = append(lines, labeled(
		"Sample Rate:", valueStyle.Render(fmt.Sprintf("%.1f samples/s", stats.SampleRate)),
		"Unknown Rate:", unknownRate.Render(fmt.Sprintf("%.1f win/s", stats.UnknownRate)),
	))
	return strings.Join(lines, "\n")
}

// renderChannels lays the latest sample out two channels per row, railed
// channels in the alert color
func (m model) renderChannels() string {
	channels := m.lastSample.Channels()
	rows := make([]string, 0, (len(channels)+1)/2)
	for i := 0; i < len(channels); i += 2 {
		var cells []string
		for j := i; j < i+2 && j < len(channels); j++ {
			count, gain := channels[j], channelGain(m.gains, j)
			style := valueStyle
			if count >= fullScale || count <= -fullScale-1 {
				style = alertStyle
			}
			cells = append(cells, fmt.Sprintf("%s %s %s",
				labelStyle.Render(fmt.Sprintf("Ch%d:", j+1)),
				style.Render(fmt.Sprintf("%10.2f uV", cyton.Microvolts(count, gain))),
				mutedStyle.Render(fmt.Sprintf("x%d", gain)),
			))
		}
		rows = append(rows, strings.Join(cells, "   "))
	}
	return strings.Join(rows, "\n")
}
