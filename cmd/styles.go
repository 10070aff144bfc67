// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/cytonlink/cytonlink/pkg/cyton"
)

// Terminal palette shared by the TUIs and status_watch
var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	mutedStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	alertStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	noticeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	panelStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	focusedPanelStyle = panelStyle.BorderForeground(lipgloss.Color("12"))
)

// labeled renders "label value" pairs separated by three spaces
func labeled(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, labelStyle.Render(pairs[i])+" "+pairs[i+1])
	}
	return strings.Join(parts, "   ")
}

// counter renders n in the alert color when non-zero
func counter(n uint64) string {
	if n > 0 {
		return alertStyle.Render(fmt.Sprintf("%d", n))
	}
	return valueStyle.Render("0")
}

// channelGain returns the gain for channel i, assuming the maximum until
// the board has reported
func channelGain(gains cyton.GainReport, i int) uint8 {
	if i < len(gains) {
		return gains[i]
	}
	return cyton.MaxGain
}

type logEntry struct {
	at      time.Time
	message string
	isError bool
}

// eventLog keeps the newest limit entries
type eventLog struct {
	entries []logEntry
	limit   int
}

func newEventLog(limit int) eventLog {
	return eventLog{limit: limit}
}

func (l *eventLog) add(message string, isError bool) {
	l.entries = append(l.entries, logEntry{at: time.Now(), message: message, isError: isError})
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

// render draws the last rows entries in a panel of the given width
func (l eventLog) render(width, rows int, layout string) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	var body strings.Builder
	if len(l.entries) == 0 {
		body.WriteString(mutedStyle.Render("  (no events yet)"))
	}

	start := max(len(l.entries)-max(rows, 5), 0)
	for _, e := range l.entries[start:] {
		text := noticeStyle.Render("ℹ " + e.message)
		if e.isError {
			text = alertStyle.Render("✗ " + e.message)
		}
		fmt.Fprintf(&body, "%s %s\n", mutedStyle.Render(e.at.Format(layout)), text)
	}

	s.WriteString(panelStyle.Width(max(width, 40)).Render(body.String()))
	return s.String()
}
