// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cytonlink/cytonlink/pkg/cyton"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusPresetList = iota
	focusCommandInput
	focusCount
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// preset is a canned board command
type preset struct {
	command     string
	description string
}

// Implement list.Item interface
func (p preset) Title() string       { return p.command }
func (p preset) Description() string { return p.description }
func (p preset) FilterValue() string { return p.command }

var commandPresets = []preset{
	{cyton.CmdStartStream, "Start streaming"},
	{cyton.CmdStopStream, "Stop streaming"},
	{cyton.CmdVersion, "Firmware version"},
	{"~~", "Query sample rate"},
	{"~6", "250 Hz"},
	{"~5", "500 Hz"},
	{"~4", "1000 Hz"},
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	connMgr  *connectionManager
	connInfo string

	presetList   list.Model
	commandInput textinput.Model
	focusedField int

	// Board state as last reported by the engine
	state        engineState
	gains        cyton.GainReport
	lastSample   cyton.FramedSample
	lastResponse string
	lastCommand  string
	sentAt       time.Time

	stats  *cyton.Statistics
	events eventLog

	width          int
	height         int
	synchronized   bool
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

// controlDataMsg carries one engine output; exactly one field is set
type controlDataMsg struct {
	sample      cyton.FramedSample
	gains       cyton.GainReport
	response    string
	hasResponse bool
	state       *engineState
}

type controlBatchMsg struct {
	messages []controlDataMsg
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "command"
	ti.CharLimit = 32
	ti.Width = 20

	items := make([]list.Item, len(commandPresets))
	for i, p := range commandPresets {
		items[i] = p
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	presetList := list.New(items, delegate, 30, 16)
	presetList.Title = "Commands"
	presetList.SetShowStatusBar(false)
	presetList.SetShowHelp(false)
	presetList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:      connMgr,
		connInfo:     connInfo,
		presetList:   presetList,
		commandInput: ti,
		focusedField: focusPresetList,
		stats:        cyton.NewStatistics(),
		events:       newEventLog(100),
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.CalculateRates()
		return m, controlTickCmd()

	case controlBatchMsg:
		for _, data := range msg.messages {
			m.processControlData(data)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.state = engineState{}
		m.synchronized = false
		m.stats.ResetSequence()
		m.addLogEntry("Reconnected", false)
	}

	var cmd tea.Cmd
	if m.focusedField == focusCommandInput {
		m.commandInput, cmd = m.commandInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.focusedField == focusPresetList {
		m.presetList, cmd = m.presetList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusCommandInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter()
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusCommandInput:
		m.commandInput, cmd = m.commandInput.Update(msg)
	case focusPresetList:
		m.presetList, cmd = m.presetList.Update(msg)
	}
	return m, cmd
}

func (m *controlModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	m.presetList, _ = m.presetList.Update(msg)
	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	m.focusedField = (m.focusedField + delta + focusCount) % focusCount

	if m.focusedField == focusCommandInput {
		m.commandInput.Focus()
	} else {
		m.commandInput.Blur()
	}
	return m
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	switch m.focusedField {
	case focusPresetList:
		if p, ok := m.presetList.SelectedItem().(preset); ok {
			m.sendCommand(p.command)
		}
	case focusCommandInput:
		text := strings.TrimSpace(m.commandInput.Value())
		if text != "" {
			m.sendCommand(text)
			m.commandInput.SetValue("")
		}
	}
	return m, nil
}

func (m *controlModel) sendCommand(text string) {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return
	}
	if !m.connMgr.send(text) {
		m.addLogEntry(fmt.Sprintf("Command %q dropped: queue full", text), true)
		return
	}
	m.lastCommand = text
	m.sentAt = time.Now()
	m.addLogEntry(fmt.Sprintf("Sent %q", text), false)
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processControlData(msg controlDataMsg) {
	switch {
	case msg.sample != nil:
		if !m.synchronized {
			m.synchronized = true
			m.addLogEntry("Synchronized", false)
		}
		m.stats.Record(cyton.KindSample)
		before := m.stats.SequenceGaps
		m.stats.RecordSequence(msg.sample.Sequence())
		if m.stats.SequenceGaps > before {
			m.addLogEntry(fmt.Sprintf("Sequence gap before seq %d", msg.sample.Sequence()), true)
		}
		m.lastSample = msg.sample

	case msg.gains != nil:
		m.stats.Record(cyton.KindGainReport)
		m.gains = msg.gains
		m.addLogEntry(fmt.Sprintf("Gains: %s", msg.gains), false)

	case msg.hasResponse:
		m.stats.Record(cyton.KindCommandFinal)
		m.lastResponse = msg.response
		if m.lastCommand != "" {
			m.addLogEntry(fmt.Sprintf("%q -> %q (%v)", m.lastCommand, msg.response,
				time.Since(m.sentAt).Round(time.Millisecond)), false)
			m.lastCommand = ""
		} else {
			m.addLogEntry(fmt.Sprintf("Response: %q", msg.response), false)
		}

	case msg.state != nil:
		old := m.state
		m.state = *msg.state
		if old.streaming != m.state.streaming {
			if m.state.streaming {
				m.stats.ResetSequence()
				m.addLogEntry("Streaming started", false)
			} else {
				m.synchronized = false
				m.addLogEntry("Streaming stopped", false)
			}
		}
	}
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.events.add(message, isError)
}

func (m *controlModel) updateListSize() {
	height := m.height - 14
	if height < 8 {
		height = 8
	}
	m.presetList.SetSize(28, height)
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("CYTONLINK CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = noticeStyle.Render("RECONNECTING...")
	}
	s.WriteString(mutedStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch Enter=send", connStatus)))
	s.WriteString("\n\n")

	// Layout: left panel (presets) | right panel (board)
	const leftWidth = 30
	rightWidth := max(m.width-leftWidth-6, 30)

	presetPanel := m.panel(focusPresetList).Width(leftWidth).Render(m.presetList.View())
	boardPanel := m.panel(focusCommandInput).Width(rightWidth).Render(m.renderBoardPanel())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, presetPanel, " ", boardPanel))
	s.WriteString("\n\n")

	s.WriteString(panelStyle.Render(labeled(
		"Samples:", valueStyle.Render(fmt.Sprintf("%d", m.stats.Samples)),
		"Rate:", valueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.SampleRate)),
		"Gaps:", counter(m.stats.SequenceGaps),
		"Responses:", valueStyle.Render(fmt.Sprintf("%d", m.stats.CommandResults)),
	)))
	s.WriteString("\n\n")

	s.WriteString(m.events.render(m.width-4, m.height-30, "15:04:05.000"))
	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

// panel returns the panel style, highlighted when f has focus
func (m controlModel) panel(f int) lipgloss.Style {
	if m.focusedField == f {
		return focusedPanelStyle
	}
	return panelStyle
}

func (m controlModel) renderBoardPanel() string {
	var s strings.Builder

	streaming := noticeStyle.Render("idle")
	if m.state.streaming {
		streaming = valueStyle.Render("streaming")
	}
	s.WriteString(labeled("State:", streaming, "Rate:", valueStyle.Render(fmt.Sprintf("%d Hz", m.state.sampleRate))))
	s.WriteString("\n")

	gains := mutedStyle.Render("(not reported)")
	if m.gains != nil {
		gains = valueStyle.Render(m.gains.String())
	}
	s.WriteString(labeled("Gains:", gains))
	s.WriteString("\n")

	if m.lastResponse != "" {
		s.WriteString(labeled("Response:", valueStyle.Render(fmt.Sprintf("%q", m.lastResponse))))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if m.lastSample != nil {
		fmt.Fprintf(&s, "%s\n", labelStyle.Render(fmt.Sprintf("Sample %d:", m.lastSample.Sequence())))
		for i, count := range m.lastSample.Channels() {
			fmt.Fprintf(&s, "  %s %s\n",
				mutedStyle.Render(fmt.Sprintf("Ch%d", i+1)),
				valueStyle.Render(fmt.Sprintf("%10.2f uV", cyton.Microvolts(count, channelGain(m.gains, i)))),
			)
		}
		s.WriteString("\n")
	}

	s.WriteString(labeled("Command:", m.commandInput.View()))
	return s.String()
}
