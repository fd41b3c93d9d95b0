// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// gridColumns is the number of slots per row in the slot grid.
const gridColumns = 16

// TUI model
type model struct {
	connInfo      string
	stats         *rdm.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	frame         []byte
	frames        uint64
	lastFrame     time.Time
	grid          viewport.Model
	width         int
	height        int
	quitting      bool
	lineErr       error
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	data   []byte
	frames uint64
}
type rdmPacketMsg struct {
	packet           *rdm.Packet
	decodeErr        error
	validationErrors []rdm.ValidationError
}
type lineFailedMsg struct {
	err error
}

func initialMonitorModel(connInfo string) model {
	return model{
		connInfo:      connInfo,
		stats:         rdm.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		grid:          viewport.New(80, 10),
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
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
		var cmd tea.Cmd
		m.grid, cmd = m.grid.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.grid.Width = msg.Width - 4
		m.grid.Height = gridHeight(msg.Height)
		m.grid.SetContent(m.renderGrid())

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case frameMsg:
		if m.frames == 0 {
			m.addLogEntry(fmt.Sprintf("Receiving frames (start code 0x%02X)", startCode(msg.data)), false)
		}
		m.frame = msg.data
		m.frames = msg.frames
		m.lastFrame = time.Now()
		m.grid.SetContent(m.renderGrid())

	case rdmPacketMsg:
		m.stats.Update(msg.packet, msg.decodeErr, msg.validationErrors)
		switch {
		case msg.decodeErr != nil:
			m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		case len(msg.validationErrors) > 0:
			pid := rdm.FormatPID(msg.packet.PID)
			for _, err := range msg.validationErrors {
				m.addLogEntry(fmt.Sprintf("%s: %s", pid, err.Message), true)
			}
		default:
			p := msg.packet
			m.addLogEntry(fmt.Sprintf("%s %s %s -> %s",
				rdm.FormatCommandClass(p.CommandClass), rdm.FormatPID(p.PID), p.Source, p.Destination), false)
		}

	case lineFailedMsg:
		m.lineErr = msg.err
		m.addLogEntry(fmt.Sprintf("LINE FAILED: %v", msg.err), true)
	}

	return m, nil
}

func startCode(frame []byte) byte {
	if len(frame) == 0 {
		return 0
	}
	return frame[0]
}

// gridHeight leaves room for the header, statistics and event log.
func gridHeight(termHeight int) int {
	h := termHeight / 2
	if h < 4 {
		h = 4
	}
	return h
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// renderGrid lays the received slots out in rows of gridColumns, each row
// prefixed with its first slot number.
func (m model) renderGrid() string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	zeroStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	fullStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)

	if len(m.frame) < 2 {
		return labelStyle.Render("  (no frame yet)")
	}

	slots := m.frame[1:]
	var b strings.Builder
	for row := 0; row < len(slots); row += gridColumns {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%3d │", row+1)))
		for i := row; i < row+gridColumns && i < len(slots); i++ {
			v := slots[i]
			cell := fmt.Sprintf(" %3d", v)
			switch {
			case v == 0:
				b.WriteString(zeroStyle.Render(cell))
			case v == 0xFF:
				b.WriteString(fullStyle.Render(cell))
			default:
				b.WriteString(valueStyle.Render(cell))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("RDMCTL - LINE MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | ↑/↓ scroll slots | Press 'q' to quit", m.connInfo)))
	s.WriteString("\n\n")

	// Frame status
	switch {
	case m.lineErr != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Line failed: %v", m.lineErr)))
	case m.frames == 0:
		s.WriteString(warningStyle.Render("⏳ Waiting for frames..."))
	case time.Since(m.lastFrame) > time.Second:
		s.WriteString(warningStyle.Render(fmt.Sprintf("⚠ No frame for %s", time.Since(m.lastFrame).Round(time.Second))))
	default:
		s.WriteString(statsValueStyle.Render(fmt.Sprintf("✓ %d frames, %d slots", m.frames, len(m.frame)-1)))
	}
	s.WriteString("\n")

	s.WriteString(boxStyle.Render(m.grid.View()))
	s.WriteString("\n")

	// Statistics
	m.stats.CalculateRates()
	errors := m.stats.Errors()
	var validPercent, errorPercent float64
	if m.stats.TotalPackets > 0 {
		validPercent = float64(m.stats.ValidPackets) * 100.0 / float64(m.stats.TotalPackets)
		errorPercent = float64(errors) * 100.0 / float64(m.stats.TotalPackets)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("RDM:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidPackets, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errors, errorPercent)),
	))

	if m.stats.ChecksumErrors > 0 || m.stats.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			statsLabelStyle.Render("Checksum Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.ChecksumErrors)),
			statsLabelStyle.Render("Decode Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.DecodeErrors)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", m.stats.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - m.grid.Height - 14
	if logHeight < 3 {
		logHeight = 3
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
