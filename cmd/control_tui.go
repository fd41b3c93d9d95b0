// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusDeviceList = iota
	focusAddressInput
	focusAddressButton
	focusIdentifyButton
)

const maxFocus = focusIdentifyButton

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// device is a row of the device list.
type device struct {
	uid         rdm.UID
	info        *rdm.DeviceInfo
	label       string
	identifying bool
	err         error
}

// Implement list.Item interface
func (d device) Title() string { return d.uid.String() }
func (d device) Description() string {
	switch {
	case d.err != nil:
		return "no info"
	case d.info == nil:
		return "..."
	case d.label != "":
		return d.label
	default:
		return fmt.Sprintf("model 0x%04X", d.info.ModelID)
	}
}
func (d device) FilterValue() string { return d.uid.String() }

// controlModel is the Bubble Tea model for the console TUI
type controlModel struct {
	requests chan<- consoleRequest
	connInfo string

	devices    []device
	deviceList list.Model
	incomplete bool

	stats         statsMsg
	errorLog      []errorLogEntry
	maxLogEntries int

	addressInput textinput.Model
	focusedField int

	width    int
	height   int
	quitting bool
	lineErr  error
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type tableMsg struct {
	devices    []rdm.UID
	incomplete bool
}

type deviceInfoMsg struct {
	uid   rdm.UID
	info  *rdm.DeviceInfo
	label string
	err   error
}

type resultMsg struct {
	uid    rdm.UID
	action string
	err    error
}

type statsMsg struct {
	total, valid, errors uint64
	nacks, timeouts      uint64
	packetRate           float64
	frames               uint64
	cycles               uint64
	state                string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(requests chan<- consoleRequest, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "1"
	ti.CharLimit = 3
	ti.Width = 6

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	deviceList := list.New([]list.Item{}, delegate, 30, 10)
	deviceList.Title = "Devices"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)

	return controlModel{
		requests:      requests,
		connInfo:      connInfo,
		devices:       make([]device, 0),
		deviceList:    deviceList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		addressInput:  ti,
		focusedField:  focusDeviceList,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return nil
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.deviceList, cmd = m.deviceList.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case tableMsg:
		m.applyTable(msg)

	case deviceInfoMsg:
		if d := m.find(msg.uid); d != nil {
			d.info, d.label, d.err = msg.info, msg.label, msg.err
			if msg.err != nil {
				m.addLogEntry(fmt.Sprintf("%s: %v", msg.uid, msg.err), true)
			}
			m.updateDeviceList()
		}

	case resultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s %s: %v", msg.uid, msg.action, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s %s", msg.uid, msg.action), false)
		}

	case statsMsg:
		m.stats = msg

	case lineFailedMsg:
		m.lineErr = msg.err
		m.addLogEntry(fmt.Sprintf("LINE FAILED: %v", msg.err), true)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter(), nil

	case "i":
		if m.focusedField != focusAddressInput {
			return m.toggleIdentify(), nil
		}
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusAddressInput:
		m.addressInput, cmd = m.addressInput.Update(msg)
	case focusDeviceList:
		before := m.deviceList.Index()
		m.deviceList, cmd = m.deviceList.Update(msg)
		if m.deviceList.Index() != before {
			m.requestInfo()
		}
	}
	return m, cmd
}

func (m controlModel) cycleFocus(delta int) controlModel {
	if m.selected() == nil {
		m.focusedField = focusDeviceList
		return m
	}

	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	if m.focusedField == focusAddressInput {
		m.addressInput.Focus()
	} else {
		m.addressInput.Blur()
	}
	return m
}

func (m controlModel) handleEnter() controlModel {
	if m.lineErr != nil {
		m.addLogEntry("Cannot send command: line failed", true)
		return m
	}
	sel := m.selected()
	if sel == nil {
		return m
	}

	switch m.focusedField {
	case focusDeviceList:
		m.requestInfo()
	case focusAddressInput, focusAddressButton:
		addr, err := strconv.Atoi(strings.TrimSpace(m.addressInput.Value()))
		if err != nil || addr < 1 || addr > rdm.MaxSlots {
			m.addLogEntry(fmt.Sprintf("Start address must be 1-%d", rdm.MaxSlots), true)
			return m
		}
		m.send(consoleRequest{kind: requestAddress, uid: sel.uid, address: uint16(addr)})
	case focusIdentifyButton:
		return m.toggleIdentify()
	}
	return m
}

func (m controlModel) toggleIdentify() controlModel {
	sel := m.selected()
	if sel == nil || m.lineErr != nil {
		return m
	}
	sel.identifying = !sel.identifying
	m.send(consoleRequest{kind: requestIdentify, uid: sel.uid, on: sel.identifying})
	return m
}

func (m *controlModel) requestInfo() {
	if sel := m.selected(); sel != nil && m.lineErr == nil {
		m.send(consoleRequest{kind: requestInfo, uid: sel.uid})
	}
}

// send queues a request without blocking the UI.
func (m *controlModel) send(req consoleRequest) {
	select {
	case m.requests <- req:
	default:
		m.addLogEntry("Engine busy, request dropped", true)
	}
}

func (m *controlModel) applyTable(msg tableMsg) {
	old := make(map[rdm.UID]device, len(m.devices))
	for _, d := range m.devices {
		old[d.uid] = d
	}

	devices := make([]device, 0, len(msg.devices))
	for _, uid := range msg.devices {
		d, ok := old[uid]
		if !ok {
			d = device{uid: uid}
			m.addLogEntry(fmt.Sprintf("Found %s", uid), false)
			m.send(consoleRequest{kind: requestInfo, uid: uid})
		}
		delete(old, uid)
		devices = append(devices, d)
	}
	for uid := range old {
		m.addLogEntry(fmt.Sprintf("Lost %s", uid), true)
	}

	m.devices = devices
	m.incomplete = msg.incomplete
	if msg.incomplete {
		m.addLogEntry("Table or range stack full, devices may be missing", true)
	}
	m.updateDeviceList()
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) find(uid rdm.UID) *device {
	for i := range m.devices {
		if m.devices[i].uid == uid {
			return &m.devices[i]
		}
	}
	return nil
}

func (m *controlModel) selected() *device {
	idx := m.deviceList.Index()
	if idx < 0 || idx >= len(m.devices) {
		return nil
	}
	return &m.devices[idx]
}

func (m *controlModel) updateDeviceList() {
	items := make([]list.Item, len(m.devices))
	for i, d := range m.devices {
		items[i] = d
	}
	m.deviceList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.deviceList.SetSize(28, listHeight)
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

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

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	s.WriteString(titleStyle.Render("RDMCTL CONSOLE"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.lineErr != nil {
		connStatus = errorStyle.Render("LINE FAILED")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch i=identify", connStatus)))
	s.WriteString("\n\n")

	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusDeviceList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	devicePanel := listStyle.Render(m.deviceList.View())

	controlPanel := boxStyle.Width(rightWidth).Render(
		m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle, buttonStyle, focusedButtonStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devicePanel, " ", controlPanel))
	s.WriteString("\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, errorStyle, headerStyle, boxStyle))

	return s.String()
}

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle, warningStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	var s strings.Builder

	sel := m.selected()
	if sel == nil {
		if len(m.devices) == 0 {
			s.WriteString(warningStyle.Render("Discovering devices..."))
		} else {
			s.WriteString(headerStyle.Render("No device selected"))
		}
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Selected:"), sel.uid))
	switch {
	case sel.err != nil:
		s.WriteString(headerStyle.Render(fmt.Sprintf("No response: %v", sel.err)))
		s.WriteString("\n")
	case sel.info == nil:
		s.WriteString(headerStyle.Render("Reading device info..."))
		s.WriteString("\n")
	default:
		if sel.label != "" {
			s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Label:"), statsValueStyle.Render(sel.label)))
		}
		s.WriteString(fmt.Sprintf("%s %s  %s %s\n",
			statsLabelStyle.Render("Start:"), statsValueStyle.Render(fmt.Sprintf("%d", sel.info.StartAddress)),
			statsLabelStyle.Render("Footprint:"), statsValueStyle.Render(fmt.Sprintf("%d", sel.info.Footprint))))
		s.WriteString(fmt.Sprintf("%s 0x%04X  %s %d/%d\n",
			statsLabelStyle.Render("Model:"), sel.info.ModelID,
			statsLabelStyle.Render("Personality:"), sel.info.Personality, sel.info.PersonalityCount))
	}
	s.WriteString("\n")

	s.WriteString(statsLabelStyle.Render("Start address: "))
	if m.focusedField == focusAddressInput {
		s.WriteString(m.addressInput.View())
	} else {
		val := m.addressInput.Value()
		if val == "" {
			val = m.addressInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("  ")

	renderButton := func(text string, focus int) string {
		if m.focusedField == focus {
			return focusedButtonStyle.Render(text)
		}
		return buttonStyle.Render(text)
	}
	s.WriteString(renderButton("[ Set ]", focusAddressButton))
	s.WriteString("\n\n")

	identifyText := "[ Identify ]"
	if sel.identifying {
		identifyText = "[ Stop Identify ]"
	}
	s.WriteString(renderButton(identifyText, focusIdentifyButton))

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	var validPercent float64
	if m.stats.total > 0 {
		validPercent = float64(m.stats.valid) * 100.0 / float64(m.stats.total)
	}

	errors := statsValueStyle.Render("0")
	if m.stats.errors > 0 {
		errors = errorStyle.Render(fmt.Sprintf("%d", m.stats.errors))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Discovery:"), statsValueStyle.Render(fmt.Sprintf("%s, %d cycles", m.stats.state, m.stats.cycles)),
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.frames)),
		statsLabelStyle.Render("Responses:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%% valid)", m.stats.total, validPercent)),
		statsLabelStyle.Render("Errors:"), errors,
		statsLabelStyle.Render("Timeouts:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.timeouts)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkt/s", m.stats.packetRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}
