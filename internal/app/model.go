package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/yacekmm/SpeakerAssistant/internal/backend"
	"github.com/yacekmm/SpeakerAssistant/internal/metrics"
	"github.com/yacekmm/SpeakerAssistant/internal/session"
	"github.com/yacekmm/SpeakerAssistant/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// PickerFocus tracks which device picker has keyboard focus.
type PickerFocus int

const (
	FocusInput PickerFocus = iota
	FocusOutput
)

func (f PickerFocus) kind() backend.DeviceKind {
	if f == FocusOutput {
		return backend.DeviceOutput
	}
	return backend.DeviceInput
}

const (
	sparkHeight   = 4
	noticeTimeout = 5 * time.Second
)

// Model is the root bubbletea model of the dashboard.
type Model struct {
	ctrl     *session.Controller
	headless bool
	copyText func(string) error

	// Pickers
	focus  PickerFocus
	cursor [2]int

	// Raw device ID entry
	entering bool
	idInput  textinput.Model

	spinner spinner.Model

	// UI state
	width  int
	height int

	// Notices
	notice          string
	noticeIsError   bool
	noticeTransient bool

	quitting bool
}

// Option configures a Model.
type Option func(*Model)

// WithHeadless runs the model without drawing or reading keys.
func WithHeadless() Option {
	return func(m *Model) { m.headless = true }
}

// WithClipboard replaces the system clipboard writer.
func WithClipboard(fn func(string) error) Option {
	return func(m *Model) { m.copyText = fn }
}

// New creates a dashboard for ctrl.
func New(ctrl *session.Controller, opts ...Option) Model {
	in := textinput.New()
	in.Prompt = "Device ID: "
	in.CharLimit = 9
	in.Width = 12

	m := Model{
		ctrl:     ctrl,
		copyText: clipboard.WriteAll,
		idInput:  in,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(ui.SpinnerStyle)),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the session.
func (m Model) Init() tea.Cmd {
	if m.headless {
		return m.ctrl.Init()
	}
	return tea.Batch(m.ctrl.Init(), m.spinner.Tick)
}

// clearNoticeCmd fires after a delay to clear transient notices.
func clearNoticeCmd() tea.Cmd {
	return tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
		return ClearNoticeMsg{}
	})
}

// copyQuestionsCmd writes the questions to the clipboard, one per line.
func copyQuestionsCmd(copyText func(string) error, questions []string) tea.Cmd {
	text := strings.Join(questions, "\n")
	n := len(questions)
	return func() tea.Msg {
		return ClipboardResultMsg{Count: n, Err: copyText(text)}
	}
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.headless {
			return m, nil
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if !m.ctrl.Loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case session.DevicesLoadedMsg, session.StreamEventMsg, session.JournalErrorMsg:
		cmd := m.ctrl.Update(msg)
		m.clampCursors()
		if m.headless && m.ctrl.View().ConnState.Terminal() {
			m.quitting = true
			return m, tea.Batch(cmd, m.ctrl.Teardown(), tea.Quit)
		}
		return m, cmd

	case ClipboardResultMsg:
		if msg.Err != nil {
			return m.setNotice("Copy failed: "+msg.Err.Error(), true)
		}
		return m.setNotice(fmt.Sprintf("Copied %s to clipboard", plural(msg.Count, "question")), false)

	case ClearNoticeMsg:
		if m.noticeTransient {
			m.notice = ""
			m.noticeIsError = false
			m.noticeTransient = false
		}
		return m, nil
	}

	return m, nil
}

func (m Model) setNotice(text string, isError bool) (Model, tea.Cmd) {
	m.notice = text
	m.noticeIsError = isError
	m.noticeTransient = true
	return m, clearNoticeCmd()
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyCtrlC {
		return m.quit()
	}
	if m.entering {
		return m.handleEntryKey(msg)
	}

	switch key {
	case KeyQuit, KeyQuitUpper:
		return m.quit()

	case KeyTab:
		if m.focus == FocusInput {
			m.focus = FocusOutput
		} else {
			m.focus = FocusInput
		}
		return m, nil

	case KeyJ, KeyDown:
		if n := len(m.devicesFor(m.focus)); m.cursor[m.focus] < n-1 {
			m.cursor[m.focus]++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.cursor[m.focus] > 0 {
			m.cursor[m.focus]--
		}
		return m, nil

	case KeyEnter:
		devices := m.devicesFor(m.focus)
		if len(devices) == 0 {
			return m, nil
		}
		return m.selectDevice(m.focus.kind(), devices[m.cursor[m.focus]].ID)

	case KeyEnterID:
		m.entering = true
		m.idInput.Reset()
		m.idInput.Placeholder = string(m.focus.kind()) + " device"
		return m, m.idInput.Focus()

	case KeyCopy:
		questions := m.ctrl.View().Metrics.Questions
		if len(questions) == 0 {
			return m.setNotice("No suggested questions to copy", false)
		}
		return m, copyQuestionsCmd(m.copyText, questions)
	}

	return m, nil
}

func (m Model) handleEntryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEsc:
		m.entering = false
		m.idInput.Blur()
		return m, nil

	case KeyEnter:
		raw := strings.TrimSpace(m.idInput.Value())
		m.entering = false
		m.idInput.Blur()
		id, err := strconv.Atoi(raw)
		if err != nil || id < 0 {
			return m.setNotice(fmt.Sprintf("Invalid device ID %q", raw), true)
		}
		return m.selectDevice(m.focus.kind(), id)
	}

	var cmd tea.Cmd
	m.idInput, cmd = m.idInput.Update(msg)
	return m, cmd
}

func (m Model) selectDevice(kind backend.DeviceKind, id int) (tea.Model, tea.Cmd) {
	if err := m.ctrl.SelectDevice(kind, id); err != nil {
		return m.setNotice(err.Error(), true)
	}
	if state := m.ctrl.View().ConnState; state != backend.Open {
		return m.setNotice(fmt.Sprintf("%s device %d selected (not sent, stream %s)", kind, id, state), false)
	}
	return m.setNotice(fmt.Sprintf("%s device %d selected", kind, id), false)
}

// quit tears the session down. The stream close may still be running when
// the program exits; the caller finishes it with Controller.Close.
func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	return m, tea.Batch(m.ctrl.Teardown(), tea.Quit)
}

func (m Model) devicesFor(f PickerFocus) []backend.AudioDevice {
	v := m.ctrl.View()
	if f == FocusOutput {
		return v.Devices.Outputs
	}
	return v.Devices.Inputs
}

func (m *Model) clampCursors() {
	for _, f := range []PickerFocus{FocusInput, FocusOutput} {
		n := len(m.devicesFor(f))
		if m.cursor[f] >= n {
			m.cursor[f] = max(0, n-1)
		}
	}
}

// View renders the full TUI.
func (m Model) View() string {
	if m.headless || m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Initializing..."
	}

	v := m.ctrl.View()
	if v.Loading {
		return m.renderLoading()
	}

	var sections []string
	sections = append(sections, m.renderHeader(v))
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderBanners(v)...)
	sections = append(sections, m.renderDevices(v))
	sections = append(sections, "")
	sections = append(sections, m.renderMetrics(v.Metrics))
	sections = append(sections, "")
	sections = append(sections, m.renderTrend(v.Metrics))
	sections = append(sections, "")
	sections = append(sections, m.renderQuestions(v.Metrics))
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.entering {
		sections = append(sections, m.idInput.View())
	}
	if m.notice != "" {
		sections = append(sections, m.renderNotice())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderLoading() string {
	line := m.spinner.View() + " " + ui.DimStyle.Render("Connecting to speaker assistant backend...")
	return lipgloss.Place(m.width, max(3, m.height), lipgloss.Center, lipgloss.Center, line)
}

func (m Model) renderHeader(v session.View) string {
	title := ui.TitleStyle.Render("SPEAKER ASSISTANT")

	var badge string
	switch v.ConnState {
	case backend.Connecting:
		badge = ui.BadgeConnectingStyle.Render("◌ CONNECTING")
	case backend.Open:
		badge = ui.BadgeLiveStyle.Render("● LIVE")
	case backend.Closed:
		badge = ui.BadgeClosedStyle.Render("○ CLOSED")
	case backend.Errored:
		badge = ui.BadgeErrorStyle.Render("✕ ERROR")
	}

	id := v.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return title + "  " + badge + ui.DimStyle.Render("  session "+id)
}

func (m Model) renderBanners(v session.View) []string {
	var lines []string
	if v.DiscoveryErr != nil {
		lines = append(lines, ui.ErrorStyle.Render("Device discovery failed: ")+
			ui.ErrorTextStyle.Render(truncateToWidth(v.DiscoveryErr.Error(), max(10, m.width-25))))
	}
	switch v.ConnState {
	case backend.Errored:
		msg := "connection lost"
		if v.ConnErr != nil {
			msg = v.ConnErr.Error()
		}
		lines = append(lines, ui.ErrorStyle.Render("Connection error: ")+
			ui.ErrorTextStyle.Render(truncateToWidth(msg, max(10, m.width-18))))
	case backend.Closed:
		lines = append(lines, ui.DimStyle.Render("Connection closed. Restart to reconnect."))
	}
	return lines
}

func (m Model) devicePanelWidth() int {
	return max(24, (m.width-3)/2)
}

func (m Model) renderDevices(v session.View) string {
	w := m.devicePanelWidth()
	left := m.renderPicker(FocusInput, "INPUT DEVICE", v.Devices.Inputs, v.Selection, w)
	right := m.renderPicker(FocusOutput, "OUTPUT DEVICE", v.Devices.Outputs, v.Selection, w)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, ui.DividerStyle.Render(" │ "), right)
}

func (m Model) renderPicker(f PickerFocus, title string, devices []backend.AudioDevice, sel session.Selection, width int) string {
	var header string
	if m.focus == f {
		header = ui.PanelTitleActiveStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{padRight(header, width)}
	selected, isSet := sel.Get(f.kind())
	listed := false

	if len(devices) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No devices"))
	}
	for i, d := range devices {
		mark := "○"
		if isSet && d.ID == selected {
			mark = ui.ActiveDeviceStyle.Render("●")
			listed = true
		}
		label := d.Name + " " + ui.DimStyle.Render(deviceDetail(d))

		var line string
		if m.focus == f && i == m.cursor[f] {
			line = ui.SelectedStyle.Render("> ") + mark + " " + ui.SelectedStyle.Render(d.Name) + " " + ui.DimStyle.Render(deviceDetail(d))
		} else {
			line = "  " + mark + " " + label
		}
		lines = append(lines, padRight(truncateToWidth(line, width), width))
	}
	if isSet && !listed {
		lines = append(lines, ui.ActiveDeviceStyle.Render(fmt.Sprintf("  ● ID %d", selected))+ui.DimStyle.Render(" (not listed)"))
	}
	return strings.Join(lines, "\n")
}

func deviceDetail(d backend.AudioDevice) string {
	detail := fmt.Sprintf("(%dch", d.Channels)
	if d.SampleRate > 0 {
		detail += fmt.Sprintf(", %gkHz", float64(d.SampleRate)/1000)
	}
	return detail + ")"
}

func (m Model) renderMetrics(st metrics.State) string {
	lines := []string{ui.PanelTitleStyle.Render("SPEAKING METRICS")}
	lines = append(lines,
		"  Filler Words (10min): "+ui.ValueStyle.Render(strconv.Itoa(st.Snapshot.FillerWords)),
		"  Speaking Time:        "+ui.ValueStyle.Render(ui.Minutes(st.Snapshot.SpeakingTime)),
		"  Engagement Score:     "+ui.ValueStyle.Render(ui.Percent(st.Snapshot.EngagementScore)),
	)
	if !st.HasData() {
		lines = append(lines, ui.DimStyle.Render("  Waiting for the first analysis..."))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderTrend(st metrics.State) string {
	lines := []string{ui.PanelTitleStyle.Render("FILLER WORDS OVER TIME")}
	for _, row := range ui.Sparkline(st.History, metrics.HistoryCapacity, sparkHeight) {
		lines = append(lines, "  "+row)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderQuestions(st metrics.State) string {
	lines := []string{ui.PanelTitleStyle.Render(fmt.Sprintf("SUGGESTED QUESTIONS (%d)", len(st.Questions)))}
	if len(st.Questions) == 0 {
		lines = append(lines, ui.DimStyle.Render("  None yet"))
	}
	textWidth := max(10, m.width-6)
	for _, q := range st.Questions {
		wrapped := wrapText(q, textWidth)
		lines = append(lines, "  • "+wrapped[0])
		for _, wl := range wrapped[1:] {
			lines = append(lines, "    "+wl)
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderNotice() string {
	if m.noticeIsError {
		return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.notice)
	}
	return ui.NoticeStyle.Render(m.notice)
}

func (m Model) renderFooter() string {
	var parts []string
	if m.entering {
		parts = append(parts, ui.FooterKeyStyle.Render("Enter")+ui.FooterDescStyle.Render(" Send"))
		parts = append(parts, ui.FooterKeyStyle.Render("Esc")+ui.FooterDescStyle.Render(" Cancel"))
		return strings.Join(parts, "  ")
	}

	parts = append(parts, ui.FooterKeyStyle.Render("Tab")+ui.FooterDescStyle.Render(" Picker"))
	parts = append(parts, ui.FooterKeyStyle.Render("j/k")+ui.FooterDescStyle.Render(" Nav"))
	parts = append(parts, ui.FooterKeyStyle.Render("Enter")+ui.FooterDescStyle.Render(" Select"))
	parts = append(parts, ui.FooterKeyStyle.Render("d")+ui.FooterDescStyle.Render(" Device ID"))
	parts = append(parts, ui.FooterKeyStyle.Render("c")+ui.FooterDescStyle.Render(" Copy"))
	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// truncateToWidth cuts s to width cells without splitting escape sequences.
func truncateToWidth(s string, width int) string {
	return ansi.Truncate(s, width, "…")
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
