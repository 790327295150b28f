package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/yacekmm/SpeakerAssistant/internal/backend"
)

func TestNewModel(t *testing.T) {
	m, _ := newTestModel(t, stubCatalog{})
	m.width = 0
	if m.focus != FocusInput {
		t.Error("new model should focus the input picker")
	}
	if m.entering {
		t.Error("new model should not be entering a device ID")
	}
	if m.View() != "Initializing..." {
		t.Errorf("view before WindowSizeMsg = %q", m.View())
	}
}

func TestLoadingView(t *testing.T) {
	m, _ := newTestModel(t, stubCatalog{})
	m.Init()

	if !strings.Contains(m.View(), "Connecting to speaker assistant backend") {
		t.Errorf("loading view = %q", m.View())
	}
}

func TestWindowSize(t *testing.T) {
	m, _ := newTestModel(t, stubCatalog{})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 50})
	model := updated.(Model)
	if model.width != 120 || model.height != 50 {
		t.Errorf("size = %dx%d", model.width, model.height)
	}
}

func TestDashboardShowsAnalysis(t *testing.T) {
	m, stream, l := startLive(t)

	stream.push(backend.StreamEvent{
		Kind: backend.EventAnalysis,
		Analysis: backend.Analysis{
			Snapshot:  backend.Snapshot{FillerWords: 5, SpeakingTime: 120, EngagementScore: 85},
			Questions: []string{"What are your thoughts on this topic?"},
		},
		State: backend.Open,
	})
	m = l.pump(m, nil, hasAnalysis)

	view := m.View()
	for _, want := range []string{
		"SPEAKER ASSISTANT", "LIVE",
		"Filler Words (10min): 5", "2 minutes", "85%",
		"What are your thoughts on this topic?",
		"Built-in Microphone", "USB Podcast Mic", "48kHz", "10m",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestDiscoveryFailureBanner(t *testing.T) {
	m, stream := newTestModel(t, stubCatalog{err: &backend.DiscoveryError{Op: "status", URL: "http://x", Err: errors.New("503")}})
	stream.push(backend.StreamEvent{Kind: backend.EventOpen, State: backend.Open})
	m = newLoop(t).pump(m, m.Init(), loaded)

	view := m.View()
	if !strings.Contains(view, "Device discovery failed") {
		t.Error("discovery banner should be shown")
	}
	if !strings.Contains(view, "No devices") {
		t.Error("pickers should be empty")
	}
	if !strings.Contains(view, "LIVE") {
		t.Error("stream should still be live")
	}
}

func TestConnectionErrorBanner(t *testing.T) {
	m, stream := newTestModel(t, stubCatalog{list: testDevices()})
	stream.push(backend.StreamEvent{
		Kind:  backend.EventError,
		Err:   &backend.StreamError{Kind: backend.TransportError, Err: errors.New("connection refused")},
		State: backend.Errored,
	})
	m = newLoop(t).pump(m, m.Init(), loaded)

	view := m.View()
	if !strings.Contains(view, "Connection error") || !strings.Contains(view, "connection refused") {
		t.Errorf("view should show the connection banner:\n%s", view)
	}
	if !strings.Contains(view, "ERROR") {
		t.Error("badge should show ERROR")
	}
}

func TestTabTogglesFocus(t *testing.T) {
	m, _, _ := startLive(t)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != FocusOutput {
		t.Error("tab should switch to the output picker")
	}
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != FocusInput {
		t.Error("tab again should switch back to input")
	}
}

func TestPickerNavigation(t *testing.T) {
	m, _, _ := startLive(t)

	m, _ = press(m, key('j'))
	if m.cursor[FocusInput] != 1 {
		t.Errorf("after j, cursor = %d, want 1", m.cursor[FocusInput])
	}
	m, _ = press(m, key('j'))
	if m.cursor[FocusInput] != 1 {
		t.Errorf("j at the end should stay, cursor = %d", m.cursor[FocusInput])
	}
	m, _ = press(m, key('k'))
	if m.cursor[FocusInput] != 0 {
		t.Errorf("after k, cursor = %d, want 0", m.cursor[FocusInput])
	}
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyUp})
	if m.cursor[FocusInput] != 0 {
		t.Errorf("up at the top should stay, cursor = %d", m.cursor[FocusInput])
	}
}

func TestEnterSelectsDevice(t *testing.T) {
	m, stream, _ := startLive(t)

	m, _ = press(m, key('j'))
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})

	sent := stream.sentCommands()
	if len(sent) != 1 || sent[0] != backend.NewDeviceChange(backend.DeviceInput, 2) {
		t.Fatalf("sent = %+v, want input 2", sent)
	}
	if id, ok := m.ctrl.View().Selection.Get(backend.DeviceInput); !ok || id != 2 {
		t.Errorf("selection = %d/%v", id, ok)
	}
	if cmd == nil || !strings.Contains(m.notice, "input device 2 selected") {
		t.Errorf("notice = %q, want a transient confirmation", m.notice)
	}
}

func TestSelectWhileClosedIsLocalOnly(t *testing.T) {
	m, stream, l := startLive(t)
	stream.push(backend.StreamEvent{Kind: backend.EventClose, State: backend.Closed})
	m = l.pump(m, nil, func(m Model) bool { return m.ctrl.View().ConnState == backend.Closed })

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(stream.sentCommands()) != 0 {
		t.Error("nothing should be sent while closed")
	}
	if id, ok := m.ctrl.View().Selection.Get(backend.DeviceOutput); !ok || id != 1 {
		t.Errorf("selection = %d/%v, want output 1", id, ok)
	}
	if !strings.Contains(m.notice, "not sent") {
		t.Errorf("notice = %q", m.notice)
	}
	if !strings.Contains(m.View(), "Connection closed") {
		t.Error("closed banner should be shown")
	}
}

func TestRawDeviceIDEntry(t *testing.T) {
	m, stream, _ := startLive(t)

	m, _ = press(m, key('d'))
	if !m.entering {
		t.Fatal("d should open the device ID input")
	}
	m, _ = press(m, key('4'))
	m, _ = press(m, key('2'))
	m, _ = press(m, key('q'))
	if m.quitting {
		t.Fatal("q while typing should not quit")
	}
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyBackspace})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.entering {
		t.Error("enter should close the input")
	}
	sent := stream.sentCommands()
	if len(sent) != 1 || sent[0].DeviceID != 42 {
		t.Fatalf("sent = %+v, want unlisted ID 42 forwarded", sent)
	}
	if !strings.Contains(m.View(), "ID 42") {
		t.Error("unlisted selection should be shown")
	}
}

func TestRawDeviceIDInvalid(t *testing.T) {
	m, stream, _ := startLive(t)

	m, _ = press(m, key('d'))
	m, _ = press(m, key('x'))
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})

	if !m.noticeIsError || cmd == nil {
		t.Errorf("invalid ID should raise a transient error, notice = %q", m.notice)
	}
	if _, ok := m.ctrl.View().Selection.Get(backend.DeviceInput); ok {
		t.Error("invalid ID should not change the selection")
	}
	if len(stream.sentCommands()) != 0 {
		t.Error("invalid ID should not be sent")
	}
}

func TestEscCancelsEntry(t *testing.T) {
	m, stream, _ := startLive(t)

	m, _ = press(m, key('d'))
	m, _ = press(m, key('7'))
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEsc})

	if m.entering {
		t.Error("esc should close the input")
	}
	if len(stream.sentCommands()) != 0 {
		t.Error("esc should not send anything")
	}
}

func TestCopyQuestions(t *testing.T) {
	var copied string
	m, stream, l := startLive(t, WithClipboard(func(s string) error {
		copied = s
		return nil
	}))
	stream.push(backend.StreamEvent{
		Kind:     backend.EventAnalysis,
		Analysis: backend.Analysis{Questions: []string{"First?", "Second?"}},
		State:    backend.Open,
	})
	m = l.pump(m, nil, hasAnalysis)

	m, cmd := press(m, key('c'))
	if cmd == nil {
		t.Fatal("c should return a copy command")
	}
	updated, _ := m.Update(cmd())
	m = updated.(Model)

	if copied != "First?\nSecond?" {
		t.Errorf("copied = %q", copied)
	}
	if m.notice != "Copied 2 questions to clipboard" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestCopyWithoutQuestions(t *testing.T) {
	called := false
	m, _, _ := startLive(t, WithClipboard(func(string) error {
		called = true
		return nil
	}))

	m, _ = press(m, key('c'))
	if called {
		t.Error("clipboard should not be touched without questions")
	}
	if !strings.Contains(m.notice, "No suggested questions") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestClipboardFailure(t *testing.T) {
	m, _, _ := startLive(t)
	updated, cmd := m.Update(ClipboardResultMsg{Count: 1, Err: errors.New("no clipboard utility")})
	model := updated.(Model)
	if !model.noticeIsError || !strings.Contains(model.notice, "no clipboard utility") {
		t.Errorf("notice = %q", model.notice)
	}
	if cmd == nil {
		t.Error("failure notice should clear itself")
	}
}

func TestClearNotice(t *testing.T) {
	m, _, _ := startLive(t)
	m.notice = "test notice"
	m.noticeTransient = true

	updated, _ := m.Update(ClearNoticeMsg{})
	if updated.(Model).notice != "" {
		t.Error("transient notice should be cleared")
	}

	m.noticeTransient = false
	updated, _ = m.Update(ClearNoticeMsg{})
	if updated.(Model).notice != "test notice" {
		t.Error("persistent notice should stay")
	}
}

func TestQuitTearsDown(t *testing.T) {
	m, stream, _ := startLive(t)

	m, cmd := press(m, key('q'))
	if cmd == nil {
		t.Fatal("q should return tea.Quit")
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}
	if stream.closeCount() != 0 {
		t.Error("stream should be closed by the returned command, not in Update")
	}
	if !hasQuit(runCmd(cmd)) {
		t.Error("q should quit")
	}
	if stream.closeCount() != 1 {
		t.Errorf("stream closed %d times, want 1", stream.closeCount())
	}
}

func TestCtrlCQuitsWhileEntering(t *testing.T) {
	m, stream, _ := startLive(t)
	m, _ = press(m, key('d'))
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil || !m.quitting {
		t.Fatal("ctrl+c should always quit")
	}
	if !hasQuit(runCmd(cmd)) {
		t.Error("ctrl+c should quit")
	}
	if stream.closeCount() != 1 {
		t.Errorf("stream closed %d times, want 1", stream.closeCount())
	}
}

func TestHeadlessIgnoresKeys(t *testing.T) {
	m, stream, l := startLive(t, WithHeadless())

	m, cmd := press(m, key('q'))
	if cmd != nil || m.quitting {
		t.Error("headless model should ignore keys")
	}
	if m.View() != "" {
		t.Error("headless model should not render")
	}

	stream.push(backend.StreamEvent{Kind: backend.EventClose, State: backend.Closed})
	m = l.pump(m, nil, func(m Model) bool { return m.quitting })

	deadline := time.Now().Add(3 * time.Second)
	for stream.closeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if stream.closeCount() != 1 {
		t.Errorf("stream closed %d times, want 1", stream.closeCount())
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("What are your thoughts on this topic?", 12)
	for _, l := range lines {
		if len(l) > 12 {
			t.Errorf("line %q longer than 12", l)
		}
	}
	if strings.Join(lines, " ") != "What are your thoughts on this topic?" {
		t.Errorf("lines = %q", lines)
	}
}

func TestTruncateStyledLine(t *testing.T) {
	line := "\x1b[1mUSB Podcast Mic\x1b[0m (1ch)"

	got := truncateToWidth(line, 6)
	if ansi.StringWidth(got) > 6 {
		t.Errorf("width = %d, want <= 6", ansi.StringWidth(got))
	}
	if plain := ansi.Strip(got); plain != "USB P…" {
		t.Errorf("visible text = %q, want %q", plain, "USB P…")
	}
	if !strings.HasPrefix(got, "\x1b[1m") {
		t.Errorf("leading style lost: %q", got)
	}
	if truncateToWidth("short", 10) != "short" {
		t.Error("short strings should be unchanged")
	}
}
