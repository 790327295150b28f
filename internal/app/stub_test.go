package app

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/yacekmm/SpeakerAssistant/internal/backend"
	"github.com/yacekmm/SpeakerAssistant/internal/session"
)

type stubCatalog struct {
	list backend.DeviceList
	err  error
}

func (c stubCatalog) FetchDevices(context.Context) (backend.DeviceList, error) {
	return c.list, c.err
}

type stubStream struct {
	mu     sync.Mutex
	events chan backend.StreamEvent
	state  backend.ConnState
	sent   []backend.DeviceChangeCommand
	closes int
}

func newStubStream() *stubStream {
	return &stubStream{events: make(chan backend.StreamEvent, 32), state: backend.Connecting}
}

func (s *stubStream) Events() <-chan backend.StreamEvent { return s.events }

func (s *stubStream) State() backend.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubStream) Send(cmd backend.DeviceChangeCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != backend.Open {
		return backend.ErrNotOpen
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *stubStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		if !s.state.Terminal() {
			s.state = backend.Closed
		}
		close(s.events)
	}
	return nil
}

// push queues an event and mirrors its state the way a real stream would.
func (s *stubStream) push(ev backend.StreamEvent) {
	s.mu.Lock()
	s.state = ev.State
	s.mu.Unlock()
	s.events <- ev
}

func (s *stubStream) sentCommands() []backend.DeviceChangeCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.DeviceChangeCommand(nil), s.sent...)
}

func (s *stubStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func testDevices() backend.DeviceList {
	return backend.DeviceList{
		Inputs: []backend.AudioDevice{
			{ID: 0, Name: "Built-in Microphone", Channels: 1, SampleRate: 48000},
			{ID: 2, Name: "USB Podcast Mic", Channels: 1, SampleRate: 44100},
		},
		Outputs: []backend.AudioDevice{
			{ID: 1, Name: "Built-in Speakers", Channels: 2, SampleRate: 48000},
		},
	}
}

func newTestModel(t *testing.T, cat stubCatalog, opts ...Option) (Model, *stubStream) {
	t.Helper()
	stream := newStubStream()
	ctrl := session.New(cat, func(context.Context) session.Stream { return stream })
	t.Cleanup(ctrl.Close)
	m := New(ctrl, opts...)
	m.width = 100
	m.height = 40
	return m, stream
}

// loop runs commands the way a tea.Program would. Commands left blocked by
// one pump keep delivering into the same channel for the next.
type loop struct {
	t    *testing.T
	msgs chan tea.Msg
}

func newLoop(t *testing.T) *loop {
	return &loop{t: t, msgs: make(chan tea.Msg, 64)}
}

func (l *loop) exec(c tea.Cmd) {
	if c == nil {
		return
	}
	go func() {
		msg := c()
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, bc := range batch {
				l.exec(bc)
			}
			return
		}
		if msg == nil {
			return
		}
		select {
		case l.msgs <- msg:
		case <-time.After(5 * time.Second):
		}
	}()
}

// pump feeds results into m until done reports true.
func (l *loop) pump(m Model, cmd tea.Cmd, done func(Model) bool) Model {
	l.t.Helper()
	l.exec(cmd)
	timeout := time.After(3 * time.Second)
	for !done(m) {
		select {
		case msg := <-l.msgs:
			if _, ok := msg.(tea.QuitMsg); ok {
				continue
			}
			updated, next := m.Update(msg)
			m = updated.(Model)
			l.exec(next)
		case <-timeout:
			l.t.Fatal("timed out pumping model")
		}
	}
	return m
}

func loaded(m Model) bool { return !m.ctrl.Loading() }

func hasAnalysis(m Model) bool { return m.ctrl.View().Metrics.HasData() }

// startLive returns a model past loading with an open stream.
func startLive(t *testing.T, opts ...Option) (Model, *stubStream, *loop) {
	t.Helper()
	m, stream := newTestModel(t, stubCatalog{list: testDevices()}, opts...)
	stream.push(backend.StreamEvent{Kind: backend.EventOpen, State: backend.Open})
	l := newLoop(t)
	m = l.pump(m, m.Init(), loaded)
	return m, stream, l
}

// runCmd runs cmd and any batch it expands to in the calling goroutine.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var msgs []tea.Msg
		for _, c := range batch {
			msgs = append(msgs, runCmd(c)...)
		}
		return msgs
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

func hasQuit(msgs []tea.Msg) bool {
	for _, msg := range msgs {
		if _, ok := msg.(tea.QuitMsg); ok {
			return true
		}
	}
	return false
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func press(m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}
