package session

import (
	"context"
	"sync"

	"github.com/yacekmm/SpeakerAssistant/internal/backend"
)

type fakeCatalog struct {
	list  backend.DeviceList
	err   error
	calls int
}

func (f *fakeCatalog) FetchDevices(ctx context.Context) (backend.DeviceList, error) {
	f.calls++
	if f.err != nil {
		return backend.DeviceList{}, f.err
	}
	return f.list, nil
}

type fakeStream struct {
	mu      sync.Mutex
	events  chan backend.StreamEvent
	state   backend.ConnState
	sent    []backend.DeviceChangeCommand
	sendErr error
	closes  int

	// closeGate, when set, holds Close until it is closed.
	closeGate chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan backend.StreamEvent, 16), state: backend.Connecting}
}

func (f *fakeStream) Events() <-chan backend.StreamEvent { return f.events }

func (f *fakeStream) State() backend.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeStream) setState(s backend.ConnState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeStream) Send(cmd backend.DeviceChangeCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != backend.Open {
		return backend.ErrNotOpen
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeStream) Close() error {
	if f.closeGate != nil {
		<-f.closeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	if f.closes == 1 {
		if !f.state.Terminal() {
			f.state = backend.Closed
		}
		close(f.events)
	}
	return nil
}

func (f *fakeStream) sentCommands() []backend.DeviceChangeCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.DeviceChangeCommand(nil), f.sent...)
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
