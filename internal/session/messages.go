package session

import "github.com/yacekmm/SpeakerAssistant/internal/backend"

// DevicesLoadedMsg carries the result of the one-time device discovery.
type DevicesLoadedMsg struct {
	Epoch   uint64
	Devices backend.DeviceList
	Err     error
}

// StreamEventMsg carries the next stream event. Closed is set when the event
// channel has been drained and closed.
type StreamEventMsg struct {
	Epoch  uint64
	Event  backend.StreamEvent
	Closed bool
}

// JournalErrorMsg reports a failed journal write.
type JournalErrorMsg struct {
	Epoch uint64
	Err   error
}
