// Package metrics keeps the latest analysis snapshot and the rolling
// filler-word history shown in the trend panel.
package metrics

import "github.com/yacekmm/SpeakerAssistant/internal/backend"

// HistoryCapacity is the number of filler-word samples kept for the trend.
const HistoryCapacity = 10

// State is a read-only copy of a Buffer.
type State struct {
	Snapshot  backend.Snapshot
	Questions []string
	History   []int
	// Updates counts applied analysis events.
	Updates int
}

// HasData reports whether any analysis event has been applied.
func (s State) HasData() bool { return s.Updates > 0 }

// Buffer holds the latest analysis and a sliding window of filler-word
// counts. It is not safe for concurrent use; the owning controller mutates
// it from its event loop only.
type Buffer struct {
	snapshot  backend.Snapshot
	questions []string
	history   []int
	updates   int
}

func NewBuffer() *Buffer {
	return &Buffer{
		questions: []string{},
		history:   make([]int, 0, HistoryCapacity),
	}
}

// Apply replaces the snapshot and questions together and appends the filler
// count to the history, dropping the oldest sample beyond HistoryCapacity.
func (b *Buffer) Apply(snap backend.Snapshot, questions []string) {
	q := make([]string, len(questions))
	copy(q, questions)

	b.snapshot = snap
	b.questions = q
	if len(b.history) == HistoryCapacity {
		copy(b.history, b.history[1:])
		b.history = b.history[:HistoryCapacity-1]
	}
	b.history = append(b.history, snap.FillerWords)
	b.updates++
}

// Current returns a copy of the buffer contents.
func (b *Buffer) Current() State {
	q := make([]string, len(b.questions))
	copy(q, b.questions)
	h := make([]int, len(b.history))
	copy(h, b.history)
	return State{
		Snapshot:  b.snapshot,
		Questions: q,
		History:   h,
		Updates:   b.updates,
	}
}
