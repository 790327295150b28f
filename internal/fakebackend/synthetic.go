package fakebackend

import (
	"context"
	"time"

	"github.com/yacekmm/SpeakerAssistant/internal/backend"
)

var syntheticQuestions = [][]string{
	{"What are your thoughts on this topic?"},
	{"Can anyone share an example from their own work?", "What would you do differently?"},
	{},
	{"Which part was the least clear so far?"},
}

// SyntheticAnalysis returns the i-th frame of a deterministic session:
// speaking time grows by step each tick and the filler count cycles.
func SyntheticAnalysis(i int, step time.Duration) (backend.Snapshot, []string) {
	snap := backend.Snapshot{
		FillerWords:     (i*7 + 3) % 11,
		SpeakingTime:    int((time.Duration(i+1) * step).Seconds()),
		EngagementScore: float64(55 + (i*13)%45),
	}
	return snap, syntheticQuestions[i%len(syntheticQuestions)]
}

// RunSynthetic pushes one synthetic analysis frame to all clients every
// interval until ctx is done.
func (s *Server) RunSynthetic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if s.Clients() == 0 {
			continue
		}
		snap, questions := SyntheticAnalysis(i, interval)
		if err := s.SendAnalysis(snap, questions); err != nil {
			s.log.Debug().Err(err).Msg("synthetic send failed")
		}
	}
}
