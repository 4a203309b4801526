package engine

import (
	"fmt"
	"slices"

	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// FormatClock renders seconds as m:ss. Negative input clamps to 0:00.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Clone deep-copies s so the result shares no mutable memory with it.
func Clone(s Session) Session {
	out := s
	if s.State != nil {
		gs := *s.State
		out.State = &gs
	}
	if s.Prompt != nil {
		p := *s.Prompt
		out.Prompt = &p
	}
	out.PlayLog = slices.Clone(s.PlayLog)
	out.LegalPlays = clonePlays(s.LegalPlays)
	return out
}

func clonePlays(in []types.PlayOption) []types.PlayOption {
	if in == nil {
		return nil
	}
	out := make([]types.PlayOption, len(in))
	for i, p := range in {
		out[i] = p
		out[i].RunTypes = slices.Clone(p.RunTypes)
		out[i].PassTypes = slices.Clone(p.PassTypes)
	}
	return out
}
