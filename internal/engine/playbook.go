package engine

import (
	"slices"

	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

const (
	PlayRun       = "run"
	PlayPass      = "pass"
	PlayPunt      = "punt"
	PlayFieldGoal = "field_goal"
	PlayKneel     = "kneel"
	PlaySpike     = "spike"
)

// ValidatePlayCall checks call against the plays the server last offered.
func ValidatePlayCall(s Session, call types.PlayCall) error {
	if !s.AwaitingInput {
		return ErrNotAwaitingInput
	}

	i := slices.IndexFunc(s.LegalPlays, func(o types.PlayOption) bool {
		return o.PlayType == call.PlayType
	})
	if i < 0 {
		return ErrIllegalPlayCall
	}
	opt := s.LegalPlays[i]

	if !variantAllowed(opt.RunTypes, call.RunType) || !variantAllowed(opt.PassTypes, call.PassType) {
		return ErrIllegalPlayCall
	}
	return nil
}

// An option with variants requires one of them; an option without variants
// accepts none.
func variantAllowed(allowed []string, got string) bool {
	if len(allowed) == 0 {
		return got == ""
	}
	return slices.Contains(allowed, got)
}
