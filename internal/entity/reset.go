package entity

import "github.com/DoyleJ11/gridiron-viewer/pkg/types"

type ResetReason string

const (
	ResetNone               ResetReason = ""
	ResetRewind             ResetReason = "tick_rewind"
	ResetQuarterbackChanged ResetReason = "quarterback_changed"
	ResetBlockersDisjoint   ResetReason = "blockers_disjoint"
	ResetRushersDisjoint    ResetReason = "rushers_disjoint"
)

// DetectReset decides whether cur belongs to a different run than prev.
// The upstream never says so explicitly, so identity continuity is inferred
// and the checks lean towards clearing.
//
// Any overlap between ID sets counts as the same run. A new run that happens
// to reuse some blocker and rusher IDs with an unchanged quarterback will not
// be detected.
func DetectReset(prev, cur *types.Tick) (ResetReason, bool) {
	if prev == nil || cur == nil {
		return ResetNone, false
	}
	if cur.Index < prev.Index {
		return ResetRewind, true
	}
	if p, c := prev.QuarterbackID(), cur.QuarterbackID(); p != "" && c != "" && p != c {
		return ResetQuarterbackChanged, true
	}
	if disjoint(prev.BlockerIDs(), cur.BlockerIDs()) {
		return ResetBlockersDisjoint, true
	}
	if disjoint(prev.RusherIDs(), cur.RusherIDs()) {
		return ResetRushersDisjoint, true
	}
	return ResetNone, false
}

// disjoint is false when either side is empty.
func disjoint(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return false
		}
	}
	return true
}
