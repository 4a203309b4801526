package engine

import (
	"errors"
	"slices"

	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

var ErrNoSnapshot = errors.New("no authoritative snapshot yet")
var ErrStaleSnapshot = errors.New("snapshot older than current state")
var ErrUnsupportedMessage = errors.New("unsupported message")
var ErrNotAwaitingInput = errors.New("server is not awaiting a play call")
var ErrIllegalPlayCall = errors.New("illegal play call")

// Session is everything the viewer knows about the game it is watching.
// State is nil until the first authoritative snapshot lands.
type Session struct {
	State         *types.GameState
	Home          types.Team
	Away          types.Team
	PlayLog       []PlayLogEntry
	AwaitingInput bool
	Prompt        *types.DownState
	LegalPlays    []types.PlayOption
	Notice        string
}

type PlayLogEntry struct {
	Seq           int    `json:"seq"`
	Quarter       int    `json:"quarter"`
	Clock         string `json:"clock"`
	Description   string `json:"description"`
	PlayType      string `json:"play_type,omitempty"`
	Yards         int    `json:"yards"`
	Down          int    `json:"down"`
	YardsToGo     int    `json:"yards_to_go"`
	OffenseIsHome bool   `json:"offense_is_home"`
	HomeScore     int    `json:"home_score"`
	AwayScore     int    `json:"away_score"`
	IsScoring     bool   `json:"is_scoring"`
	IsTurnover    bool   `json:"is_turnover"`
}

type EventType string

const (
	EvtSnapshotApplied EventType = "SnapshotApplied"
	EvtPlayLogged      EventType = "PlayLogged"
	EvtStateMerged     EventType = "StateMerged"
	EvtAwaitingInput   EventType = "AwaitingInput"
	EvtInputCleared    EventType = "InputCleared"
	EvtQuarterEnded    EventType = "QuarterEnded"
	EvtGameEnded       EventType = "GameEnded"
	EvtServerError     EventType = "ServerError"
)

type Event struct {
	Type   EventType
	Detail string
}

/*
	state_sync          -> SnapshotApplied (PlayLog cleared, prompt cleared)
	play_completed      -> PlayLogged -> StateMerged [-> InputCleared]
	scoring / turnover  -> StateMerged [-> InputCleared]
	quarter_end         -> StateMerged -> QuarterEnded
	game_end            -> StateMerged -> GameEnded [-> InputCleared]
	awaiting_play_call  -> AwaitingInput
	error               -> ServerError (state untouched)
*/

// Apply folds one server message into s. The input session is never modified;
// on error the returned session is s unchanged.
func Apply(s Session, msg types.ServerMessage) ([]Event, Session, error) {
	switch m := msg.(type) {
	case types.StateSync:
		if isStale(s.State, m.GameState) {
			return nil, s, ErrStaleSnapshot
		}
		gs := *m.GameState
		next := Session{
			State: &gs,
			Home:  m.HomeTeam,
			Away:  m.AwayTeam,
		}
		return []Event{{Type: EvtSnapshotApplied, Detail: gs.GameID}}, next, nil

	case types.ServerError:
		next := s
		next.Notice = m.Message
		return []Event{{Type: EvtServerError, Detail: m.Code}}, next, nil
	}

	if msg == nil {
		return nil, s, ErrUnsupportedMessage
	}
	if s.State == nil {
		return nil, s, ErrNoSnapshot
	}

	next := s
	gs := *s.State
	events := []Event{}

	switch m := msg.(type) {
	case types.PlayCompleted:
		gs = MergePlay(gs, m)
		entry := newPlayLogEntry(len(s.PlayLog)+1, gs, m.Result)
		next.PlayLog = append(slices.Clip(s.PlayLog), entry)
		events = append(events,
			Event{Type: EvtPlayLogged, Detail: entry.Description},
			Event{Type: EvtStateMerged},
		)
		events = clearInput(&next, events)

	case types.Scoring:
		setInt(&gs.HomeScore, m.HomeScore)
		setInt(&gs.AwayScore, m.AwayScore)
		events = append(events, Event{Type: EvtStateMerged, Detail: m.Description})
		events = clearInput(&next, events)

	case types.Turnover:
		setBool(&gs.OffenseIsHome, m.OffenseIsHome)
		setInt(&gs.FieldPosition, m.FieldPosition)
		events = append(events, Event{Type: EvtStateMerged, Detail: m.Kind})
		events = clearInput(&next, events)

	case types.QuarterEnd:
		gs.Quarter = m.Quarter
		gs.HomeScore = m.HomeScore
		gs.AwayScore = m.AwayScore
		events = append(events, Event{Type: EvtStateMerged}, Event{Type: EvtQuarterEnded})

	case types.GameEnd:
		gs.HomeScore = m.HomeScore
		gs.AwayScore = m.AwayScore
		gs.WinnerID = m.WinnerID
		gs.IsTie = m.IsTie
		gs.IsGameOver = true
		gs.Phase = types.PhaseFinal
		events = append(events, Event{Type: EvtStateMerged}, Event{Type: EvtGameEnded, Detail: m.WinnerID})
		events = clearInput(&next, events)

	case types.AwaitingPlayCall:
		prompt := m.DownState
		next.AwaitingInput = true
		next.Prompt = &prompt
		next.LegalPlays = clonePlays(m.AvailablePlays)
		return append(events, Event{Type: EvtAwaitingInput}), next, nil

	default:
		return nil, s, ErrUnsupportedMessage
	}

	next.State = &gs
	return events, next, nil
}

// MergePlay overwrites only the fields the delta actually carried.
func MergePlay(gs types.GameState, m types.PlayCompleted) types.GameState {
	setInt(&gs.Quarter, m.Quarter)
	setInt(&gs.TimeRemaining, m.TimeRemaining)
	setInt(&gs.HomeScore, m.HomeScore)
	setInt(&gs.AwayScore, m.AwayScore)
	setInt(&gs.Down, m.Down)
	setInt(&gs.YardsToGo, m.YardsToGo)
	setInt(&gs.FieldPosition, m.FieldPosition)
	setInt(&gs.LineOfScrimmage, m.LineOfScrimmage)
	setInt(&gs.FirstDownMarker, m.FirstDownMarker)
	setBool(&gs.OffenseIsHome, m.OffenseIsHome)
	return gs
}

func newPlayLogEntry(seq int, gs types.GameState, r *types.PlayResult) PlayLogEntry {
	e := PlayLogEntry{
		Seq:           seq,
		Quarter:       gs.Quarter,
		Clock:         FormatClock(gs.TimeRemaining),
		Down:          gs.Down,
		YardsToGo:     gs.YardsToGo,
		OffenseIsHome: gs.OffenseIsHome,
		HomeScore:     gs.HomeScore,
		AwayScore:     gs.AwayScore,
	}
	if r != nil {
		e.Description = r.Description
		e.PlayType = r.PlayType
		e.Yards = r.Yards
		e.IsScoring = r.IsScoring
		e.IsTurnover = r.IsTurnover
	}
	return e
}

func clearInput(s *Session, events []Event) []Event {
	if !s.AwaitingInput {
		return events
	}
	s.AwaitingInput = false
	s.Prompt = nil
	s.LegalPlays = nil
	return append(events, Event{Type: EvtInputCleared})
}

// isStale reports whether next would move the same game backwards.
func isStale(cur, next *types.GameState) bool {
	if cur == nil || next == nil {
		return false
	}
	if cur.GameID != next.GameID {
		return false
	}
	return cur.Version > 0 && next.Version > 0 && next.Version < cur.Version
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
