package types

// Server -> Client
// state_sync:          { game_state, home_team, away_team }
// play_completed:      { quarter, time_remaining, home_score, away_score, result,
//                        down, yards_to_go, field_position, line_of_scrimmage,
//                        first_down_marker, offense_is_home }   every field optional
// scoring:             { home_score, away_score, team_id, points, description }
// turnover:            { offense_is_home, field_position, kind, description }
// quarter_end:         { quarter, home_score, away_score }
// game_end:            { home_score, away_score, winner_id, is_tie }
// awaiting_play_call:  { down_state, available_plays }
// error:               { message, code }
//
// Client -> Server
// pause, resume, request_sync: {}
// set_pacing:          { pacing }
// play_call:           { play_type, run_type?, pass_type? }

type MessageType string

const (
	MsgStateSync        MessageType = "state_sync"
	MsgPlayCompleted    MessageType = "play_completed"
	MsgScoring          MessageType = "scoring"
	MsgTurnover         MessageType = "turnover"
	MsgQuarterEnd       MessageType = "quarter_end"
	MsgGameEnd          MessageType = "game_end"
	MsgAwaitingPlayCall MessageType = "awaiting_play_call"
	MsgError            MessageType = "error"

	MsgPause       MessageType = "pause"
	MsgResume      MessageType = "resume"
	MsgSetPacing   MessageType = "set_pacing"
	MsgPlayCall    MessageType = "play_call"
	MsgRequestSync MessageType = "request_sync"
)

// Message is anything that travels inside an Envelope.
type Message interface {
	Type() MessageType
}

// ServerMessage is the closed set of frames the simulation server sends.
type ServerMessage interface {
	Message
	isServerMessage()
}

// ClientMessage is the closed set of frames the viewer sends.
type ClientMessage interface {
	Message
	isClientMessage()
}

type StateSync GameSnapshot

// PlayCompleted is a delta: nil fields were not sent and must not be merged.
type PlayCompleted struct {
	Quarter         *int        `json:"quarter,omitempty"`
	TimeRemaining   *int        `json:"time_remaining,omitempty"`
	HomeScore       *int        `json:"home_score,omitempty"`
	AwayScore       *int        `json:"away_score,omitempty"`
	Result          *PlayResult `json:"result,omitempty"`
	Down            *int        `json:"down,omitempty"`
	YardsToGo       *int        `json:"yards_to_go,omitempty"`
	FieldPosition   *int        `json:"field_position,omitempty"`
	LineOfScrimmage *int        `json:"line_of_scrimmage,omitempty"`
	FirstDownMarker *int        `json:"first_down_marker,omitempty"`
	OffenseIsHome   *bool       `json:"offense_is_home,omitempty"`
}

type Scoring struct {
	HomeScore   *int   `json:"home_score,omitempty"`
	AwayScore   *int   `json:"away_score,omitempty"`
	TeamID      string `json:"team_id,omitempty"`
	Points      int    `json:"points,omitempty"`
	Description string `json:"description,omitempty"`
}

type Turnover struct {
	OffenseIsHome *bool  `json:"offense_is_home,omitempty"`
	FieldPosition *int   `json:"field_position,omitempty"`
	Kind          string `json:"kind,omitempty"` // "interception" | "fumble" | "downs"
	Description   string `json:"description,omitempty"`
}

type QuarterEnd struct {
	Quarter   int `json:"quarter"`
	HomeScore int `json:"home_score"`
	AwayScore int `json:"away_score"`
}

type GameEnd struct {
	HomeScore int    `json:"home_score"`
	AwayScore int    `json:"away_score"`
	WinnerID  string `json:"winner_id,omitempty"`
	IsTie     bool   `json:"is_tie"`
}

type AwaitingPlayCall struct {
	DownState      DownState    `json:"down_state"`
	AvailablePlays []PlayOption `json:"available_plays"`
}

type ServerError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (StateSync) Type() MessageType        { return MsgStateSync }
func (PlayCompleted) Type() MessageType    { return MsgPlayCompleted }
func (Scoring) Type() MessageType          { return MsgScoring }
func (Turnover) Type() MessageType         { return MsgTurnover }
func (QuarterEnd) Type() MessageType       { return MsgQuarterEnd }
func (GameEnd) Type() MessageType          { return MsgGameEnd }
func (AwaitingPlayCall) Type() MessageType { return MsgAwaitingPlayCall }
func (ServerError) Type() MessageType      { return MsgError }

func (StateSync) isServerMessage()        {}
func (PlayCompleted) isServerMessage()    {}
func (Scoring) isServerMessage()          {}
func (Turnover) isServerMessage()         {}
func (QuarterEnd) isServerMessage()       {}
func (GameEnd) isServerMessage()          {}
func (AwaitingPlayCall) isServerMessage() {}
func (ServerError) isServerMessage()      {}

type Pause struct{}

type Resume struct{}

type SetPacing struct {
	Pacing string `json:"pacing"`
}

type PlayCall struct {
	PlayType string `json:"play_type"`
	RunType  string `json:"run_type,omitempty"`
	PassType string `json:"pass_type,omitempty"`
}

type RequestSync struct{}

func (Pause) Type() MessageType       { return MsgPause }
func (Resume) Type() MessageType      { return MsgResume }
func (SetPacing) Type() MessageType   { return MsgSetPacing }
func (PlayCall) Type() MessageType    { return MsgPlayCall }
func (RequestSync) Type() MessageType { return MsgRequestSync }

func (Pause) isClientMessage()       {}
func (Resume) isClientMessage()      {}
func (SetPacing) isClientMessage()   {}
func (PlayCall) isClientMessage()    {}
func (RequestSync) isClientMessage() {}
