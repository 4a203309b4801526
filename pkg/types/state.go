package types

// Phase is the coarse lifecycle stage of a simulated game.
type Phase string

const (
	PhasePregame    Phase = "pregame"
	PhaseInProgress Phase = "in_progress"
	PhaseHalftime   Phase = "halftime"
	PhaseFinal      Phase = "final"
)

// GameState is the authoritative snapshot of one game as published by the
// simulation server. Version is optional; zero means the server did not stamp it.
type GameState struct {
	GameID          string `json:"game_id"`
	Version         int64  `json:"version,omitempty"`
	Phase           Phase  `json:"phase"`
	Quarter         int    `json:"quarter"`
	TimeRemaining   int    `json:"time_remaining"` // seconds left in the quarter
	HomeScore       int    `json:"home_score"`
	AwayScore       int    `json:"away_score"`
	Down            int    `json:"down"`
	YardsToGo       int    `json:"yards_to_go"`
	FieldPosition   int    `json:"field_position"`
	LineOfScrimmage int    `json:"line_of_scrimmage"`
	FirstDownMarker int    `json:"first_down_marker"`
	OffenseIsHome   bool   `json:"offense_is_home"`
	HomeTimeouts    int    `json:"home_timeouts"`
	AwayTimeouts    int    `json:"away_timeouts"`
	IsPaused        bool   `json:"is_paused"`
	Pacing          string `json:"pacing,omitempty"`
	IsGameOver      bool   `json:"is_game_over"`
	WinnerID        string `json:"winner_id,omitempty"`
	IsTie           bool   `json:"is_tie,omitempty"`
}

type Team struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	City         string `json:"city,omitempty"`
	Abbreviation string `json:"abbreviation,omitempty"`
}

// GameSnapshot is the full-state payload shared by state_sync frames and every
// REST endpoint that mutates a game.
type GameSnapshot struct {
	GameState *GameState `json:"game_state"`
	HomeTeam  Team       `json:"home_team"`
	AwayTeam  Team       `json:"away_team"`
}

// DownState is the situation attached to a play-call prompt.
type DownState struct {
	Down          int  `json:"down"`
	YardsToGo     int  `json:"yards_to_go"`
	FieldPosition int  `json:"field_position"`
	OffenseIsHome bool `json:"offense_is_home"`
}

// PlayOption is one legal play family offered while the server awaits a call.
// Empty RunTypes/PassTypes mean the family takes no variant.
type PlayOption struct {
	PlayType  string   `json:"play_type"`
	Label     string   `json:"label,omitempty"`
	RunTypes  []string `json:"run_types,omitempty"`
	PassTypes []string `json:"pass_types,omitempty"`
}

type PlayResult struct {
	Description string `json:"description"`
	PlayType    string `json:"play_type,omitempty"`
	Yards       int    `json:"yards"`
	IsScoring   bool   `json:"is_scoring,omitempty"`
	IsTurnover  bool   `json:"is_turnover,omitempty"`
	IsFirstDown bool   `json:"is_first_down,omitempty"`
}
