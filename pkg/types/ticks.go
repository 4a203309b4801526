package types

// Tick wire shape, as returned by GET /api/games/{id}/plays/{play}/ticks:
//   tick:       ordinal within the run
//   ball:       { id?, x, y, height, state, carrier_id, path }   forward frame
//   qb:         Player                                          pocket frame
//   blockers:   Player[]                                        pocket frame
//   rushers:    Player[]                                        pocket frame
//   receivers:  Player[] (path = full route so far)             forward frame
//   defenders:  Player[]                                        forward frame
//
// x is the lateral axis, y the depth axis of the entity's frame. IDs are only
// unique within one run.

// DefaultBallID is used when a tick omits the ball's id.
const DefaultBallID = "ball"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Player struct {
	ID      string  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Label   string  `json:"label,omitempty"`
	State   string  `json:"state,omitempty"`
	HasBall bool    `json:"has_ball,omitempty"`
	Path    []Point `json:"path,omitempty"`
}

type Ball struct {
	ID        string  `json:"id,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Height    float64 `json:"height,omitempty"`
	State     string  `json:"state,omitempty"` // "held" | "in_air" | "loose" | "dead"
	CarrierID string  `json:"carrier_id,omitempty"`
	Path      []Point `json:"path,omitempty"`
}

// Key returns the ball's identity, falling back to DefaultBallID.
func (b *Ball) Key() string {
	if b == nil {
		return ""
	}
	if b.ID == "" {
		return DefaultBallID
	}
	return b.ID
}

type Tick struct {
	Index       int      `json:"tick"`
	Phase       string   `json:"phase,omitempty"`
	Ball        *Ball    `json:"ball,omitempty"`
	Quarterback *Player  `json:"qb,omitempty"`
	Blockers    []Player `json:"blockers,omitempty"`
	Rushers     []Player `json:"rushers,omitempty"`
	Receivers   []Player `json:"receivers,omitempty"`
	Defenders   []Player `json:"defenders,omitempty"`
}

func (t *Tick) QuarterbackID() string {
	if t == nil || t.Quarterback == nil {
		return ""
	}
	return t.Quarterback.ID
}

func (t *Tick) BlockerIDs() []string { return playerIDs(t, func(t *Tick) []Player { return t.Blockers }) }
func (t *Tick) RusherIDs() []string  { return playerIDs(t, func(t *Tick) []Player { return t.Rushers }) }

func playerIDs(t *Tick, pick func(*Tick) []Player) []string {
	if t == nil {
		return nil
	}
	players := pick(t)
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	return ids
}
