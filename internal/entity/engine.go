// Package entity keeps one render handle per simulated entity and drives
// those handles from a stream of tick snapshots.
package entity

import (
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/gridiron-viewer/internal/projection"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

type Category string

const (
	Ball        Category = "ball"
	Quarterback Category = "quarterback"
	Blocker     Category = "blocker"
	Rusher      Category = "rusher"
	Receiver    Category = "receiver"
	Defender    Category = "defender"
)

var Categories = []Category{Ball, Quarterback, Blocker, Rusher, Receiver, Defender}

// Visual is everything a handle needs to draw one entity for one tick.
type Visual struct {
	Category Category           `json:"category"`
	ID       string             `json:"id"`
	Position projection.Point   `json:"position"`
	Trail    []projection.Point `json:"trail,omitempty"`
	Label    string             `json:"label,omitempty"`
	State    string             `json:"state,omitempty"`
	HasBall  bool               `json:"has_ball,omitempty"`
	Height   float64            `json:"height,omitempty"`
}

type Handle interface {
	Update(Visual)
	Destroy()
}

// Renderer is the drawing surface. Create is only called for IDs that have
// no live handle.
type Renderer interface {
	Create(cat Category, id string) Handle
}

type Result struct {
	Reset     ResetReason
	Created   int
	Updated   int
	Destroyed int
}

// Engine is not safe for concurrent use; its owner serializes Apply calls.
type Engine struct {
	renderer Renderer
	proj     projection.Projector
	log      *zap.Logger
	handles  map[Category]map[string]Handle
	prev     *types.Tick
	resets   int
}

func New(r Renderer, proj projection.Projector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		renderer: r,
		proj:     proj,
		log:      logger.Named("entity"),
		handles:  make(map[Category]map[string]Handle, len(Categories)),
	}
	for _, c := range Categories {
		e.handles[c] = make(map[string]Handle)
	}
	return e
}

func (e *Engine) Apply(t types.Tick) Result {
	var res Result

	if reason, ok := DetectReset(e.prev, &t); ok {
		e.log.Debug("run reset detected",
			zap.String("reason", string(reason)),
			zap.Int("prev_tick", e.prev.Index),
			zap.Int("tick", t.Index))
		res.Destroyed += e.teardown()
		res.Reset = reason
		e.resets++
	}

	seen := make(map[Category]map[string]struct{}, len(Categories))
	for _, c := range Categories {
		seen[c] = make(map[string]struct{})
	}
	upsert := func(v Visual) {
		seen[v.Category][v.ID] = struct{}{}
		h, ok := e.handles[v.Category][v.ID]
		if !ok {
			h = e.renderer.Create(v.Category, v.ID)
			e.handles[v.Category][v.ID] = h
			res.Created++
		} else {
			res.Updated++
		}
		h.Update(v)
	}

	// Pocket frame: quarterback, blockers, rushers.
	if t.Quarterback != nil {
		upsert(e.playerVisual(Quarterback, projection.Pocket, *t.Quarterback))
	}
	for _, p := range t.Blockers {
		upsert(e.playerVisual(Blocker, projection.Pocket, p))
	}
	for _, p := range t.Rushers {
		upsert(e.playerVisual(Rusher, projection.Pocket, p))
	}

	// Forward frame: receivers, defenders, ball.
	for _, p := range t.Receivers {
		upsert(e.playerVisual(Receiver, projection.Forward, p))
	}
	for _, p := range t.Defenders {
		upsert(e.playerVisual(Defender, projection.Forward, p))
	}
	if t.Ball != nil {
		upsert(e.ballVisual(projection.Forward, *t.Ball))
	}

	for _, c := range Categories {
		for id, h := range e.handles[c] {
			if _, ok := seen[c][id]; ok {
				continue
			}
			h.Destroy()
			delete(e.handles[c], id)
			res.Destroyed++
		}
	}

	prev := t
	e.prev = &prev
	return res
}

// Teardown destroys every handle and forgets the previous tick.
func (e *Engine) Teardown() {
	e.teardown()
	e.prev = nil
}

func (e *Engine) teardown() int {
	n := 0
	for _, c := range Categories {
		for id, h := range e.handles[c] {
			h.Destroy()
			delete(e.handles[c], id)
			n++
		}
	}
	return n
}

func (e *Engine) Len(c Category) int { return len(e.handles[c]) }

func (e *Engine) Total() int {
	n := 0
	for _, m := range e.handles {
		n += len(m)
	}
	return n
}

// IDs returns the live IDs of c in sorted order.
func (e *Engine) IDs(c Category) []string {
	ids := make([]string, 0, len(e.handles[c]))
	for id := range e.handles[c] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *Engine) Resets() int { return e.resets }

// The trail is rebuilt from the waypoints carried by this tick alone.
func (e *Engine) playerVisual(c Category, frame projection.Frame, p types.Player) Visual {
	return Visual{
		Category: c,
		ID:       p.ID,
		Position: e.proj.Project(frame, p.X, p.Y),
		Trail:    e.proj.ProjectPath(frame, p.Path),
		Label:    p.Label,
		State:    p.State,
		HasBall:  p.HasBall,
	}
}

func (e *Engine) ballVisual(frame projection.Frame, b types.Ball) Visual {
	return Visual{
		Category: Ball,
		ID:       b.Key(),
		Position: e.proj.Project(frame, b.X, b.Y),
		Trail:    e.proj.ProjectPath(frame, b.Path),
		State:    b.State,
		Height:   b.Height,
	}
}
