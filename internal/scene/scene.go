// Package scene is an in-memory drawing surface. It holds the last visual of
// every live sprite so HTTP clients can read the field while a replay runs.
package scene

import (
	"cmp"
	"slices"
	"sync"

	"github.com/DoyleJ11/gridiron-viewer/internal/entity"
)

type key struct {
	cat entity.Category
	id  string
}

type Scene struct {
	mu        sync.RWMutex
	sprites   map[key]*sprite
	created   int
	destroyed int
}

type View struct {
	Sprites   []entity.Visual `json:"sprites"`
	Created   int             `json:"created"`
	Destroyed int             `json:"destroyed"`
}

func New() *Scene {
	return &Scene{sprites: make(map[key]*sprite)}
}

func (s *Scene) Create(cat entity.Category, id string) entity.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp := &sprite{scene: s, key: key{cat: cat, id: id}}
	s.sprites[sp.key] = sp
	s.created++
	return sp
}

// Snapshot lists live sprites ordered by category then ID.
func (s *Scene) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		Sprites:   make([]entity.Visual, 0, len(s.sprites)),
		Created:   s.created,
		Destroyed: s.destroyed,
	}
	for _, sp := range s.sprites {
		vis := sp.visual
		vis.Trail = slices.Clone(vis.Trail)
		v.Sprites = append(v.Sprites, vis)
	}
	slices.SortFunc(v.Sprites, func(a, b entity.Visual) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.ID, b.ID))
	})
	return v
}

func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sprites)
}

type sprite struct {
	scene  *Scene
	key    key
	visual entity.Visual
	dead   bool
}

func (sp *sprite) Update(v entity.Visual) {
	sp.scene.mu.Lock()
	defer sp.scene.mu.Unlock()
	if sp.dead {
		return
	}
	v.Category, v.ID = sp.key.cat, sp.key.id
	sp.visual = v
}

// Destroy is idempotent.
func (sp *sprite) Destroy() {
	sp.scene.mu.Lock()
	defer sp.scene.mu.Unlock()
	if sp.dead {
		return
	}
	sp.dead = true
	if cur := sp.scene.sprites[sp.key]; cur == sp {
		delete(sp.scene.sprites, sp.key)
	}
	sp.scene.destroyed++
}
