// Package projection maps simulation coordinates onto render space.
//
// The simulation reports positions in two frames that share a lateral axis
// and a scale but disagree on the sign of the depth axis:
//
//	Forward: +y is downfield (receivers, defenders, ball)
//	Pocket:  +y is behind the line of scrimmage (quarterback, blockers, rushers)
//
// Render space has +y pointing down the screen, with the line of scrimmage at
// the origin.
package projection

import "github.com/DoyleJ11/gridiron-viewer/pkg/types"

type Frame int

const (
	Forward Frame = iota
	Pocket
)

func (f Frame) String() string {
	switch f {
	case Forward:
		return "forward"
	case Pocket:
		return "pocket"
	default:
		return "unknown"
	}
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Projector is a value type; the zero value collapses everything onto (0,0).
type Projector struct {
	OriginX float64
	OriginY float64
	Scale   float64
}

func New(originX, originY, scale float64) Projector {
	return Projector{OriginX: originX, OriginY: originY, Scale: scale}
}

func (p Projector) Project(frame Frame, primary, secondary float64) Point {
	x := p.OriginX + primary*p.Scale
	if frame == Pocket {
		return Point{X: x, Y: p.OriginY + secondary*p.Scale}
	}
	return Point{X: x, Y: p.OriginY - secondary*p.Scale}
}

func (p Projector) ProjectPoint(frame Frame, pt types.Point) Point {
	return p.Project(frame, pt.X, pt.Y)
}

// ProjectPath returns a fresh slice; nil in, nil out.
func (p Projector) ProjectPath(frame Frame, path []types.Point) []Point {
	if path == nil {
		return nil
	}
	out := make([]Point, len(path))
	for i, pt := range path {
		out[i] = p.ProjectPoint(frame, pt)
	}
	return out
}
