package engine

import (
	"errors"
	"math"

	"github.com/skyatlas/hipscache/internal/geom"
	"github.com/skyatlas/hipscache/internal/observability"
	"github.com/skyatlas/hipscache/internal/survey"
	"github.com/skyatlas/hipscache/internal/tile"
)

// Action tells Traverse what to do after visiting a tile.
type Action int

const (
	// Skip renders nothing below this tile.
	Skip Action = iota
	// Descend enqueues the tile's four children.
	Descend
)

// ErrOverflow is returned by Traverse when the pending queue fills up,
// which means the visitor descended far too eagerly.
var ErrOverflow = errors.New("traversal queue overflow")

// Visitor is called for every tile reached during a traversal.
type Visitor func(order, pix int) (Action, error)

// Traverse walks the healpix pyramid breadth first, starting from the
// 12 order-0 base tiles. Children are visited only when the visitor
// asks to descend, so a frame's working set stays proportional to what
// is actually on screen.
func Traverse(visit Visitor) error {
	var queue [1024]tile.Pos
	const n = len(queue)
	for i := 0; i < 12; i++ {
		queue[i] = tile.Pos{Order: 0, Pix: i}
	}
	start, size := 0, 12

	for size > 0 {
		pos := queue[start]
		start = (start + 1) % n
		size--

		act, err := visit(pos.Order, pos.Pix)
		if err != nil {
			return err
		}
		if act != Descend {
			continue
		}
		if size+4 >= n {
			observability.IncTraversalOverflow()
			return ErrOverflow
		}
		for i := 0; i < 4; i++ {
			queue[(start+size)%n] = tile.Pos{Order: pos.Order + 1, Pix: pos.Pix*4 + i}
			size++
		}
	}
	return nil
}

// Painter is what the engine needs to know about the rendering side to
// size and cull a traversal. The render loop owns the real projection
// math; the engine only asks the questions.
type Painter interface {
	// FramebufferSize returns the target framebuffer in pixels.
	FramebufferSize() (w, h int)
	// ProjScalingX is the projection scaling along x, used to convert
	// screen pixels into angular resolution.
	ProjScalingX() float64
	// IsTileClipped reports whether tile (order, pix) is fully outside
	// the current view frustum.
	IsTileClipped(f survey.Frame, order, pix int, outside bool) bool
}

// RenderOrder computes the tile order whose resolution best matches
// the screen for a survey spanning angle radians.
func RenderOrder(p Painter, s *survey.Survey, angle float64) int {
	fbW, _ := p.FramebufferSize()
	pixPerRad := float64(fbW) / math.Atan(p.ProjScalingX()) / 2
	w := pixPerRad * angle / float64(s.TileWidth())
	return int(math.Round(math.Log2(w / (4 * math.Sqrt(2)))))
}

// RenderVisitor receives the tiles selected for drawing. split is the
// per-side grid subdivision the tile should be drawn with.
type RenderVisitor func(order, pix, split int, flags Flags) error

// RenderTraverse selects the set of tiles to draw for the current
// view: it computes the target order from the screen resolution,
// culls clipped branches, and descends until the target is reached.
// splitOrder < 0 picks a default based on how coarse the rendering is.
func (e *Engine) RenderTraverse(s *survey.Survey, p Painter, angle float64,
	splitOrder int, visit RenderVisitor) error {
	s.IsReady(e)

	var flags Flags
	outside := true
	if angle < 2*math.Pi {
		flags |= Planet
		outside = false
	}

	renderOrder := RenderOrder(p, s, angle)
	if renderOrder < -5 && s.HasAllsky() {
		// So zoomed out that even order_min tiles are overkill; the
		// all-sky mosaic alone carries enough resolution.
		flags |= ForceUseAllsky
	}
	if splitOrder < 0 {
		if flags&ForceUseAllsky != 0 {
			splitOrder = 2
		} else {
			splitOrder = 3
		}
	}

	maxOrder := s.OrderMax()
	if maxOrder == 0 || maxOrder > 9 {
		maxOrder = 9
	}
	if renderOrder > maxOrder {
		renderOrder = maxOrder
	}
	if renderOrder < s.OrderMin() {
		renderOrder = s.OrderMin()
	}
	if splitOrder < renderOrder {
		splitOrder = renderOrder
	}
	split := 1 << (splitOrder - renderOrder)

	return Traverse(func(order, pix int) (Action, error) {
		if p.IsTileClipped(s.Frame(), order, pix, outside) {
			return Skip, nil
		}
		if order < renderOrder {
			return Descend, nil
		}
		if err := visit(order, pix, split, flags); err != nil {
			return Skip, err
		}
		return Skip, nil
	})
}

// DrawFunc draws one resolved tile.
type DrawFunc func(tex tile.Texture, uv [4][2]float64, proj geom.Projector,
	fade float64, frame survey.Frame, split int) error

// ProgressFunc is called once per Render with how many of the frame's
// tiles are final (loaded, or definitively missing).
type ProgressFunc func(url, label string, loaded, total int)

// Render resolves and draws every tile the current view needs. Tiles
// whose texture hasn't arrived yet are drawn from an ancestor or
// skipped; the progress callback tells the caller whether another
// frame is worth scheduling.
func (e *Engine) Render(s *survey.Survey, p Painter, angle float64,
	splitOrder int, draw DrawFunc, progress ProgressFunc) error {
	var nbTot, nbLoaded int
	err := e.RenderTraverse(s, p, angle, splitOrder,
		func(order, pix, split int, flags Flags) error {
			flags |= LoadInThread
			nbTot++
			res := e.GetTileTexture(s, order, pix, flags)
			if res.LoadingComplete {
				nbLoaded++
			}
			if res.Texture == nil {
				return nil
			}
			return draw(res.Texture, res.UV, res.Proj, res.Fade, s.Frame(), split)
		})
	if err != nil {
		return err
	}
	if progress != nil {
		progress(s.URL(), s.Label(), nbLoaded, nbTot)
	}
	return nil
}
