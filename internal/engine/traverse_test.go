package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/skyatlas/hipscache/internal/geom"
	"github.com/skyatlas/hipscache/internal/survey"
	"github.com/skyatlas/hipscache/internal/tile"
)

func TestTraverse_BaseTiles(t *testing.T) {
	var visited []tile.Pos
	err := Traverse(func(order, pix int) (Action, error) {
		visited = append(visited, tile.Pos{Order: order, Pix: pix})
		return Skip, nil
	})
	if err != nil {
		t.Fatalf("traverse: %v", err)
	}
	if len(visited) != 12 {
		t.Fatalf("visited %d tiles, want 12", len(visited))
	}
	for i, pos := range visited {
		if pos.Order != 0 || pos.Pix != i {
			t.Fatalf("tile %d: %+v", i, pos)
		}
	}
}

func TestTraverse_Descend(t *testing.T) {
	perOrder := map[int]int{}
	err := Traverse(func(order, pix int) (Action, error) {
		perOrder[order]++
		if order < 2 {
			return Descend, nil
		}
		return Skip, nil
	})
	if err != nil {
		t.Fatalf("traverse: %v", err)
	}
	if perOrder[0] != 12 || perOrder[1] != 48 || perOrder[2] != 192 {
		t.Fatalf("per-order counts: %v", perOrder)
	}
}

func TestTraverse_SelectiveDescend(t *testing.T) {
	var leaves []int
	err := Traverse(func(order, pix int) (Action, error) {
		if order == 0 && pix == 7 {
			return Descend, nil
		}
		if order == 1 {
			leaves = append(leaves, pix)
		}
		return Skip, nil
	})
	if err != nil {
		t.Fatalf("traverse: %v", err)
	}
	want := []int{28, 29, 30, 31}
	if len(leaves) != 4 {
		t.Fatalf("leaves: %v", leaves)
	}
	for i := range want {
		if leaves[i] != want[i] {
			t.Fatalf("leaves: %v want %v", leaves, want)
		}
	}
}

func TestTraverse_Overflow(t *testing.T) {
	err := Traverse(func(int, int) (Action, error) {
		return Descend, nil
	})
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("got %v want ErrOverflow", err)
	}
}

func TestTraverse_VisitorError(t *testing.T) {
	boom := errors.New("boom")
	n := 0
	err := Traverse(func(int, int) (Action, error) {
		n++
		if n == 3 {
			return Skip, boom
		}
		return Skip, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v want boom", err)
	}
	if n != 3 {
		t.Fatalf("visited %d tiles after error, want 3", n)
	}
}

type fakePainter struct {
	w, h    int
	scale   float64
	clipAll bool
}

func (p *fakePainter) FramebufferSize() (int, int) { return p.w, p.h }
func (p *fakePainter) ProjScalingX() float64       { return p.scale }
func (p *fakePainter) IsTileClipped(survey.Frame, int, int, bool) bool {
	return p.clipAll
}

func TestRenderOrder(t *testing.T) {
	ff := newFakeFetcher()
	fc := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(ff, fc)
	s := newReadySurvey(t, e, ff, propsDoc)

	small := &fakePainter{w: 300, h: 200, scale: 1}
	if got := RenderOrder(small, s, 2*3.14159265358979); got != 0 {
		t.Fatalf("small framebuffer: order %d want 0", got)
	}
	big := &fakePainter{w: 3000, h: 2000, scale: 1}
	if got := RenderOrder(big, s, 2*3.14159265358979); got != 3 {
		t.Fatalf("big framebuffer: order %d want 3", got)
	}
}

const lowPropsDoc = `hips_order = 3
hips_order_min = 0
hips_tile_format = png
obs_collection = Low Sky
`

func TestRenderTraverse_ClampsToOrderMin(t *testing.T) {
	ff := newFakeFetcher()
	fc := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(ff, fc)
	s := newReadySurvey(t, e, ff, lowPropsDoc)

	p := &fakePainter{w: 300, h: 200, scale: 1}
	var visits []tile.Pos
	var splits []int
	err := e.RenderTraverse(s, p, 2*math.Pi, -1,
		func(order, pix, split int, flags Flags) error {
			visits = append(visits, tile.Pos{Order: order, Pix: pix})
			splits = append(splits, split)
			if flags&Planet != 0 {
				t.Fatalf("full-sky view must not set the planet flag")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("render traverse: %v", err)
	}
	if len(visits) != 12 {
		t.Fatalf("visited %d tiles, want 12", len(visits))
	}
	for _, pos := range visits {
		if pos.Order != 0 {
			t.Fatalf("tile rendered at order %d, want 0", pos.Order)
		}
	}
	// default split order 3 at render order 0
	for _, split := range splits {
		if split != 8 {
			t.Fatalf("split=%d want 8", split)
		}
	}
}

func TestRenderTraverse_ClippedView(t *testing.T) {
	ff := newFakeFetcher()
	fc := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(ff, fc)
	s := newReadySurvey(t, e, ff, lowPropsDoc)

	p := &fakePainter{w: 300, h: 200, scale: 1, clipAll: true}
	n := 0
	err := e.RenderTraverse(s, p, 2*3.14159265358979, -1,
		func(int, int, int, Flags) error { n++; return nil })
	if err != nil {
		t.Fatalf("render traverse: %v", err)
	}
	if n != 0 {
		t.Fatalf("clipped view visited %d tiles", n)
	}
}

func TestRenderTraverse_PlanetFlag(t *testing.T) {
	ff := newFakeFetcher()
	fc := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(ff, fc)
	s := newReadySurvey(t, e, ff, lowPropsDoc)

	p := &fakePainter{w: 300, h: 200, scale: 1}
	seen := false
	err := e.RenderTraverse(s, p, 3.1, -1,
		func(_, _, _ int, flags Flags) error {
			seen = true
			if flags&Planet == 0 {
				t.Fatalf("partial view must set the planet flag")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("render traverse: %v", err)
	}
	if !seen {
		t.Fatalf("no tiles visited")
	}
}

func TestRender_ProgressAndDraw(t *testing.T) {
	ff := newFakeFetcher()
	fc := &fakeClock{now: time.Unix(1000, 0)}
	e := newTestEngine(ff, fc)
	s := newReadySurvey(t, e, ff, lowPropsDoc)
	for pix := range 12 {
		ff.set(s.TileURL(0, pix), opaquePNG(t, 8, 8), 200)
	}

	p := &fakePainter{w: 300, h: 200, scale: 1}
	var drawn int
	var loaded, total int
	draw := func(tex tile.Texture, _ [4][2]float64, _ geom.Projector,
		_ float64, _ survey.Frame, split int) error {
		if tex == nil {
			t.Fatalf("draw called without a texture")
		}
		if split != 8 {
			t.Fatalf("split=%d want 8", split)
		}
		drawn++
		return nil
	}
	progress := func(url, label string, l, tot int) {
		if url != s.URL() || label != s.Label() {
			t.Fatalf("progress for %q %q", url, label)
		}
		loaded, total = l, tot
	}

	deadline := time.Now().Add(2 * time.Second)
	for loaded != 12 {
		drawn = 0
		if err := e.Render(s, p, 2*3.14159265358979, -1, draw, progress); err != nil {
			t.Fatalf("render: %v", err)
		}
		if total != 12 {
			t.Fatalf("total=%d want 12", total)
		}
		if time.Now().After(deadline) {
			t.Fatalf("tiles never finished loading: %d/%d", loaded, total)
		}
		time.Sleep(time.Millisecond)
	}
	if drawn != 12 {
		t.Fatalf("drawn=%d want 12", drawn)
	}
}
