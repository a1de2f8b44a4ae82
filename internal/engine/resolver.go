package engine

import (
	"math"

	"github.com/skyatlas/hipscache/internal/asset"
	"github.com/skyatlas/hipscache/internal/geom"
	"github.com/skyatlas/hipscache/internal/survey"
	"github.com/skyatlas/hipscache/internal/tile"
)

// Result is what the resolver hands the renderer for one requested
// tile. Texture may be nil; UV and Proj are always valid so a
// placeholder can be drawn with the correct spatial footprint.
type Result struct {
	Texture tile.Texture
	// UV maps the requested tile into the returned texture. When an
	// ancestor texture was substituted this is the sub-rectangle the
	// requested tile occupies in it.
	UV   [4][2]float64
	Proj geom.Projector
	Fade float64
	// LoadingComplete is true when no better texture will ever arrive
	// for this request.
	LoadingComplete bool
}

// uvOut winds the unit square for outside viewing, uvIn for planet
// style inside viewing.
var (
	uvOut = [4][2]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	uvIn  = [4][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
)

// GetTileTexture resolves the best texture available right now for
// tile (order, pix) of s.
//
// The algorithm is roughly:
//   - If the tile is loaded, return its texture.
//   - If not, try to use a parent tile as a fallback, remapping UVs.
//   - With ForceUseAllsky, an order_min request resolves to its
//     all-sky pseudo tile and the matching sub-rectangle is carved
//     out of the all-sky image. Without that flag the all-sky image
//     is not used as a fallback.
//   - Otherwise return no texture; UV and projector are still set.
func (e *Engine) GetTileTexture(s *survey.Survey, order, pix int, flags Flags) Result {
	outside := flags&Planet == 0
	res := Result{Fade: 1.0}
	if outside {
		res.UV = uvOut
	} else {
		res.UV = uvIn
	}

	// Order and pix of the tile actually used for rendering.
	rendOrder, rendPix := order, pix

	if !s.IsReady(e) {
		res.Proj = geom.HealpixProjector(rendOrder, rendPix, outside)
		return res
	}

	var t *tile.Tile
	var code int
	if order <= s.OrderMax() {
		t, code = e.GetTile(s, order, pix, flags)
		if payloadOf(t) == nil && code != asset.StatusPending && code != asset.StatusRetry {
			// The tile definitively doesn't exist (or failed for
			// good); nothing better will ever come.
			res.LoadingComplete = true
			res.Proj = geom.HealpixProjector(rendOrder, rendPix, outside)
			return res
		}
	}

	// Walk up the ancestor chain until something is loaded, keeping
	// track of the UV sub-rectangle the requested tile occupies.
	rendTile := t
	m := geom.Identity()
	for payloadOf(rendTile) == nil && rendOrder > s.OrderMin() {
		m = geom.ChildUVMat(rendPix%4, m)
		rendOrder--
		rendPix /= 4
		if rendOrder > s.OrderMax() {
			continue
		}
		rendTile, _ = e.GetTile(s, rendOrder, rendPix, flags)
	}
	if payloadOf(rendTile) == nil {
		// Not even an ancestor; reset and give up for this frame.
		rendOrder, rendPix = order, pix
		res.Proj = geom.HealpixProjector(rendOrder, rendPix, outside)
		return res
	}
	if rendOrder == min(order, s.OrderMax()) {
		res.LoadingComplete = true
	}

	// Remap the UV corners into the ancestor's texture space.
	for i := range res.UV {
		res.UV[i][0], res.UV[i][1] = m.MulVec2(res.UV[i][0], res.UV[i][1])
	}

	img, _ := rendTile.Payload.(*tile.Image)
	if img != nil && e.uploader != nil {
		// Upload on first use, then free the decoded pixels.
		if img.Pix != nil && img.Tex == nil {
			img.Tex = e.uploader.Upload(img.Pix, img.W, img.H, img.Bpp, 0, 0, img.W, img.H)
			img.Pix = nil
		}

		// Carve the all-sky sub-rectangle for order_min pseudo tiles.
		if flags&ForceUseAllsky != 0 && rendOrder == s.OrderMin() &&
			img.Tex == nil && img.AllskyTex == nil {
			if pix, w, h, bpp, ok := s.AllskyImage(); ok {
				nbw := int(math.Sqrt(float64(12 * (int64(1) << (2 * s.OrderMin())))))
				x := (rendPix % nbw) * w / nbw
				y := (rendPix / nbw) * w / nbw
				img.AllskyTex = e.uploader.Upload(pix, w, h, bpp, x, y, w/nbw, w/nbw)
			}
		}
	}
	if img != nil {
		if img.Tex != nil {
			res.Texture = img.Tex
		} else {
			res.Texture = img.AllskyTex
		}
	}
	res.Fade = rendTile.Fade(e.now())
	res.Proj = geom.HealpixProjector(rendOrder, rendPix, outside)
	return res
}

func payloadOf(t *tile.Tile) any {
	if t == nil {
		return nil
	}
	return t.Payload
}
