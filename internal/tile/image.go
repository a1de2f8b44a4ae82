package tile

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/skyatlas/hipscache/internal/tilecache"
)

// CreateFunc decodes raw tile bytes into a payload. It reports the true
// memory cost of the payload and a 4-bit transparency mask, one bit per
// child quadrant that is fully transparent.
type CreateFunc func(user any, order, pix int, data []byte) (payload any, cost int64, transparency int, err error)

// DeleteFunc releases a payload. Returning Keep vetoes the eviction,
// e.g. while the renderer still references a texture.
type DeleteFunc func(payload any) tilecache.EvictDecision

// Image is the payload produced by the default codec for image
// surveys. Pix is freed once the texture has been uploaded.
type Image struct {
	Pix       []byte
	W, H, Bpp int

	Tex       Texture
	AllskyTex Texture
}

// Decode parses jpg, png or webp bytes into a tightly packed RGBA
// buffer.
func Decode(data []byte) (pix []byte, w, h, bpp int, err error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	return rgba.Pix, b.Dx(), b.Dy(), 4, nil
}

// CreateImageTile is the default CreateFunc for image surveys. Order -1
// requests yield an empty sentinel payload for the all-sky pseudo
// tiles.
func CreateImageTile(_ any, order, _ int, data []byte) (any, int64, int, error) {
	if order == -1 {
		return &Image{}, int64(len(data)), 0, nil
	}
	pix, w, h, bpp, err := Decode(data)
	if err != nil {
		return nil, 0, 0, err
	}
	transparency := 0
	for i := range 4 {
		if quadrantTransparent(pix, w, bpp, (i/2)*w/2, (i%2)*h/2, w/2, h/2) {
			transparency |= 1 << i
		}
	}
	img := &Image{Pix: pix, W: w, H: h, Bpp: bpp}
	return img, int64(w * h * bpp), transparency, nil
}

// DeleteImageTile is the default DeleteFunc. It defers to the textures:
// if either refuses to release, the tile must stay resident.
func DeleteImageTile(payload any) tilecache.EvictDecision {
	img, ok := payload.(*Image)
	if !ok || img == nil {
		return tilecache.Drop
	}
	if img.Tex != nil && !img.Tex.Release() {
		return tilecache.Keep
	}
	img.Tex = nil
	if img.AllskyTex != nil && !img.AllskyTex.Release() {
		return tilecache.Keep
	}
	img.AllskyTex = nil
	return tilecache.Drop
}

// A quadrant counts as transparent only when the image has an alpha
// channel and every pixel in it has alpha zero.
func quadrantTransparent(pix []byte, imgW, bpp, x, y, w, h int) bool {
	if bpp < 4 {
		return false
	}
	for i := y; i < y+h; i++ {
		for j := x; j < x+w; j++ {
			if pix[(i*imgW+j)*bpp+3] != 0 {
				return false
			}
		}
	}
	return true
}
