package tile

// Texture is an opaque handle to an uploaded image, typically a GPU
// texture owned by the renderer.
type Texture interface {
	Size() (w, h int)
	// Release frees the underlying resource. Returning false defers
	// the release, e.g. while the renderer still samples the texture
	// this frame; the cache retries on the next eviction sweep.
	Release() bool
}

// Uploader creates textures from a sub-rectangle of a decoded image.
// img is tightly packed rows of bpp bytes per pixel.
type Uploader interface {
	Upload(img []byte, imgW, imgH, bpp, x, y, w, h int) Texture
}

// MemTexture is a software Uploader/Texture used by tests and the demo
// server; it keeps the cropped pixels in memory.
type MemTexture struct {
	Pix       []byte
	W, H, Bpp int
}

func (t *MemTexture) Size() (int, int) { return t.W, t.H }
func (t *MemTexture) Release() bool    { return true }

type MemUploader struct{}

func (MemUploader) Upload(img []byte, imgW, imgH, bpp, x, y, w, h int) Texture {
	out := make([]byte, w*h*bpp)
	for row := 0; row < h; row++ {
		src := ((y+row)*imgW + x) * bpp
		copy(out[row*w*bpp:(row+1)*w*bpp], img[src:src+w*bpp])
	}
	return &MemTexture{Pix: out, W: w, H: h, Bpp: bpp}
}
