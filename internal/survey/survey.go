// Package survey holds the per-survey descriptor: metadata acquired
// from the properties file, URL synthesis, and the one-time all-sky
// image acquisition state machine.
package survey

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/skyatlas/hipscache/internal/asset"
	"github.com/skyatlas/hipscache/internal/tile"
	"github.com/skyatlas/hipscache/internal/tilecache"
	"github.com/skyatlas/hipscache/internal/worker"
)

// Frame identifies the reference frame the survey's tiles are drawn in.
type Frame int

const (
	FrameICRF Frame = iota
	FrameAstrom
	FrameObserved
)

func (f Frame) String() string {
	switch f {
	case FrameAstrom:
		return "astrom"
	case FrameObserved:
		return "observed"
	default:
		return "icrf"
	}
}

// Env is what a Survey needs from its owner to make progress: the byte
// fetcher, the worker pool for the all-sky decode, and a way to seed
// the 12 all-sky pseudo tiles into the shared cache.
type Env interface {
	Fetcher() asset.Fetcher
	Pool() *worker.Pool
	AddManualTile(s *Survey, order, pix int, data []byte) error
}

// allsky tracks acquisition of the optional low-resolution whole-sky
// image used as the deepest fallback.
type allsky struct {
	worker       worker.Worker
	decoding     bool
	notAvailable bool
	src          []byte

	// Decoded image, written by the worker, read after poll.
	pix     []byte
	w, h    int
	bpp     int
	decoded bool
}

// Survey describes one HiPS survey. It is created up front and
// outlives every tile that references it.
type Survey struct {
	logger     *slog.Logger
	url        string
	serviceURL string
	ext        string
	release    float64 // release date as MJD, 0 if unknown
	label      string
	frame      Frame
	hash       uint32
	err        error

	properties map[string]string
	order      int // order_max, 0 while unknown
	orderMin   int
	tileWidth  int

	allsky allsky

	createTile tile.CreateFunc
	deleteTile tile.DeleteFunc
	user       any
}

type Option func(*Survey)

func WithLabel(label string) Option {
	return func(s *Survey) { s.label = label }
}

func WithFrame(f Frame) Option {
	return func(s *Survey) { s.frame = f }
}

// WithTileFuncs overrides the decode and release callbacks, e.g. for
// non-image surveys.
func WithTileFuncs(create tile.CreateFunc, del tile.DeleteFunc, user any) Option {
	return func(s *Survey) {
		s.createTile = create
		s.deleteTile = del
		s.user = user
	}
}

// New creates a survey for the given base URL. releaseDate is the MJD
// used for cache busting, 0 if unknown; the properties file may
// override it.
func New(logger *slog.Logger, url string, releaseDate float64, opts ...Option) *Survey {
	s := &Survey{
		logger:     logger,
		url:        url,
		serviceURL: url,
		ext:        "jpg",
		release:    releaseDate,
		frame:      FrameAstrom,
		hash:       uint32(xxhash.Sum64String(url)),
		orderMin:   3,
		createTile: tile.CreateImageTile,
		deleteTile: tile.DeleteImageTile,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Survey) URL() string      { return s.url }
func (s *Survey) Hash() uint32     { return s.hash }
func (s *Survey) Ext() string      { return s.ext }
func (s *Survey) Frame() Frame     { return s.frame }
func (s *Survey) OrderMin() int    { return s.orderMin }
func (s *Survey) OrderMax() int    { return s.order }
func (s *Survey) Release() float64 { return s.release }
func (s *Survey) Err() error       { return s.err }

func (s *Survey) TileWidth() int {
	if s.tileWidth == 0 {
		return 256
	}
	return s.tileWidth
}

func (s *Survey) Label() string {
	if s.label != "" {
		return s.label
	}
	return s.url
}

func (s *Survey) SetLabel(label string) { s.label = label }
func (s *Survey) SetFrame(f Frame)      { s.frame = f }

// Property returns a raw value from the properties file.
func (s *Survey) Property(key string) (string, bool) {
	v, ok := s.properties[key]
	return v, ok
}

// CreateTile invokes the survey's decode callback.
func (s *Survey) CreateTile(order, pix int, data []byte) (any, int64, int, error) {
	return s.createTile(s.user, order, pix, data)
}

// DeleteTile invokes the survey's payload release callback.
func (s *Survey) DeleteTile(payload any) tilecache.EvictDecision {
	return s.deleteTile(payload)
}

// urlFor builds "{service_url}/{path}" and appends the release date as
// a cache-busting query for online surveys.
func (s *Survey) urlFor(path string) string {
	u := s.serviceURL + "/" + path
	if s.release != 0 &&
		(strings.HasPrefix(s.serviceURL, "http://") ||
			strings.HasPrefix(s.serviceURL, "https://")) {
		u += fmt.Sprintf("?v=%d", int(s.release))
	}
	return u
}

// TileURL synthesizes the URL of tile (order, pix).
func (s *Survey) TileURL(order, pix int) string {
	return s.urlFor(fmt.Sprintf("Norder%d/Dir%d/Npix%d.%s",
		order, (pix/10000)*10000, pix, s.ext))
}

// PropertiesURL is the URL of the survey metadata file.
func (s *Survey) PropertiesURL() string {
	return s.urlFor("properties")
}

// AllskyURL is the URL of the all-sky fallback image.
func (s *Survey) AllskyURL() string {
	return s.urlFor(fmt.Sprintf("Norder%d/Allsky.%s", s.orderMin, s.ext))
}

// AllskyImage returns the decoded all-sky pixels, or ok=false while it
// is not (or never will be) available.
func (s *Survey) AllskyImage() (pix []byte, w, h, bpp int, ok bool) {
	a := &s.allsky
	if !a.decoded {
		return nil, 0, 0, 0, false
	}
	return a.pix, a.w, a.h, a.bpp, true
}

// HasAllsky reports whether the decoded all-sky image is available.
func (s *Survey) HasAllsky() bool { return s.allsky.decoded }

// IsReady drives Update and reports whether the survey can serve
// tiles: properties acquired and the all-sky acquisition settled.
func (s *Survey) IsReady(env Env) bool {
	return s.Update(env)
}

// Update ticks the metadata and all-sky state machines. It never
// blocks; while something is still in flight it returns false and the
// caller retries next frame.
func (s *Survey) Update(env Env) bool {
	if s.err != nil {
		return false
	}
	if s.properties == nil {
		if !s.fetchProperties(env) {
			return false
		}
	}

	a := &s.allsky
	// Get the all-sky before anything else if available.
	if !a.decoding && !a.notAvailable && !a.decoded {
		url := s.AllskyURL()
		data, code := env.Fetcher().Fetch(url, asset.Accept404)
		if code != asset.StatusPending && data == nil {
			a.notAvailable = true
		}
		if data != nil {
			a.src = make([]byte, len(data))
			copy(a.src, data)
			env.Fetcher().Release(url)
			a.decoding = true
			a.worker.Start(env.Pool(), s.decodeAllsky)
		}
		return false
	}

	// Wait for the decode to finish.
	if a.decoding {
		if !a.worker.Poll() {
			return false
		}
		a.decoding = false
		if !a.decoded {
			a.notAvailable = true
		} else {
			for pix := range 12 {
				if err := env.AddManualTile(s, -1, pix, nil); err != nil {
					s.logger.Warn("seed allsky tile", "survey", s.url, "pix", pix, "err", err)
				}
			}
		}
	}

	return true
}

// decodeAllsky runs on the worker pool and writes only into the allsky
// record.
func (s *Survey) decodeAllsky() {
	a := &s.allsky
	pix, w, h, bpp, err := tile.Decode(a.src)
	a.src = nil
	if err != nil {
		s.logger.Warn("decode allsky", "survey", s.url, "err", err)
		return
	}
	a.pix, a.w, a.h, a.bpp = pix, w, h, bpp
	a.decoded = true
}

func (s *Survey) fetchProperties(env Env) bool {
	url := s.PropertiesURL()
	data, code := env.Fetcher().Fetch(url, 0)
	if data == nil && code != asset.StatusPending {
		s.err = fmt.Errorf("fetch properties %q: status %d", url, code)
		s.logger.Error("cannot get survey properties", "url", url, "status", code)
		return false
	}
	if data == nil {
		return false
	}
	env.Fetcher().Release(url)
	s.applyProperties(ParseProperties(string(data)))
	s.initLabel()
	return true
}

func (s *Survey) initLabel() {
	if s.label != "" {
		return
	}
	if v, ok := s.properties["obs_collection"]; ok && v != "" {
		s.label = v
	} else if v, ok := s.properties["obs_title"]; ok && v != "" {
		s.label = v
	} else {
		s.label = s.url
	}
}
