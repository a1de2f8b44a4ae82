// Package engine ties the tile cache, the asset fetcher and the worker
// pool together: it loads tiles on demand, resolves the best available
// texture for a requested tile, and drives the pyramid traversal that
// decides what must be resident for the current view.
//
// The engine is owned by a single goroutine (the render loop). It
// never blocks: everything not yet available is reported with a
// sentinel status and the caller retries next frame.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/skyatlas/hipscache/internal/asset"
	"github.com/skyatlas/hipscache/internal/survey"
	"github.com/skyatlas/hipscache/internal/tile"
	"github.com/skyatlas/hipscache/internal/tilecache"
	"github.com/skyatlas/hipscache/internal/worker"
)

// Flags modify tile lookups and traversals.
type Flags int

const (
	// LoadInThread decodes fetched tiles on the worker pool instead of
	// synchronously on the caller.
	LoadInThread Flags = 1 << iota
	// CachedOnly answers from the cache and never triggers a fetch.
	CachedOnly
	// ForceUseAllsky resolves against the order -1 all-sky pseudo
	// tiles instead of real tiles.
	ForceUseAllsky
	// Planet flips the UV winding for inside viewing.
	Planet
)

// DefaultCacheBudget bounds the shared tile cache. Tiles visible on
// screen may exceed it; the cache then stays over budget rather than
// evicting entries that are still in use.
const DefaultCacheBudget = 256 << 20

// tileOverhead is the provisional cost of an entry before its payload
// has been decoded.
const tileOverhead = 512

type Engine struct {
	logger   *slog.Logger
	cache    *tilecache.Cache
	fetcher  asset.Fetcher
	pool     *worker.Pool
	uploader tile.Uploader
	now      func() time.Time // seam for tests
}

type Option func(*Engine)

func WithCacheBudget(budget int64) Option {
	return func(e *Engine) { e.cache = tilecache.New(budget) }
}

func WithPool(p *worker.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithUploader sets the texture upload seam. Without one the engine
// still resolves positions and UVs but never produces textures.
func WithUploader(u tile.Uploader) Option {
	return func(e *Engine) { e.uploader = u }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine around the given fetcher. All surveys handed
// to the engine share its cache and worker pool.
func New(logger *slog.Logger, fetcher asset.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		logger:  logger,
		cache:   tilecache.New(DefaultCacheBudget),
		fetcher: fetcher,
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.pool == nil {
		e.pool = worker.NewPool(0)
	}
	return e
}

// Fetcher implements survey.Env.
func (e *Engine) Fetcher() asset.Fetcher { return e.fetcher }

// Pool implements survey.Env.
func (e *Engine) Pool() *worker.Pool { return e.pool }

// Cache exposes the shared tile cache, mainly for inspection.
func (e *Engine) Cache() *tilecache.Cache { return e.cache }

// AddManualTile installs a pre-supplied tile directly into the cache,
// bypassing the fetch path. It implements survey.Env; the surveys use
// it to seed the 12 all-sky pseudo tiles at order -1.
func (e *Engine) AddManualTile(s *survey.Survey, order, pix int, data []byte) error {
	key := tile.Key(s.Hash(), order, pix)
	if _, ok := e.cache.Get(key); ok {
		return fmt.Errorf("tile %d/%d of %s already present", order, pix, s.URL())
	}
	payload, cost, transparency, err := s.CreateTile(order, pix, data)
	if err != nil {
		return fmt.Errorf("create manual tile %d/%d: %w", order, pix, err)
	}
	t := &tile.Tile{
		Pos:       tile.Pos{Order: order, Pix: pix},
		Payload:   payload,
		Flags:     tile.Flags(transparency) & tile.NoChildAll,
		FadeStart: e.now(),
	}
	e.cache.Add(key, t, tileOverhead+cost, e.evictFunc(s))
	return nil
}

// evictFunc builds the cache delete hook for tiles of survey s: a tile
// with an in-flight decode is pinned, and the survey's payload release
// hook may also veto.
func (e *Engine) evictFunc(s *survey.Survey) tilecache.DeleteFunc {
	return func(value any) tilecache.EvictDecision {
		t := value.(*tile.Tile)
		if t.Loader != nil && t.Loader.Worker.Running() {
			return tilecache.Keep
		}
		if t.Payload != nil {
			if s.DeleteTile(t.Payload) == tilecache.Keep {
				return tilecache.Keep
			}
			t.Payload = nil
		}
		return tilecache.Drop
	}
}
