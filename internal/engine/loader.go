package engine

import (
	"github.com/skyatlas/hipscache/internal/asset"
	"github.com/skyatlas/hipscache/internal/observability"
	"github.com/skyatlas/hipscache/internal/survey"
	"github.com/skyatlas/hipscache/internal/tile"
	"github.com/skyatlas/hipscache/internal/tilecache"
)

// GetTile returns the tile at (order, pix) of s, or a status code
// telling the caller what happened:
//
//	200  tile returned (its payload may be nil after a decode error)
//	0    not ready yet, retry next frame
//	404  the tile does not exist
//	5xx  upstream failure; 598 is transient
//
// With LoadInThread the decode runs on the worker pool and the call
// keeps answering 0 until a later poll finds it finished.
func (e *Engine) GetTile(s *survey.Survey, order, pix int, flags Flags) (*tile.Tile, int) {
	key := tile.Key(s.Hash(), order, pix)
	// All-sky textures are handled as pseudo tiles at order -1.
	if flags&ForceUseAllsky != 0 {
		key.Order = -1
	}

	if v, ok := e.cache.Get(key); ok {
		t := v.(*tile.Tile)
		// Still decoding on a worker.
		if t.Loader != nil {
			if !t.Loader.Worker.Poll() {
				return nil, asset.StatusPending
			}
			e.finishLoad(key, t)
		}
		observability.IncCacheHit()
		return t, asset.StatusOK
	}
	observability.IncCacheMiss()

	if flags&CachedOnly != 0 {
		return nil, asset.StatusPending
	}
	if !s.IsReady(e) {
		return nil, asset.StatusPending
	}
	// Don't bother looking for tiles outside the survey order range.
	if order < s.OrderMin() || (s.OrderMax() != 0 && order > s.OrderMax()) {
		return nil, 404
	}

	// Always get the parent first: its NoChild bits memoize 404s so we
	// never ask the server twice for a tile known not to exist.
	var parent *tile.Tile
	if order > s.OrderMin() {
		parent, _ = e.GetTile(s, order-1, pix/4, 0)
		if parent == nil {
			return nil, asset.StatusPending
		}
		if parent.Flags&tile.NoChild(pix%4) != 0 {
			return nil, 404
		}
	}

	url := s.TileURL(order, pix)
	aflags := asset.Accept404
	if order > 0 {
		aflags |= asset.Delay
	}
	data, code := e.fetcher.Fetch(url, aflags)
	if code == asset.StatusPending {
		return nil, asset.StatusPending
	}

	// The tile doesn't exist: record it in the parent so we won't
	// search for it again.
	if code/100 == 4 {
		if parent != nil {
			parent.Flags |= tile.NoChild(pix % 4)
		}
		return nil, code
	}

	// Anything else without data is an actual error.
	if data == nil {
		if code != asset.StatusRetry {
			e.logger.Error("cannot get tile", "url", url, "status", code)
		}
		return nil, code
	}

	t := &tile.Tile{Pos: tile.Pos{Order: order, Pix: pix}}
	e.cache.Add(key, t, tileOverhead, e.evictFunc(s))

	if flags&LoadInThread != 0 {
		ld := &tile.Loader{Data: append([]byte(nil), data...)}
		t.Loader = ld
		ld.Worker.Start(e.pool, func() {
			payload, cost, transparency, err := s.CreateTile(order, pix, ld.Data)
			ld.Data = nil
			ld.Cost = cost
			ld.Transparency = transparency
			if err != nil || payload == nil {
				ld.Failed = true
				observability.IncTileDecoded("thread", "error")
				e.logger.Warn("cannot parse tile", "url", url, "err", err)
				return
			}
			ld.Payload = payload
			observability.IncTileDecoded("thread", "ok")
		})
		e.fetcher.Release(url)
		return nil, asset.StatusPending
	}

	payload, cost, transparency, err := s.CreateTile(order, pix, data)
	e.fetcher.Release(url)
	t.Flags |= tile.Flags(transparency) & tile.NoChildAll
	if err != nil || payload == nil {
		observability.IncTileDecoded("sync", "error")
		e.logger.Warn("cannot parse tile", "url", url, "err", err)
		t.Flags |= tile.LoadError
		return t, asset.StatusOK
	}
	observability.IncTileDecoded("sync", "ok")
	t.Payload = payload
	t.FadeStart = e.now()
	e.cache.SetCost(key, tileOverhead+cost)
	return t, asset.StatusOK
}

// finishLoad applies a completed worker record to its tile on the
// owner goroutine and fixes up the cache cost now that the true
// payload size is known.
func (e *Engine) finishLoad(key tilecache.Key, t *tile.Tile) {
	ld := t.Loader
	t.Loader = nil
	t.Flags |= tile.Flags(ld.Transparency) & tile.NoChildAll
	if ld.Failed {
		t.Flags |= tile.LoadError
	} else {
		t.Payload = ld.Payload
		t.FadeStart = e.now()
	}
	e.cache.SetCost(key, tileOverhead+ld.Cost)
}
