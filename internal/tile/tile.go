// Package tile defines the entries stored in the shared tile cache:
// their position, child memoization flags, decoded payload and the
// in-flight loader record a background decode writes into.
package tile

import (
	"time"

	"github.com/skyatlas/hipscache/internal/tilecache"
	"github.com/skyatlas/hipscache/internal/worker"
)

// Flags is the per-tile bit set.
type Flags uint8

const (
	// NoChild0..3 record that the corresponding child tile is known
	// not to exist, so it is never fetched again.
	NoChild0 Flags = 1 << iota
	NoChild1
	NoChild2
	NoChild3

	// LoadError marks a tile whose decode failed; it stays resident
	// with a nil payload and is not retried.
	LoadError
)

const NoChildAll = NoChild0 | NoChild1 | NoChild2 | NoChild3

// NoChild returns the flag bit for child i in [0,3].
func NoChild(i int) Flags { return NoChild0 << i }

// Pos addresses a tile on the sphere quad-tree. Order -1 is the
// pseudo-order of the 12 all-sky base faces.
type Pos struct {
	Order int
	Pix   int
}

// Key builds the cache key for a tile of the survey identified by its
// 32-bit URL hash.
func Key(surveyHash uint32, order, pix int) tilecache.Key {
	return tilecache.Key{SurveyHash: surveyHash, Order: int32(order), Pix: int32(pix)}
}

// Loader is the record a background decode job writes into. The job
// touches nothing else; the engine applies the result to the tile on
// the owner goroutine once Worker polls done.
type Loader struct {
	Worker worker.Worker
	Data   []byte

	// Results, valid once Worker.Poll() is true.
	Payload      any
	Cost         int64
	Transparency int
	Failed       bool
}

// Tile is one cache entry. All fields are owned by the render
// goroutine; only the Loader record is shared with a worker.
type Tile struct {
	Pos     Pos
	Flags   Flags
	Payload any

	// Loader is non-nil exactly while an asynchronous decode is in
	// flight; Payload is nil during that time.
	Loader *Loader

	// FadeStart is when the payload first became available, driving
	// the renderer's fade-in.
	FadeStart time.Time
}

// FadeDuration is how long a freshly loaded tile takes to fade in.
const FadeDuration = 300 * time.Millisecond

// Fade returns the recommended alpha for the tile at time now.
func (t *Tile) Fade(now time.Time) float64 {
	if t.FadeStart.IsZero() {
		return 1.0
	}
	f := float64(now.Sub(t.FadeStart)) / float64(FadeDuration)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
