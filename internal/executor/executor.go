// Package executor owns the engine goroutine. The engine and its
// surveys are only ever touched from the Run loop; HTTP handlers
// submit closures through Do and wait for the loop to execute them
// between frames.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/skyatlas/hipscache/internal/engine"
	"github.com/skyatlas/hipscache/internal/model"
	"github.com/skyatlas/hipscache/internal/survey"
)

type Executor struct {
	logger   *slog.Logger
	engine   *engine.Engine
	interval time.Duration
	requests chan func()

	// fixed after Run starts
	surveys map[string]*survey.Survey
	ids     []string

	ready    atomic.Bool
	reported map[string]bool
}

func New(logger *slog.Logger, e *engine.Engine, interval time.Duration) *Executor {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	return &Executor{
		logger:   logger,
		engine:   e,
		interval: interval,
		requests: make(chan func(), 64),
		surveys:  map[string]*survey.Survey{},
		reported: map[string]bool{},
	}
}

func (x *Executor) Engine() *engine.Engine { return x.engine }

// AddSurvey registers s and returns its id. Call before Run; the
// registry is read-only afterwards.
func (x *Executor) AddSurvey(s *survey.Survey) string {
	id := fmt.Sprintf("%08x", s.Hash())
	if _, ok := x.surveys[id]; ok {
		return id
	}
	x.surveys[id] = s
	x.ids = append(x.ids, id)
	return id
}

func (x *Executor) Survey(id string) (*survey.Survey, bool) {
	s, ok := x.surveys[id]
	return s, ok
}

// Ready reports whether every registered survey can serve tiles. Safe
// from any goroutine.
func (x *Executor) Ready() bool { return x.ready.Load() }

// Do runs fn on the engine goroutine and waits for it to finish.
func (x *Executor) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case x.requests <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the frame loop until ctx is cancelled.
func (x *Executor) Run(ctx context.Context) error {
	tick := time.NewTicker(x.interval)
	defer tick.Stop()
	x.frame()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-x.requests:
			fn()
		case <-tick.C:
			x.frame()
		}
	}
}

// frame ticks every survey's metadata state machine and refreshes the
// readiness flag.
func (x *Executor) frame() {
	ready := true
	for _, id := range x.ids {
		s := x.surveys[id]
		if s.Update(x.engine) {
			continue
		}
		ready = false
		if err := s.Err(); err != nil && !x.reported[id] {
			x.reported[id] = true
			x.logger.Error("survey failed", "id", id, "url", s.URL(), "err", err)
		}
	}
	x.ready.Store(ready)
}

// Infos snapshots every registered survey. Must run on the engine
// goroutine, i.e. inside Do.
func (x *Executor) Infos() []model.SurveyInfo {
	out := make([]model.SurveyInfo, 0, len(x.ids))
	for _, id := range x.ids {
		s := x.surveys[id]
		info := model.SurveyInfo{
			ID:        id,
			URL:       s.URL(),
			Label:     s.Label(),
			Frame:     s.Frame().String(),
			OrderMin:  s.OrderMin(),
			OrderMax:  s.OrderMax(),
			TileWidth: s.TileWidth(),
			Release:   s.Release(),
			Ready:     s.Update(x.engine),
			HasAllsky: s.HasAllsky(),
		}
		if err := s.Err(); err != nil {
			info.Error = err.Error()
		}
		out = append(out, info)
	}
	return out
}
