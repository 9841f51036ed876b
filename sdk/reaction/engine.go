// Package reaction turns state transitions into side effects.
//
// A Reaction fires when its guard holds for a transition and it is armed.
// Firing disarms it; it is armed again by the first transition for which the
// guard does not hold. Level reactions skip arming and fire on every
// transition their guard accepts.
package reaction

import (
	"github.com/adwski/roomsdk/sdk/metrics"
	"github.com/adwski/roomsdk/sdk/state"
	"github.com/adwski/roomsdk/sdk/store"
	"github.com/rs/zerolog"
)

type (
	Guard func(prev, cur *state.State) bool
	Run   func(eff store.Effects, cur *state.State)

	Reaction struct {
		Name  string
		Guard Guard
		Run   Run
		Level bool
	}

	EngineConfig struct {
		Logger    *zerolog.Logger
		Metrics   *metrics.Metrics
		Reactions []Reaction
	}

	// Engine implements store.Reactor. It is only called from the store
	// goroutine, so arming needs no locking.
	Engine struct {
		logger    zerolog.Logger
		metrics   *metrics.Metrics
		reactions []Reaction
		armed     []bool
		fire      []bool
	}
)

func NewEngine(cfg EngineConfig) *Engine {
	armed := make([]bool, len(cfg.Reactions))
	for i := range armed {
		armed[i] = true
	}
	return &Engine{
		logger:    cfg.Logger.With().Str("component", "reactions").Logger(),
		metrics:   cfg.Metrics,
		reactions: cfg.Reactions,
		armed:     armed,
		fire:      make([]bool, len(cfg.Reactions)),
	}
}

// React evaluates every guard against the same pair before running anything.
func (e *Engine) React(eff store.Effects, prev, cur *state.State) {
	for i, r := range e.reactions {
		e.fire[i] = false
		if !r.Guard(prev, cur) {
			e.armed[i] = true
			continue
		}
		if r.Level || e.armed[i] {
			e.fire[i] = true
			e.armed[i] = false
		}
	}
	for i, r := range e.reactions {
		if !e.fire[i] {
			continue
		}
		e.metrics.IncReaction(r.Name)
		e.logger.Debug().Str("reaction", r.Name).Msg("reaction fired")
		r.Run(eff, cur)
	}
}
