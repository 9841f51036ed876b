package reaction

import (
	"context"
	"testing"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/metrics"
	"github.com/adwski/roomsdk/sdk/state"
	"github.com/adwski/roomsdk/sdk/store"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, c.Write(metric))
	return metric.GetCounter().GetValue()
}

// harness drives an Engine synchronously: dispatched events are applied in
// order and async work runs only when settle is called. Like the store, it
// cancels work when the epoch changes and drops results of older epochs.
type harness struct {
	t       *testing.T
	logger  zerolog.Logger
	metrics *metrics.Metrics
	engine  *Engine
	cur     *state.State
	queue   []event.Event
	async   []job
	stale   int

	epochCtx    context.Context
	epochCancel context.CancelFunc
}

type job struct {
	epoch uint64
	ctx   context.Context
	fn    func(ctx context.Context) event.Event
}

func newHarness(t *testing.T, reactions []Reaction) *harness {
	h := &harness{
		t:       t,
		logger:  zerolog.Nop(),
		metrics: metrics.New(nil),
		cur:     state.Initial(),
	}
	h.epochCtx, h.epochCancel = context.WithCancel(context.Background())
	t.Cleanup(func() { h.epochCancel() })
	h.engine = NewEngine(EngineConfig{Logger: &h.logger, Metrics: h.metrics, Reactions: reactions})
	return h
}

func (h *harness) Dispatch(ev event.Event) {
	h.queue = append(h.queue, ev)
}

func (h *harness) Go(fn func(ctx context.Context) event.Event) {
	h.async = append(h.async, job{epoch: h.cur.Session.Epoch, ctx: h.epochCtx, fn: fn})
}

func (h *harness) Logger() *zerolog.Logger {
	return &h.logger
}

func (h *harness) send(evs ...event.Event) {
	h.queue = append(h.queue, evs...)
	h.drain()
}

func (h *harness) drain() {
	for len(h.queue) > 0 {
		ev := h.queue[0]
		h.queue = h.queue[1:]
		prev := h.cur
		cur, _ := state.Reduce(prev, ev)
		h.cur = cur
		if cur.Session.Epoch != prev.Session.Epoch {
			h.epochCancel()
			h.epochCtx, h.epochCancel = context.WithCancel(context.Background())
		}
		if cur != prev {
			h.engine.React(h, prev, cur)
		}
	}
}

// settle runs async work until none is left.
func (h *harness) settle() {
	for len(h.async) > 0 {
		j := h.async[0]
		h.async = h.async[1:]
		ev := j.fn(j.ctx)
		switch {
		case ev == nil:
		case j.epoch != h.cur.Session.Epoch:
			h.stale++
		default:
			h.queue = append(h.queue, ev)
		}
		h.drain()
	}
}

func (h *harness) fired(name string) float64 {
	h.t.Helper()
	return counterValue(h.t, h.metrics.ReactionsFired.WithLabelValues(name))
}

var _ store.Effects = (*harness)(nil)

func TestEngineArming(t *testing.T) {
	var open bool
	runs := 0
	h := newHarness(t, []Reaction{{
		Name:  "watch",
		Guard: func(_, cur *state.State) bool { return open },
		Run:   func(store.Effects, *state.State) { runs++ },
	}})

	open = true
	h.send(event.CameraEnabled{Enabled: true})
	h.send(event.MicrophoneEnabled{Enabled: true})
	assert.Equal(t, 1, runs, "disarmed after firing")

	open = false
	h.send(event.CameraEnabled{Enabled: false})
	open = true
	h.send(event.MicrophoneEnabled{Enabled: false})
	assert.Equal(t, 2, runs, "re-armed by a false guard")
	assert.Equal(t, 2.0, h.fired("watch"))
}

func TestEngineLevelReaction(t *testing.T) {
	runs := 0
	h := newHarness(t, []Reaction{{
		Name:  "level",
		Guard: func(_, _ *state.State) bool { return true },
		Run:   func(store.Effects, *state.State) { runs++ },
		Level: true,
	}})

	h.send(event.CameraEnabled{Enabled: true}, event.CameraEnabled{Enabled: false})
	assert.Equal(t, 2, runs)
}

func TestEngineEvaluatesGuardsBeforeRunning(t *testing.T) {
	flag := false
	second := 0
	h := newHarness(t, []Reaction{
		{
			Name:  "first",
			Guard: func(_, _ *state.State) bool { return true },
			Run:   func(store.Effects, *state.State) { flag = true },
		},
		{
			Name:  "second",
			Guard: func(_, _ *state.State) bool { return flag },
			Run:   func(store.Effects, *state.State) { second++ },
		},
	})

	h.send(event.CameraEnabled{Enabled: true})
	assert.True(t, flag)
	assert.Zero(t, second, "second saw the pair before first ran")

	h.send(event.CameraEnabled{Enabled: false})
	assert.Equal(t, 1, second)
}
