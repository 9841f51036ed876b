// Package store serializes every state transition of a room session onto a
// single queue and a single goroutine.
package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/metrics"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/state"
	"github.com/rs/zerolog"
)

var (
	ErrStopped = errors.New("store is stopped")
	ErrRunning = errors.New("store is already running")
)

type (
	// Effects is what reactions and thunks may do. Nothing here mutates
	// state directly: results come back as queued events.
	Effects interface {
		Dispatch(ev event.Event)
		// Go runs fn in its own goroutine and queues the returned event.
		// A nil event is ignored. ctx is canceled once the session epoch
		// changes, and a result of an older epoch is dropped.
		Go(fn func(ctx context.Context) event.Event)
		Logger() *zerolog.Logger
	}

	// Thunk runs on the store goroutine against the latest state.
	Thunk func(eff Effects, cur *state.State)

	// Reactor is evaluated after every transition that changed the state.
	Reactor interface {
		React(eff Effects, prev, cur *state.State)
	}

	// Listener observes settled transitions. err is a protocol violation
	// raised by the transition, if any.
	Listener func(prev, cur *state.State, err *model.Error)

	Config struct {
		Logger  *zerolog.Logger
		Reactor Reactor
		Metrics *metrics.Metrics
		Initial *state.State
	}

	Store struct {
		logger  zerolog.Logger
		reactor Reactor
		metrics *metrics.Metrics

		cur atomic.Pointer[state.State]
		q   *queue

		listenersMx *sync.Mutex
		listeners   []subscription
		nextID      uint64

		running atomic.Bool

		asyncMx     *sync.Mutex
		asyncCtx    context.Context
		asyncCancel context.CancelFunc
		async       *sync.WaitGroup
		stopped     bool

		// work of the current epoch runs under epochCtx
		epoch       uint64
		epochCtx    context.Context
		epochCancel context.CancelFunc
	}
)

type (
	item any

	subscription struct {
		id uint64
		l  Listener
	}

	staleCheck struct {
		epoch uint64
		ev    event.Event
	}
)

func New(cfg Config) *Store {
	s := &Store{
		logger:      cfg.Logger.With().Str("component", "store").Logger(),
		reactor:     cfg.Reactor,
		metrics:     cfg.Metrics,
		q:           newQueue(),
		listenersMx: &sync.Mutex{},
		asyncMx:     &sync.Mutex{},
		async:       &sync.WaitGroup{},
	}
	s.asyncCtx, s.asyncCancel = context.WithCancel(context.Background())
	initial := cfg.Initial
	if initial == nil {
		initial = state.Initial()
	}
	s.cur.Store(initial)
	s.epoch = initial.Session.Epoch
	s.epochCtx, s.epochCancel = context.WithCancel(s.asyncCtx)
	return s
}

// State returns the latest settled snapshot. Callers must not modify it.
func (s *Store) State() *state.State {
	return s.cur.Load()
}

func (s *Store) Logger() *zerolog.Logger {
	return &s.logger
}

// Dispatch queues ev. It never blocks.
func (s *Store) Dispatch(ev event.Event) {
	if ev == nil {
		return
	}
	s.enqueue(ev)
}

// Do queues a thunk.
func (s *Store) Do(fn Thunk) {
	if fn == nil {
		return
	}
	s.enqueue(fn)
}

func (s *Store) enqueue(it item) {
	s.metrics.SetQueueDepth(s.q.push(it))
}

// Go is safe to call from any goroutine.
func (s *Store) Go(fn func(ctx context.Context) event.Event) {
	s.asyncMx.Lock()
	defer s.asyncMx.Unlock()
	if s.stopped {
		s.logger.Debug().Msg("async work after stop ignored")
		return
	}
	epoch, ctx := s.epoch, s.epochCtx
	s.async.Add(1)
	go func() {
		defer s.async.Done()
		ev := fn(ctx)
		if ev == nil {
			return
		}
		s.enqueue(staleCheck{epoch: epoch, ev: ev})
	}()
}

// Subscribe registers l and returns a func that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMx.Lock()
	defer s.listenersMx.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, l: l})
	return func() {
		s.listenersMx.Lock()
		defer s.listenersMx.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Run applies queued items until ctx is done. Goroutines started with Go are
// canceled and waited for before Run returns.
func (s *Store) Run(ctx context.Context) error {
	if s.asyncCtx.Err() != nil {
		return ErrStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer func() {
		s.asyncMx.Lock()
		s.stopped = true
		s.asyncMx.Unlock()
		s.asyncCancel()
		s.async.Wait()
		s.running.Store(false)
		s.logger.Debug().Msg("store stopped")
	}()

	s.logger.Debug().Msg("store started")
RunLoop:
	for {
		select {
		case <-ctx.Done():
			break RunLoop
		case <-s.q.ready():
			for {
				it, left, ok := s.q.pop()
				if !ok {
					break
				}
				s.metrics.SetQueueDepth(left)
				s.process(it)
				if ctx.Err() != nil {
					break RunLoop
				}
			}
		}
	}
	return nil
}

func (s *Store) process(it item) {
	switch v := it.(type) {
	case Thunk:
		v(s, s.State())
	case staleCheck:
		if cur := s.State().Session.Epoch; cur != v.epoch {
			s.metrics.IncStale(v.ev.Kind())
			s.logger.Warn().
				Str("kind", v.ev.Kind()).
				Uint64("epoch", v.epoch).
				Uint64("current", cur).
				Msg("stale async result dropped")
			return
		}
		s.apply(v.ev)
	case event.Event:
		s.apply(v)
	}
}

func (s *Store) apply(ev event.Event) {
	prev := s.State()
	cur, err := state.Reduce(prev, ev)
	s.metrics.IncEvent(ev.Kind())
	s.logger.Trace().Str("kind", ev.Kind()).Bool("changed", cur != prev).Msg("event applied")

	if err != nil {
		s.metrics.IncProtocolError()
		s.logger.Error().Err(err).Str("kind", ev.Kind()).Msg("event rejected")
	}
	if cur == prev && err == nil {
		return
	}
	s.cur.Store(cur)
	if cur.Session.Epoch != prev.Session.Epoch {
		s.advanceEpoch(cur.Session.Epoch)
	}
	s.notify(prev, cur, err)
	if cur != prev && s.reactor != nil {
		s.reactor.React(s, prev, cur)
	}
}

// advanceEpoch cancels everything started for earlier epochs.
func (s *Store) advanceEpoch(epoch uint64) {
	s.asyncMx.Lock()
	defer s.asyncMx.Unlock()
	s.epochCancel()
	s.epochCtx, s.epochCancel = context.WithCancel(s.asyncCtx)
	s.epoch = epoch
	s.logger.Debug().Uint64("epoch", epoch).Msg("epoch advanced")
}

func (s *Store) notify(prev, cur *state.State, err *model.Error) {
	s.listenersMx.Lock()
	subs := s.listeners
	s.listenersMx.Unlock()
	for _, sub := range subs {
		sub.l(prev, cur, err)
	}
}
