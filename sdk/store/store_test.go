package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/metrics"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/state"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mx    sync.Mutex
	kinds []string
}

func (r *recorder) React(_ Effects, _, cur *state.State) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.kinds = append(r.kinds, string(cur.Status()))
}

func newStore(t *testing.T, reactor Reactor) (*Store, *metrics.Metrics) {
	t.Helper()
	logger := zerolog.Nop()
	m := metrics.New(nil)
	return New(Config{Logger: &logger, Reactor: reactor, Metrics: m}), m
}

func start(t *testing.T, s *Store) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.Run(ctx)
	}()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func joinedEvents() []event.Event {
	return []event.Event{
		event.JoinRequested{},
		event.RoomJoined{SelfID: "p1", Clients: []model.Client{{ID: "p1"}, {ID: "p2", Streams: []string{"0"}}}},
	}
}

func TestEventsAppliedInArrivalOrder(t *testing.T) {
	s, _ := newStore(t, nil)
	var (
		mx    sync.Mutex
		kinds []string
	)
	s.Subscribe(func(prev, cur *state.State, err *model.Error) {
		mx.Lock()
		defer mx.Unlock()
		kinds = append(kinds, string(cur.Status()))
	})

	stop := start(t, s)
	defer stop()

	for _, ev := range joinedEvents() {
		s.Dispatch(ev)
	}
	// an rtc event and a room event racing for the queue
	s.Dispatch(event.StreamAdded{ClientID: "p2", StreamID: "0"})
	s.Dispatch(event.ParticipantLeft{ClientID: "p2"})
	s.Dispatch(event.LeaveRequested{})

	require.Eventually(t, func() bool {
		return s.State().Status() == model.ConnectionStatusDisconnecting
	}, time.Second, 5*time.Millisecond)

	mx.Lock()
	defer mx.Unlock()
	assert.Equal(t, []string{"connecting", "connected", "connected", "disconnecting"}, kinds)
	assert.Nil(t, s.State().Remote.Find("p2"))
}

func TestStaleAsyncResultDropped(t *testing.T) {
	s, m := newStore(t, nil)
	stop := start(t, s)
	defer stop()

	s.Dispatch(event.JoinRequested{})
	require.Eventually(t, func() bool { return s.State().Session.WantsToJoin }, time.Second, 5*time.Millisecond)

	// the work ignores cancellation, so only the epoch check stops its result
	release := make(chan struct{})
	s.Go(func(context.Context) event.Event {
		<-release
		return event.CredentialsFetched{Credentials: model.Credentials{UUID: "late"}}
	})

	s.Dispatch(event.LeaveRequested{})
	require.Eventually(t, func() bool { return s.State().Session.Epoch == 1 }, time.Second, 5*time.Millisecond)
	close(release)

	require.Eventually(t, func() bool {
		metric := &dto.Metric{}
		if err := m.StaleDropped.WithLabelValues("credentials_fetched").Write(metric); err != nil {
			return false
		}
		return metric.GetCounter().GetValue() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, s.State().Credentials.Credentials)
}

func TestEpochChangeCancelsAsyncWork(t *testing.T) {
	s, _ := newStore(t, nil)
	stop := start(t, s)
	defer stop()

	s.Dispatch(event.JoinRequested{})
	require.Eventually(t, func() bool { return s.State().Session.WantsToJoin }, time.Second, 5*time.Millisecond)

	canceled := make(chan struct{})
	s.Go(func(ctx context.Context) event.Event {
		<-ctx.Done()
		close(canceled)
		return nil
	})

	s.Dispatch(event.LeaveRequested{})
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("work of the previous epoch was not canceled")
	}

	// work started after the change runs under a live context
	s.Go(func(ctx context.Context) event.Event {
		if ctx.Err() != nil {
			return nil
		}
		return event.CredentialsFetched{Credentials: model.Credentials{UUID: "fresh"}}
	})
	require.Eventually(t, func() bool {
		c := s.State().Credentials.Credentials
		return c != nil && c.UUID == "fresh"
	}, time.Second, 5*time.Millisecond)
}

func TestAsyncResultApplied(t *testing.T) {
	s, _ := newStore(t, nil)
	stop := start(t, s)
	defer stop()

	s.Go(func(context.Context) event.Event {
		return event.CredentialsFetched{Credentials: model.Credentials{UUID: "u"}}
	})
	s.Go(func(context.Context) event.Event { return nil })

	require.Eventually(t, func() bool {
		c := s.State().Credentials.Credentials
		return c != nil && c.UUID == "u"
	}, time.Second, 5*time.Millisecond)
}

func TestProtocolErrorReachesSubscribers(t *testing.T) {
	s, m := newStore(t, nil)
	errc := make(chan *model.Error, 1)
	unsubscribe := s.Subscribe(func(prev, cur *state.State, err *model.Error) {
		if err != nil {
			assert.Same(t, prev, cur)
			errc <- err
		}
	})
	defer unsubscribe()

	stop := start(t, s)
	defer stop()

	s.Dispatch(event.JoinRequested{})
	s.Dispatch(event.RoomJoined{SelfID: "ghost", Clients: []model.Client{{ID: "p1"}}})

	select {
	case err := <-errc:
		assert.Equal(t, model.KindProtocol, err.Kind)
	case <-time.After(time.Second):
		t.Fatal("no protocol error delivered")
	}
	assert.Equal(t, model.ConnectionStatusConnecting, s.State().Status())

	metric := &dto.Metric{}
	require.NoError(t, m.ProtocolErrors.Write(metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())
}

func TestReactorSeesChangedTransitionsOnly(t *testing.T) {
	r := &recorder{}
	s, _ := newStore(t, r)
	stop := start(t, s)
	defer stop()

	s.Dispatch(event.JoinRequested{})
	s.Dispatch(event.ParticipantLeft{ClientID: "nobody"})
	s.Dispatch(event.LeaveRequested{})

	require.Eventually(t, func() bool {
		r.mx.Lock()
		defer r.mx.Unlock()
		return len(r.kinds) == 2
	}, time.Second, 5*time.Millisecond)
	r.mx.Lock()
	defer r.mx.Unlock()
	assert.Equal(t, []string{"connecting", "disconnecting"}, r.kinds)
}

func TestThunkSeesLatestState(t *testing.T) {
	s, _ := newStore(t, nil)
	stop := start(t, s)
	defer stop()

	got := make(chan model.ConnectionStatus, 1)
	s.Dispatch(event.JoinRequested{})
	s.Do(func(eff Effects, cur *state.State) {
		got <- cur.Status()
		eff.Dispatch(event.LeaveRequested{})
	})

	select {
	case st := <-got:
		assert.Equal(t, model.ConnectionStatusConnecting, st)
	case <-time.After(time.Second):
		t.Fatal("thunk did not run")
	}
	require.Eventually(t, func() bool {
		return s.State().Status() == model.ConnectionStatusDisconnecting
	}, time.Second, 5*time.Millisecond)
}

func TestRunTwice(t *testing.T) {
	s, _ := newStore(t, nil)
	stop := start(t, s)

	require.Eventually(t, func() bool { return s.running.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Run(context.Background()), ErrRunning)
	stop()

	assert.ErrorIs(t, s.Run(context.Background()), ErrStopped)
}
