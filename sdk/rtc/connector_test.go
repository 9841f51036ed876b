package rtc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/signaling"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	mx     sync.Mutex
	closed bool
	all    int
}

func (m *fakeManager) AcceptNewStream(AcceptRequest) {}
func (m *fakeManager) Disconnect(string, bool) {}
func (m *fakeManager) ShouldAcceptStreamsFromBothSides() bool { return false }
func (m *fakeManager) HandleRelay(signaling.Relay) {}
func (m *fakeManager) DisconnectAll() { m.mx.Lock(); m.all++; m.mx.Unlock() }
func (m *fakeManager) Close() error { m.mx.Lock(); m.closed = true; m.mx.Unlock(); return nil }
func (m *fakeManager) isClosed() bool { m.mx.Lock(); defer m.mx.Unlock(); return m.closed }

type endpoints struct {
	mx    sync.Mutex
	names map[string]signaling.RelayHandler
}

func (e *endpoints) Connect(name string, h signaling.RelayHandler) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.names[name] = h
}

func (e *endpoints) Disconnect(name string) {
	e.mx.Lock()
	defer e.mx.Unlock()
	delete(e.names, name)
}

type events struct {
	mx  sync.Mutex
	evs []event.Event
}

func (e *events) dispatch(ev event.Event) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.evs = append(e.evs, ev)
}

func newConnector(f Factory) (*Connector, *endpoints, *events) {
	logger := zerolog.Nop()
	ep := &endpoints{names: map[string]signaling.RelayHandler{}}
	evs := &events{}
	return NewConnector(ConnectorConfig{
		Logger:    &logger,
		Factory:   f,
		Endpoints: ep,
		Dispatch:  evs.dispatch,
	}), ep, evs
}

func TestConnectorCreateAndClose(t *testing.T) {
	m := &fakeManager{}
	c, ep, evs := newConnector(FactoryFunc(func(context.Context, ManagerConfig) (Manager, error) {
		return m, nil
	}))

	ev := c.Create(context.Background(), nil)
	assert.Equal(t, event.RTCDispatcherCreated{}, ev)
	assert.Same(t, m, c.Manager())
	assert.Contains(t, ep.names, relayEndpoint)
	assert.Equal(t, []event.Event{event.RTCManagerCreated{}}, evs.evs)

	c.DisconnectAll()
	assert.Equal(t, 1, m.all)

	c.Close()
	assert.True(t, m.isClosed())
	assert.Nil(t, c.Manager())
	assert.NotContains(t, ep.names, relayEndpoint)
	assert.Equal(t, event.RTCManagerDestroyed{}, evs.evs[len(evs.evs)-1])

	// closing twice reports nothing new
	c.Close()
	assert.Len(t, evs.evs, 2)
}

func TestConnectorCreateFailure(t *testing.T) {
	boom := errors.New("boom")
	c, _, evs := newConnector(FactoryFunc(func(context.Context, ManagerConfig) (Manager, error) {
		return nil, boom
	}))

	ev := c.Create(context.Background(), nil)
	failed, ok := ev.(event.RTCDispatcherCreateFailed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, ErrCreate)
	assert.ErrorIs(t, failed.Err, boom)
	assert.Nil(t, c.Manager())
	assert.Empty(t, evs.evs)
}

func TestConnectorSupersedesInFlightCreation(t *testing.T) {
	first := &fakeManager{}
	second := &fakeManager{}
	release := make(chan struct{})
	entered := make(chan struct{})
	calls := 0
	c, _, _ := newConnector(FactoryFunc(func(ctx context.Context, _ ManagerConfig) (Manager, error) {
		calls++
		if calls == 1 {
			close(entered)
			<-release
			assert.Error(t, ctx.Err())
			return first, nil
		}
		return second, nil
	}))

	done := make(chan event.Event)
	go func() {
		done <- c.Create(context.Background(), nil)
	}()
	<-entered

	assert.Equal(t, event.RTCDispatcherCreated{}, c.Create(context.Background(), nil))
	close(release)

	assert.Nil(t, <-done)
	assert.True(t, first.isClosed())
	assert.False(t, second.isClosed())
	assert.Same(t, second, c.Manager())
}

func TestConnectorCloseDropsLateManager(t *testing.T) {
	m := &fakeManager{}
	release := make(chan struct{})
	entered := make(chan struct{})
	c, _, evs := newConnector(FactoryFunc(func(context.Context, ManagerConfig) (Manager, error) {
		close(entered)
		<-release
		return m, nil
	}))

	done := make(chan event.Event)
	go func() {
		done <- c.Create(context.Background(), nil)
	}()
	<-entered
	c.Close()
	close(release)

	assert.Nil(t, <-done)
	assert.True(t, m.isClosed())
	assert.Nil(t, c.Manager())
	assert.Empty(t, evs.evs)
}
