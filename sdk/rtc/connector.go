package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/signaling"
	"github.com/rs/zerolog"
)

const relayEndpoint = "rtc"

type (
	// Endpoints is where a live manager is attached to receive relays.
	Endpoints interface {
		Connect(name string, h signaling.RelayHandler)
		Disconnect(name string)
	}

	ConnectorConfig struct {
		Logger    *zerolog.Logger
		Factory   Factory
		Endpoints Endpoints
		Relay     signaling.Sender
		Dispatch  func(event.Event)
	}

	// Connector owns the session's manager. At most one manager is alive;
	// starting a new creation supersedes the one in flight.
	Connector struct {
		logger    zerolog.Logger
		factory   Factory
		endpoints Endpoints
		relay     signaling.Sender
		dispatch  func(event.Event)

		mx      *sync.Mutex
		manager Manager
		cancel  context.CancelFunc
		gen     uint64
	}
)

func NewConnector(cfg ConnectorConfig) *Connector {
	return &Connector{
		logger:    cfg.Logger.With().Str("component", "rtc-connector").Logger(),
		factory:   cfg.Factory,
		endpoints: cfg.Endpoints,
		relay:     cfg.Relay,
		dispatch:  cfg.Dispatch,
		mx:        &sync.Mutex{},
	}
}

// Create builds a manager and returns the outcome as an event. It is meant
// to run inside store Effects.Go. A superseded creation returns nil and
// closes whatever the factory produced.
func (c *Connector) Create(ctx context.Context, local model.MediaStream) event.Event {
	c.mx.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mx.Unlock()
	defer cancel()

	m, err := c.factory.NewManager(ctx, ManagerConfig{
		Relay:       c.relay,
		Dispatch:    c.dispatch,
		LocalStream: local,
	})

	c.mx.Lock()
	defer c.mx.Unlock()
	if gen != c.gen {
		if m != nil {
			if cErr := m.Close(); cErr != nil {
				c.logger.Warn().Err(cErr).Msg("unable to close superseded manager")
			}
		}
		c.logger.Debug().Err(ErrCanceled).Msg("manager creation dropped")
		return nil
	}
	c.cancel = nil
	if err != nil {
		c.logger.Error().Err(err).Msg("manager creation failed")
		return event.RTCDispatcherCreateFailed{Err: errors.Join(ErrCreate, err)}
	}
	if c.manager != nil {
		c.closeManager()
	}
	c.manager = m
	c.endpoints.Connect(relayEndpoint, m)
	c.logger.Debug().Msg("manager created")

	c.dispatch(event.RTCManagerCreated{})
	return event.RTCDispatcherCreated{}
}

// Manager returns the live manager, or nil.
func (c *Connector) Manager() Manager {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.manager
}

// DisconnectAll stops receiving every remote stream.
func (c *Connector) DisconnectAll() {
	if m := c.Manager(); m != nil {
		m.DisconnectAll()
	}
}

// Close cancels a creation in flight and destroys the live manager.
func (c *Connector) Close() {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	if c.manager == nil {
		return
	}
	c.closeManager()
	c.dispatch(event.RTCManagerDestroyed{})
}

func (c *Connector) closeManager() {
	c.endpoints.Disconnect(relayEndpoint)
	if err := c.manager.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("unable to close manager")
	}
	c.manager = nil
}
