package signaling

import (
	"sync"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/metrics"
	"github.com/rs/zerolog"
)

type (
	// RelayHandler consumes transport negotiation messages.
	RelayHandler interface {
		HandleRelay(msg Relay)
	}

	RouterConfig struct {
		Logger   *zerolog.Logger
		Dispatch func(event.Event)
		Metrics  *metrics.Metrics
	}

	// Router is the Handler installed on a socket. Room messages become
	// events on the store; relays go to the connected rtc endpoints.
	Router struct {
		logger   zerolog.Logger
		dispatch func(event.Event)
		metrics  *metrics.Metrics

		mx     *sync.RWMutex
		relays map[string]RelayHandler
	}
)

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		logger:   cfg.Logger.With().Str("component", "signaling-router").Logger(),
		dispatch: cfg.Dispatch,
		metrics:  cfg.Metrics,
		mx:       &sync.RWMutex{},
		relays:   make(map[string]RelayHandler),
	}
}

// Connect attaches a relay endpoint under name, replacing any previous one.
func (r *Router) Connect(name string, h RelayHandler) {
	r.mx.Lock()
	defer func() {
		r.mx.Unlock()
		r.logger.Debug().Str("endpoint", name).Msg("relay endpoint connected")
	}()
	r.relays[name] = h
}

func (r *Router) Disconnect(name string) {
	r.mx.Lock()
	defer func() {
		r.mx.Unlock()
		r.logger.Debug().Str("endpoint", name).Msg("relay endpoint disconnected")
	}()
	delete(r.relays, name)
}

func (r *Router) HandleMessage(msg Message) {
	r.metrics.IncSignaling("in", msg.Type)
	ev, relay, err := Decode(msg)
	if err != nil {
		r.logger.Error().Err(err).Str("type", msg.Type).Msg("inbound message dropped")
		return
	}
	if relay != nil {
		if !r.forward(*relay) {
			r.logger.Debug().
				Str("type", relay.Kind).
				Str("src", relay.SenderID).
				Msg("relay was dropped, nowhere to forward")
		}
		return
	}
	r.logger.Trace().Str("type", msg.Type).Msg("inbound message")
	r.dispatch(ev)
}

func (r *Router) HandleDisconnect(err error) {
	r.logger.Warn().Err(err).Msg("signaling socket lost")
	r.dispatch(event.SocketDisconnected{Err: err})
}

func (r *Router) forward(msg Relay) bool {
	r.mx.RLock()
	handlers := make([]RelayHandler, 0, len(r.relays))
	for _, h := range r.relays {
		handlers = append(handlers, h)
	}
	r.mx.RUnlock()

	for _, h := range handlers {
		h.HandleRelay(msg)
	}
	return len(handlers) > 0
}
