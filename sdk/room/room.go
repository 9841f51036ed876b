// Package room is the public face of the sdk: a Session joins one room,
// takes commands and reports what changed as Events.
package room

import (
	"context"
	"errors"
	"time"

	"github.com/adwski/roomsdk/sdk/api"
	"github.com/adwski/roomsdk/sdk/credentials"
	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/media"
	"github.com/adwski/roomsdk/sdk/metrics"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/organization"
	"github.com/adwski/roomsdk/sdk/reaction"
	"github.com/adwski/roomsdk/sdk/registry"
	"github.com/adwski/roomsdk/sdk/rtc"
	"github.com/adwski/roomsdk/sdk/rtc/p2p"
	"github.com/adwski/roomsdk/sdk/signaling"
	"github.com/adwski/roomsdk/sdk/signaling/websocket"
	"github.com/adwski/roomsdk/sdk/state"
	"github.com/adwski/roomsdk/sdk/store"
	"github.com/adwski/roomsdk/sdk/stream"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrDevice    = errors.New("unable to use capture device")
	ErrTransport = errors.New("unable to set up rtc transport")
)

type (
	Config struct {
		Logger  *zerolog.Logger
		Metrics *metrics.Metrics

		APIBaseURL   string
		SignalingURL string
		// BaseDomain is the domain room urls are matched against.
		BaseDomain string
		SDKVersion string

		ICEServers                 []string
		AcceptStreamsFromBothSides bool

		// Devices holds the process wide capture devices; Device names the
		// one this session publishes. An empty Device joins without media.
		Devices           *registry.Registry[media.Capturer]
		Device            string
		CameraEnabled     bool
		MicrophoneEnabled bool

		WakeLock media.WakeLock
		Policy   stream.Policy

		// Optional collaborators. Nil ones are built from the urls above.
		Credentials  reaction.CredentialSource
		Organization reaction.OrganizationSource
		Socket       signaling.Socket
		RTC          rtc.Factory

		ReconnectDelay time.Duration
	}

	// Session is one room session. Commands are safe to call from any
	// goroutine once Run has been started.
	Session struct {
		logger     zerolog.Logger
		baseDomain string
		sdkVersion string

		store     *store.Store
		socket    signaling.Socket
		router    *signaling.Router
		connector *rtc.Connector
		local     *media.Local

		chatLimiter *rate.Limiter
	}
)

func New(cfg Config) (*Session, error) {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}
	s := &Session{
		logger:      cfg.Logger.With().Str("component", "room").Logger(),
		baseDomain:  cfg.BaseDomain,
		sdkVersion:  cfg.SDKVersion,
		chatLimiter: rate.NewLimiter(chatRate, chatBurst),
	}
	// The store is built last; every collaborator dispatches through it.
	dispatch := func(ev event.Event) { s.store.Dispatch(ev) }

	if cfg.Credentials == nil || cfg.Organization == nil {
		apiClient := api.NewClient(api.Config{Logger: cfg.Logger, BaseURL: cfg.APIBaseURL})
		if cfg.Credentials == nil {
			cfg.Credentials = credentials.NewProvider(credentials.Config{Logger: cfg.Logger, API: apiClient})
		}
		if cfg.Organization == nil {
			cfg.Organization = organization.NewResolver(organization.Config{Logger: cfg.Logger, API: apiClient})
		}
	}

	s.socket = cfg.Socket
	if s.socket == nil {
		s.socket = websocket.NewClient(websocket.Config{
			Logger:  cfg.Logger,
			Metrics: cfg.Metrics,
			URL:     cfg.SignalingURL,
		})
	}
	s.router = signaling.NewRouter(signaling.RouterConfig{
		Logger:   cfg.Logger,
		Dispatch: dispatch,
		Metrics:  cfg.Metrics,
	})

	factory := cfg.RTC
	if factory == nil {
		f, err := p2p.NewFactory(p2p.Config{
			Logger:                     cfg.Logger,
			ICEServers:                 cfg.ICEServers,
			AcceptStreamsFromBothSides: cfg.AcceptStreamsFromBothSides,
		})
		if err != nil {
			return nil, errors.Join(ErrTransport, err)
		}
		factory = f
	}
	s.connector = rtc.NewConnector(rtc.ConnectorConfig{
		Logger:    cfg.Logger,
		Factory:   factory,
		Endpoints: s.router,
		Relay:     s.socket,
		Dispatch:  dispatch,
	})

	deps := reaction.Deps{
		Credentials:    cfg.Credentials,
		Organization:   cfg.Organization,
		Socket:         s.socket,
		Handler:        s.router,
		Transport:      s.connector,
		WakeLock:       cfg.WakeLock,
		Policy:         cfg.Policy,
		ReconnectDelay: cfg.ReconnectDelay,
	}
	if cfg.Device != "" {
		if cfg.Devices == nil {
			return nil, ErrDevice
		}
		capturer, err := cfg.Devices.Lookup(cfg.Device)
		if err != nil {
			return nil, errors.Join(ErrDevice, err)
		}
		s.local = media.NewLocal(media.Config{
			Logger:            cfg.Logger,
			Capturer:          capturer,
			Dispatch:          dispatch,
			CameraEnabled:     cfg.CameraEnabled,
			MicrophoneEnabled: cfg.MicrophoneEnabled,
		})
		deps.Media = s.local
	}

	s.store = store.New(store.Config{
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
		Reactor: reaction.NewEngine(reaction.EngineConfig{
			Logger:    cfg.Logger,
			Metrics:   cfg.Metrics,
			Reactions: reaction.Table(deps),
		}),
	})
	return s, nil
}

// Run processes the session until ctx is done, then drops the transport
// and the socket.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		s.connector.Close()
		if err := s.socket.Close(); err != nil && !errors.Is(err, signaling.ErrNotConnected) {
			s.logger.Warn().Err(err).Msg("socket close failed")
		}
		s.logger.Debug().Msg("session stopped")
	}()
	return s.store.Run(ctx)
}

// State returns the latest snapshot.
func (s *Session) State() *state.State {
	return s.store.State()
}

// Subscribe calls fn with every event projected from a settled transition.
// fn runs on the session goroutine and must not block.
func (s *Session) Subscribe(fn func(Event)) func() {
	return s.store.Subscribe(func(prev, cur *state.State, err *model.Error) {
		for _, ev := range Project(prev, cur, err) {
			fn(ev)
		}
	})
}

// SubscribeState observes raw snapshots.
func (s *Session) SubscribeState(l store.Listener) func() {
	return s.store.Subscribe(l)
}
