// Command roomctl joins a room headless and logs what happens in it.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/adwski/roomsdk/sdk/config"
	"github.com/adwski/roomsdk/sdk/media"
	"github.com/adwski/roomsdk/sdk/metrics"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/registry"
	"github.com/adwski/roomsdk/sdk/room"
	statusServer "github.com/adwski/roomsdk/sdk/server/http"
	"github.com/adwski/roomsdk/sdk/session"
	"github.com/adwski/roomsdk/sdk/state"
	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const (
	deviceStatic = "static"
	sdkVersion   = "roomctl/0.1"

	leaveTimeout = 5 * time.Second
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		configPath  = fs.StringP("config", "c", "", "path to yaml config")
		roomURL     = fs.StringP("room-url", "r", "", "room url to join")
		displayName = fs.StringP("display-name", "n", "", "display name in the room")
		logLevel    = fs.StringP("log-level", "l", "", "log level")
		statusAddr  = fs.StringP("status-addr", "s", "", "status server listen address, empty disables it")
		dumpState   = fs.Bool("dump-state", false, "dump every snapshot at trace level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	overrideString(&cfg.RoomURL, *roomURL)
	overrideString(&cfg.DisplayName, *displayName)
	overrideString(&cfg.LogLevel, *logLevel)
	overrideString(&cfg.StatusAddr, *statusAddr)
	if err = cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	reg := prometheus.NewRegistry()
	devices := registry.New[media.Capturer]()
	defer func() {
		if errD := devices.DisposeAll(); errD != nil {
			logger.Warn().Err(errD).Msg("failed to release devices")
		}
	}()
	if cfg.Device != "" {
		if cfg.Device != deviceStatic {
			logger.Fatal().Str("device", cfg.Device).Msg("unknown capture device")
		}
		if _, err = devices.CreateOrGet(deviceStatic, func() (media.Capturer, error) {
			return media.NewStaticCapturer(), nil
		}); err != nil {
			logger.Fatal().Err(err).Msg("failed to register device")
		}
	}

	wakeLock := media.NewProcessWakeLock()
	wakeLock.OnAcquire = func() error {
		logger.Info().Msg("keeping the process awake")
		return nil
	}

	sess, err := room.New(room.Config{
		Logger:                     &logger,
		Metrics:                    metrics.New(reg),
		APIBaseURL:                 cfg.APIBaseURL,
		SignalingURL:               cfg.SignalingURL,
		BaseDomain:                 cfg.BaseDomain,
		SDKVersion:                 sdkVersion,
		ICEServers:                 cfg.ICEServers,
		AcceptStreamsFromBothSides: cfg.AcceptStreamsFromBothSides,
		Devices:                    devices,
		Device:                     cfg.Device,
		CameraEnabled:              cfg.CameraEnabled,
		MicrophoneEnabled:          cfg.MicrophoneEnabled,
		WakeLock:                   wakeLock,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create session")
	}

	left := make(chan struct{})
	var leftOnce sync.Once
	sess.Subscribe(func(ev room.Event) {
		logEvent(&logger, ev)
		if ev.Type == room.ConnectionStatusChanged {
			switch ev.State.Status() {
			case model.ConnectionStatusDisconnected, model.ConnectionStatusKnockRejected:
				leftOnce.Do(func() { close(left) })
			}
		}
	})
	if *dumpState {
		sess.SubscribeState(func(_, cur *state.State, _ *model.Error) {
			logger.Trace().Msg(spew.Sdump(statusServer.StatusOf(cur)))
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 1)
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if errR := sess.Run(runCtx); errR != nil {
			errc <- errR
		}
	}()
	if cfg.StatusAddr != "" {
		srv := statusServer.NewServer(statusServer.Config{
			Logger:     &logger,
			State:      sess,
			Gatherer:   reg,
			ListenAddr: cfg.StatusAddr,
		})
		wg.Add(1)
		go srv.Run(runCtx, wg, errc)
	}

	err = sess.Join(cfg.RoomURL, session.Options{
		RoomKey:     cfg.RoomKey,
		DisplayName: cfg.DisplayName,
		ExternalID:  cfg.ExternalID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("unable to join")
		stop()
		wg.Wait()
		return
	}

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected error, shutting down")
	case <-left:
		logger.Info().Msg("session ended")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted, leaving the room")
		sess.Leave()
		select {
		case <-left:
		case <-time.After(leaveTimeout):
			logger.Warn().Msg("leave timed out")
		}
	}
	stop()
	wg.Wait()
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func logEvent(logger *zerolog.Logger, ev room.Event) {
	e := logger.Info()
	switch ev.Type {
	case room.ConnectionStatusChanged:
		e = e.Str("status", string(ev.State.Status()))
	case room.ParticipantsChanged:
		e = e.Int("participants", len(ev.State.Remote.Participants))
	case room.WaitingParticipantsChanged:
		e = e.Int("waiting", len(ev.State.Waiting.Participants))
	case room.ChatMessagesChanged:
		if msgs := ev.State.Chat.Messages; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			e = e.Str("sender", last.SenderID).Str("text", last.Text)
		}
	case room.Error:
		e = logger.Error().Err(ev.Err)
	default:
		e = logger.Debug().Any("value", ev.Value)
	}
	e.Str("event", string(ev.Type)).Msg("room event")
}
