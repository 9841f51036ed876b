// Package media owns local capture: the camera and microphone stream, the
// screenshare stream and the enablement flags reported to the room.
package media

import (
	"context"
	"errors"
	"sync"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/rs/zerolog"
)

var (
	ErrStart             = errors.New("unable to start local media")
	ErrScreenshare       = errors.New("unable to start screenshare")
	ErrAlreadySharing    = errors.New("screenshare is already active")
	ErrScreenshareAbsent = errors.New("no active screenshare")
)

// Capturer produces local streams. Implementations own the streams they return.
type Capturer interface {
	Start(ctx context.Context) (model.MediaStream, error)
	StartScreenshare(ctx context.Context) (model.MediaStream, error)
	StopScreenshare() error
	SetCameraEnabled(enabled bool) error
	SetMicrophoneEnabled(enabled bool) error
	Close() error
}

type (
	Config struct {
		Logger            *zerolog.Logger
		Capturer          Capturer
		Dispatch          func(event.Event)
		CameraEnabled     bool
		MicrophoneEnabled bool
	}

	// Local wraps a Capturer and reports its changes as events.
	Local struct {
		logger   zerolog.Logger
		capturer Capturer
		dispatch func(event.Event)

		mx          *sync.Mutex
		stream      model.MediaStream
		screenshare model.MediaStream
		camera      bool
		microphone  bool
	}
)

func NewLocal(cfg Config) *Local {
	return &Local{
		logger:     cfg.Logger.With().Str("component", "local-media").Logger(),
		capturer:   cfg.Capturer,
		dispatch:   cfg.Dispatch,
		mx:         &sync.Mutex{},
		camera:     cfg.CameraEnabled,
		microphone: cfg.MicrophoneEnabled,
	}
}

// Start opens the capture devices once; later calls return the same stream.
// The outcome is returned as an event for the store.
func (l *Local) Start(ctx context.Context) event.Event {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.stream != nil {
		return event.LocalMediaStarted{Stream: l.stream}
	}
	stream, err := l.capturer.Start(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("local media start failed")
		return event.LocalMediaStartFailed{Err: errors.Join(ErrStart, err)}
	}
	if err = l.capturer.SetCameraEnabled(l.camera); err != nil {
		l.logger.Warn().Err(err).Msg("unable to apply camera state")
	}
	if err = l.capturer.SetMicrophoneEnabled(l.microphone); err != nil {
		l.logger.Warn().Err(err).Msg("unable to apply microphone state")
	}
	l.stream = stream
	l.logger.Debug().Str("streamID", stream.ID()).Msg("local media started")

	// flags travel as their own events so sync reactions see a change
	l.dispatch(event.CameraEnabled{Enabled: l.camera})
	l.dispatch(event.MicrophoneEnabled{Enabled: l.microphone})
	return event.LocalMediaStarted{Stream: stream}
}

func (l *Local) ToggleCamera(enabled *bool) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	next := !l.camera
	if enabled != nil {
		next = *enabled
	}
	if l.stream != nil {
		if err := l.capturer.SetCameraEnabled(next); err != nil {
			return err
		}
	}
	l.camera = next
	l.dispatch(event.CameraEnabled{Enabled: next})
	return nil
}

func (l *Local) ToggleMicrophone(enabled *bool) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	next := !l.microphone
	if enabled != nil {
		next = *enabled
	}
	if l.stream != nil {
		if err := l.capturer.SetMicrophoneEnabled(next); err != nil {
			return err
		}
	}
	l.microphone = next
	l.dispatch(event.MicrophoneEnabled{Enabled: next})
	return nil
}

// StartScreenshare refuses to start a second screenshare.
func (l *Local) StartScreenshare(ctx context.Context) (model.MediaStream, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.screenshare != nil {
		return nil, ErrAlreadySharing
	}
	stream, err := l.capturer.StartScreenshare(ctx)
	if err != nil {
		return nil, errors.Join(ErrScreenshare, err)
	}
	l.screenshare = stream
	return stream, nil
}

func (l *Local) StopScreenshare() (model.MediaStream, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.screenshare == nil {
		return nil, ErrScreenshareAbsent
	}
	stream := l.screenshare
	l.screenshare = nil
	return stream, l.capturer.StopScreenshare()
}

// Stream returns the started camera stream, or nil.
func (l *Local) Stream() model.MediaStream {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.stream
}

func (l *Local) Close() error {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.stream, l.screenshare = nil, nil
	return l.capturer.Close()
}
