package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []event.Event
}

func (r *recorder) dispatch(ev event.Event) {
	r.events = append(r.events, ev)
}

func newLocal(c Capturer, camera, mic bool) (*Local, *recorder) {
	logger := zerolog.Nop()
	rec := &recorder{}
	return NewLocal(Config{
		Logger:            &logger,
		Capturer:          c,
		Dispatch:          rec.dispatch,
		CameraEnabled:     camera,
		MicrophoneEnabled: mic,
	}), rec
}

func TestLocalStart(t *testing.T) {
	c := NewStaticCapturer()
	l, rec := newLocal(c, true, false)

	ev := l.Start(context.Background())
	started, ok := ev.(event.LocalMediaStarted)
	require.True(t, ok)
	require.NotNil(t, started.Stream)
	assert.True(t, started.Stream.HasAudioTrack())
	assert.Len(t, started.Stream.(*Stream).Tracks(), 2)
	assert.Equal(t, []event.Event{
		event.CameraEnabled{Enabled: true},
		event.MicrophoneEnabled{Enabled: false},
	}, rec.events)

	again := l.Start(context.Background()).(event.LocalMediaStarted)
	assert.Same(t, started.Stream, again.Stream)
	assert.True(t, c.camera)
	assert.False(t, c.microphone)
}

type failingCapturer struct {
	StaticCapturer
}

func (failingCapturer) Start(context.Context) (model.MediaStream, error) {
	return nil, errors.New("no camera")
}

func TestLocalStartFailure(t *testing.T) {
	l, rec := newLocal(&failingCapturer{StaticCapturer: *NewStaticCapturer()}, true, true)

	ev := l.Start(context.Background())
	failed, ok := ev.(event.LocalMediaStartFailed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, ErrStart)
	assert.Empty(t, rec.events)
	assert.Nil(t, l.Stream())
}

func TestLocalToggle(t *testing.T) {
	c := NewStaticCapturer()
	l, rec := newLocal(c, true, true)
	l.Start(context.Background())
	rec.events = nil

	require.NoError(t, l.ToggleCamera(nil))
	off := true
	require.NoError(t, l.ToggleMicrophone(&off))

	assert.Equal(t, []event.Event{
		event.CameraEnabled{Enabled: false},
		event.MicrophoneEnabled{Enabled: true},
	}, rec.events)
	assert.False(t, c.camera)

	// disabled camera drops frames instead of writing them
	assert.NoError(t, c.WriteVideo([]byte{1, 2, 3}, time.Millisecond))
}

func TestLocalScreenshare(t *testing.T) {
	l, _ := newLocal(NewStaticCapturer(), false, false)

	s, err := l.StartScreenshare(context.Background())
	require.NoError(t, err)
	assert.False(t, s.HasAudioTrack())

	_, err = l.StartScreenshare(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySharing)

	stopped, err := l.StopScreenshare()
	require.NoError(t, err)
	assert.Same(t, s, stopped)

	_, err = l.StopScreenshare()
	assert.ErrorIs(t, err, ErrScreenshareAbsent)
}

func TestWakeLock(t *testing.T) {
	assert.ErrorIs(t, NoWakeLock{}.Acquire(), ErrUnsupported)

	acquired, released := 0, 0
	w := NewProcessWakeLock()
	w.OnAcquire = func() error { acquired++; return nil }
	w.OnRelease = func() error { released++; return nil }

	require.NoError(t, w.Acquire())
	require.NoError(t, w.Acquire())
	assert.True(t, w.Held())
	require.NoError(t, w.Release())
	require.NoError(t, w.Release())
	assert.False(t, w.Held())
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
}
