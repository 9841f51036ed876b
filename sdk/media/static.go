package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adwski/roomsdk/sdk/model"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var ErrTrack = errors.New("unable to create local track")

// Stream is a local stream backed by pion sample tracks.
type Stream struct {
	id    string
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) HasAudioTrack() bool {
	return s.audio != nil
}

// Tracks returns the tracks to publish on a peer connection.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	return tracks
}

func newStream(withAudio, withVideo bool) (*Stream, error) {
	s := &Stream{id: uuid.NewString()}
	var err error
	if withAudio {
		s.audio, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", s.id)
		if err != nil {
			return nil, errors.Join(ErrTrack, err)
		}
	}
	if withVideo {
		s.video, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", s.id)
		if err != nil {
			return nil, errors.Join(ErrTrack, err)
		}
	}
	return s, nil
}

// StaticCapturer has no devices behind it. Its tracks carry whatever the
// owner writes with WriteAudio and WriteVideo, which suits headless clients.
type StaticCapturer struct {
	mx          *sync.Mutex
	stream      *Stream
	screenshare *Stream
	camera      bool
	microphone  bool
}

func NewStaticCapturer() *StaticCapturer {
	return &StaticCapturer{mx: &sync.Mutex{}}
}

func (c *StaticCapturer) Start(context.Context) (model.MediaStream, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.stream != nil {
		return c.stream, nil
	}
	s, err := newStream(true, true)
	if err != nil {
		return nil, err
	}
	c.stream = s
	return s, nil
}

func (c *StaticCapturer) StartScreenshare(context.Context) (model.MediaStream, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	s, err := newStream(false, true)
	if err != nil {
		return nil, err
	}
	c.screenshare = s
	return s, nil
}

func (c *StaticCapturer) StopScreenshare() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.screenshare = nil
	return nil
}

func (c *StaticCapturer) SetCameraEnabled(enabled bool) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.camera = enabled
	return nil
}

func (c *StaticCapturer) SetMicrophoneEnabled(enabled bool) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.microphone = enabled
	return nil
}

// WriteVideo pushes a frame to the camera track. Frames are dropped while
// the camera is disabled or the capturer is not started.
func (c *StaticCapturer) WriteVideo(frame []byte, d time.Duration) error {
	c.mx.Lock()
	s, on := c.stream, c.camera
	c.mx.Unlock()
	if s == nil || !on {
		return nil
	}
	return s.video.WriteSample(pionmedia.Sample{Data: frame, Duration: d})
}

func (c *StaticCapturer) WriteAudio(frame []byte, d time.Duration) error {
	c.mx.Lock()
	s, on := c.stream, c.microphone
	c.mx.Unlock()
	if s == nil || !on {
		return nil
	}
	return s.audio.WriteSample(pionmedia.Sample{Data: frame, Duration: d})
}

func (c *StaticCapturer) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.stream, c.screenshare = nil, nil
	return nil
}
