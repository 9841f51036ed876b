package state

import (
	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
)

func reduceLocalMedia(s *State, ev event.Event) *State {
	lm := *s.LocalMedia
	var stream model.MediaStream
	switch e := ev.(type) {
	case event.LocalMediaStarting:
		lm.Status = LocalMediaStarting
		lm.Err = nil
	case event.LocalMediaStarted:
		lm.Status = LocalMediaStarted
		lm.Stream = e.Stream
		stream = e.Stream
	case event.LocalMediaStartFailed:
		lm.Status = LocalMediaFailed
		lm.Err = e.Err
	case event.CameraEnabled:
		lm.CameraEnabled = e.Enabled
	case event.MicrophoneEnabled:
		lm.MicrophoneEnabled = e.Enabled
	}
	if lm == *s.LocalMedia {
		return s
	}
	n := s.clone()
	n.LocalMedia = &lm
	if stream != nil {
		lp := *s.LocalParticipant
		lp.Stream = stream
		n.LocalParticipant = &lp
	}
	return n
}

// reduceLocalParticipant handles fulfilled local commands. Remote state is never touched here.
func reduceLocalParticipant(s *State, ev event.Event) *State {
	lp := *s.LocalParticipant
	switch e := ev.(type) {
	case event.AudioEnableFulfilled:
		lp.IsAudioEnabled = e.Enabled
	case event.VideoEnableFulfilled:
		lp.IsVideoEnabled = e.Enabled
	case event.DisplayNameSet:
		lp.DisplayName = e.DisplayName
	}
	if lp == *s.LocalParticipant {
		return s
	}
	n := s.clone()
	n.LocalParticipant = &lp
	return n
}

func reduceScreenshareStarted(s *State, e event.ScreenshareStartFulfilled) *State {
	if e.Stream == nil {
		return s
	}
	sh := model.Screenshare{
		ParticipantID: s.LocalParticipant.ID,
		ID:            e.Stream.ID(),
		HasAudioTrack: e.Stream.HasAudioTrack(),
		IsLocal:       true,
		Stream:        e.Stream,
	}
	shares := appendScreenshare(s.Screenshares, sh)
	if shares == s.Screenshares && s.LocalParticipant.IsScreenSharing {
		return s
	}
	n := s.clone()
	n.Screenshares = shares
	lp := *s.LocalParticipant
	lp.IsScreenSharing = true
	n.LocalParticipant = &lp
	lm := *s.LocalMedia
	lm.Screenshare = e.Stream
	lm.Err = nil
	n.LocalMedia = &lm
	return n
}

func reduceScreenshareStopped(s *State) *State {
	shares := filterScreenshares(s.Screenshares, func(sh model.Screenshare) bool {
		return !sh.IsLocal
	})
	if shares == s.Screenshares && !s.LocalParticipant.IsScreenSharing {
		return s
	}
	n := s.clone()
	n.Screenshares = shares
	lp := *s.LocalParticipant
	lp.IsScreenSharing = false
	n.LocalParticipant = &lp
	lm := *s.LocalMedia
	lm.Screenshare = nil
	n.LocalMedia = &lm
	return n
}
