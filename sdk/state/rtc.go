package state

import (
	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
)

func reduceRTC(s *State, ev event.Event) *State {
	rtc := *s.RTC
	resetStreams := false
	switch e := ev.(type) {
	case event.RTCDispatcherCreateStarted:
		rtc.IsCreatingDispatcher = true
		rtc.Err = nil
	case event.RTCDispatcherCreated:
		rtc.IsCreatingDispatcher = false
		rtc.DispatcherCreated = true
	case event.RTCDispatcherCreateFailed:
		rtc.IsCreatingDispatcher = false
		rtc.Err = e.Err
	case event.RTCManagerCreated:
		rtc.Status = model.RTCStatusReady
	case event.RTCManagerDestroyed:
		rtc.Status = model.RTCStatusInactive
		rtc.DispatcherCreated = false
		resetStreams = true
	}
	if rtc == *s.RTC {
		return s
	}
	n := s.clone()
	n.RTC = &rtc
	if resetStreams {
		// A new manager has to accept everything again.
		n.Remote = unsettleStreams(s.Remote)
	}
	return n
}

func unsettleStreams(r *RemoteState) *RemoteState {
	if len(r.Participants) == 0 {
		return r
	}
	remote := make([]model.RemoteParticipant, len(r.Participants))
	for i, p := range r.Participants {
		streams := make([]model.Stream, len(p.Streams))
		for j, st := range p.Streams {
			st.State = model.StreamStateUnset
			streams[j] = st
		}
		p.Streams = streams
		remote[i] = p
	}
	return &RemoteState{Participants: remote}
}

// isPrimaryStream classifies an incoming stream as the participant's webcam:
// explicitly typed as webcam, or untyped and not behind an earlier stream.
func isPrimaryStream(p *model.RemoteParticipant, streamID, streamType string) bool {
	if streamType == model.StreamTypeWebcam {
		return true
	}
	return streamType == "" && p.StreamIndex(streamID) < 1
}

func reduceStreamAdded(s *State, e event.StreamAdded) *State {
	p := s.Remote.Find(e.ClientID)
	if p == nil || e.Stream == nil {
		// participant left before its stream arrived
		return s
	}
	if isPrimaryStream(p, e.StreamID, e.StreamType) {
		return updateRemote(s, e.ClientID, func(p *model.RemoteParticipant) bool {
			if p.Stream == e.Stream {
				return false
			}
			p.Stream = e.Stream
			return true
		})
	}
	shares := appendScreenshare(s.Screenshares, model.Screenshare{
		ParticipantID: e.ClientID,
		ID:            e.StreamID,
		HasAudioTrack: e.Stream.HasAudioTrack(),
		Stream:        e.Stream,
	})
	if shares == s.Screenshares {
		return s
	}
	n := s.clone()
	n.Screenshares = shares
	return n
}

func reduceStreamStatuses(s *State, e event.StreamStatusesUpdated) *State {
	if len(e.Updates) == 0 {
		return s
	}
	var remote []model.RemoteParticipant
	for _, u := range e.Updates {
		i := s.Remote.index(u.ClientID)
		if i < 0 {
			continue
		}
		if remote == nil {
			remote = append([]model.RemoteParticipant(nil), s.Remote.Participants...)
		}
		p := remote[i]
		j := p.StreamIndex(u.StreamID)
		if j < 0 || p.Streams[j].State == u.State {
			continue
		}
		streams := append([]model.Stream(nil), p.Streams...)
		streams[j].State = u.State
		p.Streams = streams
		remote[i] = p
	}
	if remote == nil || sameStreams(s.Remote.Participants, remote) {
		return s
	}
	n := s.clone()
	n.Remote = &RemoteState{Participants: remote}
	return n
}

func sameStreams(a, b []model.RemoteParticipant) bool {
	for i := range a {
		if len(a[i].Streams) != len(b[i].Streams) {
			return false
		}
		for j := range a[i].Streams {
			if a[i].Streams[j] != b[i].Streams[j] {
				return false
			}
		}
	}
	return true
}
