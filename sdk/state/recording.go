package state

import (
	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
)

func reduceRecording(s *State, ev event.Event) *State {
	switch e := ev.(type) {
	case event.CloudRecordingRequested:
		if s.CloudRecording.Status == model.CloudRecordingRecording ||
			s.CloudRecording.Status == model.CloudRecordingRequested {
			return s
		}
		return withCloudRecording(s, &CloudRecordingState{Status: model.CloudRecordingRequested})
	case event.CloudRecordingStarted:
		if e.Error != "" {
			// A recorder that already joined wins over a late start error.
			if s.CloudRecording.Status == model.CloudRecordingRecording {
				return s
			}
			return withCloudRecording(s, &CloudRecordingState{Status: model.CloudRecordingError, Error: e.Error})
		}
		if s.CloudRecording.Status == model.CloudRecordingRecording {
			return s
		}
		rec := &CloudRecordingState{Status: model.CloudRecordingRecording}
		if !e.StartedAt.IsZero() {
			t := e.StartedAt
			rec.StartedAt = &t
		}
		return withCloudRecording(s, rec)
	case event.CloudRecordingStopped:
		if s.CloudRecording.Status == model.CloudRecordingIdle {
			return s
		}
		return withCloudRecording(s, &CloudRecordingState{Status: model.CloudRecordingIdle})
	case event.StreamingStarted:
		st := &StreamingState{Status: model.StreamingStreaming}
		if !e.StartedAt.IsZero() {
			t := e.StartedAt
			st.StartedAt = &t
		}
		n := s.clone()
		n.Streaming = st
		return n
	case event.StreamingStopped:
		if s.Streaming.Status == model.StreamingIdle {
			return s
		}
		n := s.clone()
		n.Streaming = &StreamingState{Status: model.StreamingIdle}
		return n
	}
	return s
}

func withCloudRecording(s *State, rec *CloudRecordingState) *State {
	n := s.clone()
	n.CloudRecording = rec
	return n
}
