package room

import (
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/state"
)

type EventType string

const (
	ConnectionStatusChanged      EventType = "connection_status_changed"
	ParticipantsChanged          EventType = "participants_changed"
	LocalParticipantChanged      EventType = "local_participant_changed"
	ScreensharesChanged          EventType = "screenshares_changed"
	ChatMessagesChanged          EventType = "chat_messages_changed"
	WaitingParticipantsChanged   EventType = "waiting_participants_changed"
	LocalCameraEnabled           EventType = "local_camera_enabled"
	LocalMicrophoneEnabled       EventType = "local_microphone_enabled"
	CloudRecordingRequestStarted EventType = "cloud_recording_request_started"
	CloudRecordingStarted        EventType = "cloud_recording_started"
	CloudRecordingStopped        EventType = "cloud_recording_stopped"
	CloudRecordingError          EventType = "cloud_recording_error"
	StreamingStarted             EventType = "streaming_started"
	StreamingStopped             EventType = "streaming_stopped"
	Error                        EventType = "error"
)

// Event is what consumers of a Session observe. Value holds the changed
// slice of the snapshot, State the whole snapshot it was taken from.
type Event struct {
	Type  EventType
	Value any
	State *state.State
	Err   *model.Error
}

// Project lists the consumer events for one settled transition, in a fixed
// order. Unchanged slices produce nothing.
func Project(prev, cur *state.State, err *model.Error) []Event {
	var out []Event
	add := func(t EventType, v any) {
		out = append(out, Event{Type: t, Value: v, State: cur})
	}

	if prev.Status() != cur.Status() {
		add(ConnectionStatusChanged, cur.Status())
	}
	if prev.Remote != cur.Remote {
		add(ParticipantsChanged, cur.Remote.Participants)
	}
	if prev.LocalParticipant != cur.LocalParticipant {
		add(LocalParticipantChanged, *cur.LocalParticipant)
	}
	if prev.Screenshares != cur.Screenshares {
		add(ScreensharesChanged, cur.Screenshares.Items)
	}
	if prev.Chat != cur.Chat {
		add(ChatMessagesChanged, cur.Chat.Messages)
	}
	if prev.Waiting != cur.Waiting {
		add(WaitingParticipantsChanged, cur.Waiting.Participants)
	}
	if prev.LocalMedia.CameraEnabled != cur.LocalMedia.CameraEnabled {
		add(LocalCameraEnabled, cur.LocalMedia.CameraEnabled)
	}
	if prev.LocalMedia.MicrophoneEnabled != cur.LocalMedia.MicrophoneEnabled {
		add(LocalMicrophoneEnabled, cur.LocalMedia.MicrophoneEnabled)
	}
	if prev.CloudRecording.Status != cur.CloudRecording.Status {
		switch cur.CloudRecording.Status {
		case model.CloudRecordingRequested:
			add(CloudRecordingRequestStarted, *cur.CloudRecording)
		case model.CloudRecordingRecording:
			add(CloudRecordingStarted, *cur.CloudRecording)
		case model.CloudRecordingIdle:
			add(CloudRecordingStopped, *cur.CloudRecording)
		case model.CloudRecordingError:
			add(CloudRecordingError, *cur.CloudRecording)
		}
	}
	if prev.Streaming.Status != cur.Streaming.Status {
		if cur.Streaming.Status == model.StreamingStreaming {
			add(StreamingStarted, *cur.Streaming)
		} else {
			add(StreamingStopped, *cur.Streaming)
		}
	}

	for _, e := range failures(prev, cur, err) {
		out = append(out, Event{Type: Error, Value: e, State: cur, Err: e})
	}
	return out
}

// failures collects errors that appeared with this transition.
func failures(prev, cur *state.State, err *model.Error) []*model.Error {
	var out []*model.Error
	if err != nil {
		out = append(out, err)
	}
	if ce := cur.Connection.Err; ce != nil && ce != prev.Connection.Err && ce != err {
		out = append(out, ce)
	}
	checks := []struct {
		prev, cur error
		kind      model.ErrorKind
		msg       string
	}{
		{prev.Credentials.Err, cur.Credentials.Err, model.KindTransient, "credentials fetch failed"},
		{prev.Organization.Err, cur.Organization.Err, model.KindTransient, "organization fetch failed"},
		{prev.Signaling.Err, cur.Signaling.Err, model.KindTransient, "signaling failed"},
		{prev.RTC.Err, cur.RTC.Err, model.KindUnavailable, "rtc setup failed"},
		{prev.LocalMedia.Err, cur.LocalMedia.Err, model.KindUnavailable, "local media failed"},
	}
	for _, sl := range checks {
		if sl.cur == nil || sl.cur == sl.prev {
			continue
		}
		if e, ok := sl.cur.(*model.Error); ok {
			out = append(out, e)
			continue
		}
		out = append(out, model.NewError(sl.kind, sl.msg, sl.cur))
	}
	return out
}
