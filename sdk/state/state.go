// Package state holds the room state aggregate and the reducers that evolve it.
//
// A *State is immutable once published. Every slice is held by pointer and is
// replaced, never edited, when a reducer changes it; callers detect changes by
// comparing pointers.
package state

import (
	"time"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
)

type State struct {
	Session          *SessionState
	Credentials      *CredentialsState
	Organization     *OrganizationState
	Signaling        *SignalingState
	LocalMedia       *LocalMediaState
	LocalParticipant *model.LocalParticipant
	Remote           *RemoteState
	Screenshares     *ScreensharesState
	Waiting          *WaitingState
	Chat             *ChatState
	CloudRecording   *CloudRecordingState
	Streaming        *StreamingState
	RTC              *RTCState
	Connection       *ConnectionState
	WakeLock         *WakeLockState
}

type SessionState struct {
	// Epoch changes on every leave. Async results started under an older epoch are stale.
	Epoch       uint64
	WantsToJoin bool
	Leaving     bool
	Params      event.JoinParams
	RoomKey     string
	// Admitted is set when a host accepted our knock; the join is sent again.
	Admitted bool
}

type CredentialsState struct {
	Credentials *model.Credentials
	IsFetching  bool
	Err         error
}

type OrganizationState struct {
	Organization *model.Organization
	IsFetching   bool
	Err          error
}

type SignalingState struct {
	Status            model.SignalStatus
	IsListening       bool
	IsIdentifying     bool
	DeviceIdentified  bool
	RoomJoinRequested bool
	// InRoom is set once the room accepted our join over this socket.
	InRoom bool
	Err    error
}

type LocalMediaStatus string

const (
	LocalMediaIdle     LocalMediaStatus = ""
	LocalMediaStarting LocalMediaStatus = "starting"
	LocalMediaStarted  LocalMediaStatus = "started"
	LocalMediaFailed   LocalMediaStatus = "failed"
)

type LocalMediaState struct {
	Configured        bool
	Status            LocalMediaStatus
	Stream            model.MediaStream
	Screenshare       model.MediaStream
	CameraEnabled     bool
	MicrophoneEnabled bool
	Err               error
}

type RemoteState struct {
	Participants []model.RemoteParticipant
}

// Find returns the participant with the given id, or nil.
func (r *RemoteState) Find(id string) *model.RemoteParticipant {
	if i := r.index(id); i >= 0 {
		return &r.Participants[i]
	}
	return nil
}

func (r *RemoteState) index(id string) int {
	for i := range r.Participants {
		if r.Participants[i].ID == id {
			return i
		}
	}
	return -1
}

type ScreensharesState struct {
	Items []model.Screenshare
}

func (s *ScreensharesState) has(key string) bool {
	for i := range s.Items {
		if s.Items[i].Key() == key {
			return true
		}
	}
	return false
}

type WaitingState struct {
	Participants []model.WaitingParticipant
}

func (w *WaitingState) has(id string) bool {
	for _, p := range w.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

type ChatState struct {
	Messages []model.ChatMessage
}

type CloudRecordingState struct {
	Status    model.CloudRecordingStatus
	StartedAt *time.Time
	Error     string
}

type StreamingState struct {
	Status    model.StreamingStatus
	StartedAt *time.Time
}

type RTCState struct {
	Status               model.RTCStatus
	DispatcherCreated    bool
	IsCreatingDispatcher bool
	Err                  error
}

type ConnectionState struct {
	Status model.ConnectionStatus
	Err    *model.Error
}

type WakeLockState struct {
	Status model.WakeLockStatus
}

// Initial returns the aggregate as created at session construction.
func Initial() *State {
	return &State{
		Session:          &SessionState{},
		Credentials:      &CredentialsState{},
		Organization:     &OrganizationState{},
		Signaling:        &SignalingState{},
		LocalMedia:       &LocalMediaState{},
		LocalParticipant: &model.LocalParticipant{},
		Remote:           &RemoteState{},
		Screenshares:     &ScreensharesState{},
		Waiting:          &WaitingState{},
		Chat:             &ChatState{},
		CloudRecording:   &CloudRecordingState{Status: model.CloudRecordingIdle},
		Streaming:        &StreamingState{Status: model.StreamingIdle},
		RTC:              &RTCState{},
		Connection:       &ConnectionState{Status: model.ConnectionStatusInitializing},
		WakeLock:         &WakeLockState{Status: model.WakeLockIdle},
	}
}

// Status is a shorthand for the connection status.
func (s *State) Status() model.ConnectionStatus {
	return s.Connection.Status
}

func (s *State) clone() *State {
	n := *s
	return &n
}
