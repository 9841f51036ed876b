// Package event defines every input the room state can react to.
//
// The set is closed: only types in this package implement Event, so a type
// switch over Event in the reducers covers everything that can be dispatched.
package event

import (
	"time"

	"github.com/adwski/roomsdk/sdk/model"
)

type Event interface {
	Kind() string
	sealed()
}

type base struct{}

func (base) sealed() {}

// JoinParams are the session intent parameters recorded on join.
type JoinParams struct {
	RoomURL     string
	RoomName    string
	Subdomain   string
	RoomKey     string
	DisplayName string
	ExternalID  string
	SDKVersion  string
	// HasLocalMedia is set when the consumer handed over a local media handle.
	HasLocalMedia bool
}

// App / session intent.
type (
	JoinRequested struct {
		base
		Params JoinParams
	}
	LeaveRequested struct{ base }
	RoomLeft       struct{ base }
)

// Credential provider.
type (
	CredentialsFetchStarted struct{ base }
	CredentialsFetched      struct {
		base
		Credentials model.Credentials
	}
	CredentialsFetchFailed struct {
		base
		Err error
	}
)

// Organization resolver.
type (
	OrganizationFetchStarted struct{ base }
	OrganizationFetched      struct {
		base
		Organization model.Organization
	}
	OrganizationFetchFailed struct {
		base
		Err error
	}
)

// Signaling socket lifecycle.
type (
	SocketConnecting   struct{ base }
	SocketConnected    struct{ base }
	SocketDisconnected struct {
		base
		Err error
	}
	// SocketClosed is an intentional close, as opposed to SocketDisconnected.
	SocketClosed          struct{ base }
	DeviceIdentifyStarted struct{ base }
	DeviceIdentified      struct{ base }
	DeviceIdentifyFailed  struct {
		base
		Err error
	}
	RoomJoinRequested struct{ base }
)

// Room events from the signaling server.
type (
	RoomJoined struct {
		base
		SelfID   string
		Clients  []model.Client
		Knockers []model.Knocker
		Error    string
		IsLocked bool
	}
	KnockStarted struct{ base }
	KnockHandled struct {
		base
		ClientID   string
		Resolution model.KnockResolution
		RoomKey    string
	}
	RoomKnocked struct {
		base
		ClientID    string
		DisplayName string
	}
	KnockerLeft struct {
		base
		ClientID string
	}
	ParticipantJoined struct {
		base
		Client model.Client
	}
	ParticipantLeft struct {
		base
		ClientID string
	}
	ParticipantAudioEnabled struct {
		base
		ClientID string
		Enabled  bool
	}
	ParticipantVideoEnabled struct {
		base
		ClientID string
		Enabled  bool
	}
	ClientMetadataReceived struct {
		base
		ClientID    string
		DisplayName string
	}
	RemoteScreenshareStarted struct {
		base
		ClientID      string
		StreamID      string
		HasAudioTrack bool
	}
	RemoteScreenshareStopped struct {
		base
		ClientID string
		StreamID string
	}
	ChatMessageReceived struct {
		base
		Message model.ChatMessage
	}
	// WaitingParticipantHandled removes a knocker after the host answered it.
	WaitingParticipantHandled struct {
		base
		ClientID string
	}
)

// Cloud recording and streaming.
type (
	CloudRecordingRequested struct{ base }
	CloudRecordingStarted   struct {
		base
		Error     string
		StartedAt time.Time
	}
	CloudRecordingStopped struct{ base }
	StreamingStarted      struct {
		base
		StartedAt time.Time
	}
	StreamingStopped struct{ base }
)

// RTC transport.
type (
	RTCDispatcherCreateStarted struct{ base }
	RTCDispatcherCreated       struct{ base }
	RTCDispatcherCreateFailed  struct {
		base
		Err error
	}
	RTCManagerCreated   struct{ base }
	RTCManagerDestroyed struct{ base }
	StreamAdded         struct {
		base
		ClientID   string
		StreamID   string
		Stream     model.MediaStream
		StreamType string
	}
	StreamStatusesUpdated struct {
		base
		Updates []model.StreamStatusUpdate
	}
)

// Local media.
type (
	LocalMediaStarting struct{ base }
	LocalMediaStarted  struct {
		base
		Stream model.MediaStream
	}
	LocalMediaStartFailed struct {
		base
		Err error
	}
	CameraEnabled struct {
		base
		Enabled bool
	}
	MicrophoneEnabled struct {
		base
		Enabled bool
	}
	AudioEnableFulfilled struct {
		base
		Enabled bool
	}
	VideoEnableFulfilled struct {
		base
		Enabled bool
	}
	ScreenshareStartFulfilled struct {
		base
		Stream model.MediaStream
	}
	ScreenshareStartFailed struct {
		base
		Err error
	}
	ScreenshareStopFulfilled struct{ base }
	DisplayNameSet           struct {
		base
		DisplayName string
	}
)

// Wake lock; shares the dispatch path, not the room.
type (
	WakeLockAcquired    struct{ base }
	WakeLockReleased    struct{ base }
	WakeLockUnsupported struct{ base }
)

func (JoinRequested) Kind() string              { return "join_requested" }
func (LeaveRequested) Kind() string             { return "leave_requested" }
func (RoomLeft) Kind() string                   { return "room_left" }
func (CredentialsFetchStarted) Kind() string    { return "credentials_fetch_started" }
func (CredentialsFetched) Kind() string         { return "credentials_fetched" }
func (CredentialsFetchFailed) Kind() string     { return "credentials_fetch_failed" }
func (OrganizationFetchStarted) Kind() string   { return "organization_fetch_started" }
func (OrganizationFetched) Kind() string        { return "organization_fetched" }
func (OrganizationFetchFailed) Kind() string    { return "organization_fetch_failed" }
func (SocketConnecting) Kind() string           { return "socket_connecting" }
func (SocketConnected) Kind() string            { return "socket_connected" }
func (SocketDisconnected) Kind() string         { return "socket_disconnected" }
func (SocketClosed) Kind() string               { return "socket_closed" }
func (DeviceIdentifyStarted) Kind() string      { return "device_identify_started" }
func (DeviceIdentified) Kind() string           { return "device_identified" }
func (DeviceIdentifyFailed) Kind() string       { return "device_identify_failed" }
func (RoomJoinRequested) Kind() string          { return "room_join_requested" }
func (RoomJoined) Kind() string                 { return "room_joined" }
func (KnockStarted) Kind() string               { return "knock_started" }
func (KnockHandled) Kind() string               { return "knock_handled" }
func (RoomKnocked) Kind() string                { return "room_knocked" }
func (KnockerLeft) Kind() string                { return "knocker_left" }
func (ParticipantJoined) Kind() string          { return "participant_joined" }
func (ParticipantLeft) Kind() string            { return "participant_left" }
func (ParticipantAudioEnabled) Kind() string    { return "participant_audio_enabled" }
func (ParticipantVideoEnabled) Kind() string    { return "participant_video_enabled" }
func (ClientMetadataReceived) Kind() string     { return "client_metadata_received" }
func (RemoteScreenshareStarted) Kind() string   { return "remote_screenshare_started" }
func (RemoteScreenshareStopped) Kind() string   { return "remote_screenshare_stopped" }
func (ChatMessageReceived) Kind() string        { return "chat_message_received" }
func (WaitingParticipantHandled) Kind() string  { return "waiting_participant_handled" }
func (CloudRecordingRequested) Kind() string    { return "cloud_recording_requested" }
func (CloudRecordingStarted) Kind() string      { return "cloud_recording_started" }
func (CloudRecordingStopped) Kind() string      { return "cloud_recording_stopped" }
func (StreamingStarted) Kind() string           { return "streaming_started" }
func (StreamingStopped) Kind() string           { return "streaming_stopped" }
func (RTCDispatcherCreateStarted) Kind() string { return "rtc_dispatcher_create_started" }
func (RTCDispatcherCreated) Kind() string       { return "rtc_dispatcher_created" }
func (RTCDispatcherCreateFailed) Kind() string  { return "rtc_dispatcher_create_failed" }
func (RTCManagerCreated) Kind() string          { return "rtc_manager_created" }
func (RTCManagerDestroyed) Kind() string        { return "rtc_manager_destroyed" }
func (StreamAdded) Kind() string                { return "stream_added" }
func (StreamStatusesUpdated) Kind() string      { return "stream_statuses_updated" }
func (LocalMediaStarting) Kind() string         { return "local_media_starting" }
func (LocalMediaStarted) Kind() string          { return "local_media_started" }
func (LocalMediaStartFailed) Kind() string      { return "local_media_start_failed" }
func (CameraEnabled) Kind() string              { return "camera_enabled" }
func (MicrophoneEnabled) Kind() string          { return "microphone_enabled" }
func (AudioEnableFulfilled) Kind() string       { return "audio_enable_fulfilled" }
func (VideoEnableFulfilled) Kind() string       { return "video_enable_fulfilled" }
func (ScreenshareStartFulfilled) Kind() string  { return "screenshare_start_fulfilled" }
func (ScreenshareStartFailed) Kind() string     { return "screenshare_start_failed" }
func (ScreenshareStopFulfilled) Kind() string   { return "screenshare_stop_fulfilled" }
func (DisplayNameSet) Kind() string             { return "display_name_set" }
func (WakeLockAcquired) Kind() string           { return "wake_lock_acquired" }
func (WakeLockReleased) Kind() string           { return "wake_lock_released" }
func (WakeLockUnsupported) Kind() string        { return "wake_lock_unsupported" }
