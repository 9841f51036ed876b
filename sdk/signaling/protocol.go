package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
)

// Message is the wire envelope of every signaling message.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types.
const (
	TypeRoomJoined             = "room_joined"
	TypeKnockHandled           = "knock_handled"
	TypeRoomKnocked            = "room_knocked"
	TypeKnockerLeft            = "knocker_left"
	TypeNewClient              = "new_client"
	TypeClientLeft             = "client_left"
	TypeAudioEnabled           = "audio_enabled"
	TypeVideoEnabled           = "video_enabled"
	TypeClientMetadataReceived = "client_metadata_received"
	TypeScreenshareStarted     = "screenshare_started"
	TypeScreenshareStopped     = "screenshare_stopped"
	TypeChatMessage            = "chat_message"
	TypeCloudRecordingStarted  = "cloud_recording_started"
	TypeCloudRecordingStopped  = "cloud_recording_stopped"
	TypeStreamingStarted       = "streaming_started"
	TypeStreamingStopped       = "streaming_stopped"
	TypeDeviceIdentified       = "device_identified"
)

// Relay message types, forwarded between peers by the server.
const (
	TypeSDPOffer            = "sdp_offer"
	TypeSDPAnswer           = "sdp_answer"
	TypeICECandidate        = "ice_candidate"
	TypeReadyToReceiveOffer = "ready_to_receive_offer"
)

// Outbound message types.
const (
	TypeIdentifyDevice     = "identify_device"
	TypeJoinRoom           = "join_room"
	TypeKnockRoom          = "knock_room"
	TypeLeaveRoom          = "leave_room"
	TypeEnableAudio        = "enable_audio"
	TypeEnableVideo        = "enable_video"
	TypeSendClientMetadata = "send_client_metadata"
	TypeHandleKnock        = "handle_knock"
	TypeStartRecording     = "start_recording"
	TypeStopRecording      = "stop_recording"
	TypeStartScreenshare   = "start_screenshare"
	TypeStopScreenshare    = "stop_screenshare"
)

var ErrUnknownType = errors.New("unknown signaling message type")

// Outbound is anything that can be sent over the socket.
type Outbound interface {
	MessageType() string
}

type (
	IdentifyDevice struct {
		DeviceCredentials model.Credentials `json:"deviceCredentials"`
	}

	MediaConfig struct {
		IsAudioEnabled bool `json:"isAudioEnabled"`
		IsVideoEnabled bool `json:"isVideoEnabled"`
	}

	// RoomRequest is the common payload of join_room and knock_room.
	RoomRequest struct {
		RoomName       string      `json:"roomName"`
		RoomKey        string      `json:"roomKey,omitempty"`
		OrganizationID string      `json:"organizationId"`
		DisplayName    string      `json:"displayName,omitempty"`
		ExternalID     string      `json:"externalId,omitempty"`
		SDKVersion     string      `json:"sdkVersion,omitempty"`
		SelfID         string      `json:"selfId,omitempty"`
		Config         MediaConfig `json:"config"`
	}

	JoinRoom  struct{ RoomRequest }
	KnockRoom struct{ RoomRequest }
	LeaveRoom struct{}

	EnableAudio struct {
		Enabled bool `json:"enabled"`
	}
	EnableVideo struct {
		Enabled bool `json:"enabled"`
	}

	SendChatMessage struct {
		Text string `json:"text"`
	}

	SendClientMetadata struct {
		DisplayName string `json:"displayName"`
	}

	HandleKnock struct {
		ClientID string `json:"clientId"`
		Action   string `json:"action"`
	}

	StartRecording struct {
		Recording string `json:"recording"`
	}
	StopRecording struct{}

	StartScreenshare struct {
		StreamID      string `json:"streamId"`
		HasAudioTrack bool   `json:"hasAudioTrack"`
	}
	StopScreenshare struct {
		StreamID string `json:"streamId"`
	}
)

// Knock actions.
const (
	KnockActionAccept = "accept"
	KnockActionReject = "reject"
)

func (IdentifyDevice) MessageType() string     { return TypeIdentifyDevice }
func (JoinRoom) MessageType() string           { return TypeJoinRoom }
func (KnockRoom) MessageType() string          { return TypeKnockRoom }
func (LeaveRoom) MessageType() string          { return TypeLeaveRoom }
func (EnableAudio) MessageType() string        { return TypeEnableAudio }
func (EnableVideo) MessageType() string        { return TypeEnableVideo }
func (SendChatMessage) MessageType() string    { return TypeChatMessage }
func (SendClientMetadata) MessageType() string { return TypeSendClientMetadata }
func (HandleKnock) MessageType() string        { return TypeHandleKnock }
func (StartRecording) MessageType() string     { return TypeStartRecording }
func (StopRecording) MessageType() string      { return TypeStopRecording }
func (StartScreenshare) MessageType() string   { return TypeStartScreenshare }
func (StopScreenshare) MessageType() string    { return TypeStopScreenshare }

type (
	SessionDescription struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}

	ICECandidate struct {
		Candidate     string  `json:"candidate"`
		SDPMid        *string `json:"sdpMid,omitempty"`
		SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	}

	// Relay carries transport negotiation between two clients. Outbound
	// relays set ReceiverID; the server stamps SenderID on delivery.
	Relay struct {
		Kind        string              `json:"-"`
		ReceiverID  string              `json:"receiverId,omitempty"`
		SenderID    string              `json:"senderId,omitempty"`
		Description *SessionDescription `json:"sdp,omitempty"`
		Candidate   *ICECandidate       `json:"candidate,omitempty"`
	}
)

func (r Relay) MessageType() string { return r.Kind }

func isRelay(t string) bool {
	switch t {
	case TypeSDPOffer, TypeSDPAnswer, TypeICECandidate, TypeReadyToReceiveOffer:
		return true
	}
	return false
}

// Encode wraps msg into an envelope.
func Encode(msg Outbound) (Message, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return Message{}, errors.Join(ErrEncode, err)
	}
	return Message{Type: msg.MessageType(), Payload: b}, nil
}

// Inbound payloads.
type (
	roomJoinedPayload struct {
		Error    string `json:"error,omitempty"`
		IsLocked bool   `json:"isLocked"`
		SelfID   string `json:"selfId"`
		Room     *struct {
			Clients  []model.Client  `json:"clients"`
			Knockers []model.Knocker `json:"knockers"`
		} `json:"room,omitempty"`
	}

	knockHandledPayload struct {
		ClientID   string                `json:"clientId"`
		Resolution model.KnockResolution `json:"resolution"`
		Metadata   struct {
			RoomKey string `json:"roomKey"`
		} `json:"metadata"`
	}

	clientPayload struct {
		ClientID       string `json:"clientId"`
		DisplayName    string `json:"displayName"`
		IsAudioEnabled bool   `json:"isAudioEnabled"`
		IsVideoEnabled bool   `json:"isVideoEnabled"`
	}

	newClientPayload struct {
		Client model.Client `json:"client"`
	}

	screensharePayload struct {
		ClientID      string `json:"clientId"`
		StreamID      string `json:"streamId"`
		HasAudioTrack bool   `json:"hasAudioTrack"`
	}

	recordingPayload struct {
		Error     string     `json:"error,omitempty"`
		StartedAt *time.Time `json:"startedAt,omitempty"`
	}
)

// Decode turns an inbound envelope into either a room event or a relay.
func Decode(msg Message) (event.Event, *Relay, error) {
	if isRelay(msg.Type) {
		r := Relay{Kind: msg.Type}
		if err := unmarshal(msg, &r); err != nil {
			return nil, nil, err
		}
		return nil, &r, nil
	}

	var ev event.Event
	switch msg.Type {
	case TypeRoomJoined:
		var p roomJoinedPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		e := event.RoomJoined{SelfID: p.SelfID, Error: p.Error, IsLocked: p.IsLocked}
		if p.Room != nil {
			e.Clients = p.Room.Clients
			e.Knockers = p.Room.Knockers
		}
		ev = e
	case TypeKnockHandled:
		var p knockHandledPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.KnockHandled{ClientID: p.ClientID, Resolution: p.Resolution, RoomKey: p.Metadata.RoomKey}
	case TypeRoomKnocked:
		var p clientPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.RoomKnocked{ClientID: p.ClientID, DisplayName: p.DisplayName}
	case TypeKnockerLeft:
		var p clientPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.KnockerLeft{ClientID: p.ClientID}
	case TypeNewClient:
		var p newClientPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.ParticipantJoined{Client: p.Client}
	case TypeClientLeft:
		var p clientPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.ParticipantLeft{ClientID: p.ClientID}
	case TypeAudioEnabled:
		var p clientPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.ParticipantAudioEnabled{ClientID: p.ClientID, Enabled: p.IsAudioEnabled}
	case TypeVideoEnabled:
		var p clientPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.ParticipantVideoEnabled{ClientID: p.ClientID, Enabled: p.IsVideoEnabled}
	case TypeClientMetadataReceived:
		var p clientPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.ClientMetadataReceived{ClientID: p.ClientID, DisplayName: p.DisplayName}
	case TypeScreenshareStarted:
		var p screensharePayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.RemoteScreenshareStarted{ClientID: p.ClientID, StreamID: p.StreamID, HasAudioTrack: p.HasAudioTrack}
	case TypeScreenshareStopped:
		var p screensharePayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.RemoteScreenshareStopped{ClientID: p.ClientID, StreamID: p.StreamID}
	case TypeChatMessage:
		var p model.ChatMessage
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		ev = event.ChatMessageReceived{Message: p}
	case TypeCloudRecordingStarted:
		var p recordingPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		e := event.CloudRecordingStarted{Error: p.Error}
		if p.StartedAt != nil {
			e.StartedAt = *p.StartedAt
		}
		ev = e
	case TypeCloudRecordingStopped:
		ev = event.CloudRecordingStopped{}
	case TypeStreamingStarted:
		var p recordingPayload
		if err := unmarshal(msg, &p); err != nil {
			return nil, nil, err
		}
		e := event.StreamingStarted{}
		if p.StartedAt != nil {
			e.StartedAt = *p.StartedAt
		}
		ev = e
	case TypeStreamingStopped:
		ev = event.StreamingStopped{}
	case TypeDeviceIdentified:
		ev = event.DeviceIdentified{}
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
	return ev, nil, nil
}

func unmarshal(msg Message, v any) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return errors.Join(ErrDecode, fmt.Errorf("%s: %w", msg.Type, err))
	}
	return nil
}
