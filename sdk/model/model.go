package model

import "time"

// Roles that never show up as a person in the room.
const (
	RoleRecorder = "recorder"
	RoleStreamer = "streamer"
)

// IsNonPersonRole reports whether clients with this role are hidden from participant lists.
func IsNonPersonRole(roleName string) bool {
	return roleName == RoleRecorder || roleName == RoleStreamer
}

// MediaStream is a non-owning handle to a capture or transport stream.
// The capturer or the rtc manager that produced it owns its lifecycle.
type MediaStream interface {
	ID() string
	HasAudioTrack() bool
}

type Role struct {
	RoleName string `json:"roleName"`
}

// Client is a room member as announced by the signaling server.
type Client struct {
	ID                      string     `json:"id"`
	DisplayName             string     `json:"displayName"`
	ExternalID              string     `json:"externalId,omitempty"`
	Role                    Role       `json:"role"`
	Streams                 []string   `json:"streams"`
	IsAudioEnabled          bool       `json:"isAudioEnabled"`
	IsVideoEnabled          bool       `json:"isVideoEnabled"`
	StartedCloudRecordingAt *time.Time `json:"startedCloudRecordingAt,omitempty"`
	StartedStreamingAt      *time.Time `json:"startedStreamingAt,omitempty"`
}

// Knocker is a client waiting in front of a locked room.
type Knocker struct {
	ClientID    string `json:"clientId"`
	DisplayName string `json:"displayName"`
}

type Participant struct {
	ID             string      `json:"id"`
	DisplayName    string      `json:"displayName"`
	ExternalID     string      `json:"externalId,omitempty"`
	IsAudioEnabled bool        `json:"isAudioEnabled"`
	IsVideoEnabled bool        `json:"isVideoEnabled"`
	Stream         MediaStream `json:"-"`
}

type LocalParticipant struct {
	Participant
	IsScreenSharing bool   `json:"isScreenSharing"`
	RoleName        string `json:"roleName,omitempty"`
}

type RemoteParticipant struct {
	Participant
	NewJoiner bool     `json:"newJoiner"`
	Streams   []Stream `json:"streams"`
}

// StreamIndex returns the position of the stream with the given id, or -1.
func (p *RemoteParticipant) StreamIndex(streamID string) int {
	for i := range p.Streams {
		if p.Streams[i].ID == streamID {
			return i
		}
	}
	return -1
}

type WaitingParticipant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type Screenshare struct {
	ParticipantID string      `json:"participantId"`
	ID            string      `json:"id"`
	HasAudioTrack bool        `json:"hasAudioTrack"`
	IsLocal       bool        `json:"isLocal"`
	Stream        MediaStream `json:"-"`
}

// Key identifies a screenshare within the ordered screenshare set.
func (s Screenshare) Key() string {
	return s.ParticipantID + "/" + s.ID
}

type ChatMessage struct {
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Credentials identify this device towards the api and the signaling server.
type Credentials struct {
	UUID   string `json:"uuid"`
	HMAC   string `json:"hmac"`
	UserID string `json:"userId"`
}

type Organization struct {
	ID          string   `json:"organizationId"`
	Subdomain   string   `json:"subdomain"`
	Permissions []string `json:"permissions,omitempty"`
}
