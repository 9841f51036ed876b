package state

import (
	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
)

const roomLockedError = "room_locked"

const errNoSelfClient = "room_joined carries no client matching selfId"

func acceptsRoomJoined(status model.ConnectionStatus) bool {
	switch status {
	case model.ConnectionStatusConnecting, model.ConnectionStatusKnocking,
		model.ConnectionStatusRoomLocked, model.ConnectionStatusConnected:
		return true
	}
	return false
}

func isConnected(s *State) bool {
	return s.Status() == model.ConnectionStatusConnected
}

func reduceRoomJoined(s *State, e event.RoomJoined) (*State, *model.Error) {
	if !acceptsRoomJoined(s.Status()) {
		return s, nil
	}

	if e.Error == roomLockedError && e.IsLocked {
		n := s.clone()
		n.Connection = &ConnectionState{Status: model.ConnectionStatusRoomLocked}
		n.Remote = &RemoteState{}
		n.Waiting = &WaitingState{}
		sig := *s.Signaling
		sig.RoomJoinRequested = false
		n.Signaling = &sig
		if e.SelfID != "" {
			lp := *s.LocalParticipant
			lp.ID = e.SelfID
			n.LocalParticipant = &lp
		}
		return n, nil
	}

	if e.Error != "" {
		n := s.clone()
		n.Connection = &ConnectionState{
			Status: s.Status(),
			Err:    model.NewError(model.KindRejected, e.Error, nil),
		}
		sig := *s.Signaling
		sig.RoomJoinRequested = false
		n.Signaling = &sig
		return n, n.Connection.Err
	}

	var self *model.Client
	for i := range e.Clients {
		if e.Clients[i].ID == e.SelfID {
			self = &e.Clients[i]
			break
		}
	}
	if e.SelfID == "" || self == nil {
		return s, model.NewError(model.KindProtocol, errNoSelfClient, nil)
	}

	n := s.clone()

	lp := *s.LocalParticipant
	lp.ID = self.ID
	lp.RoleName = self.Role.RoleName
	if lp.DisplayName == "" {
		lp.DisplayName = self.DisplayName
	}
	if lp.ExternalID == "" {
		lp.ExternalID = self.ExternalID
	}
	n.LocalParticipant = &lp

	seen := map[string]struct{}{self.ID: {}}
	remote := make([]model.RemoteParticipant, 0, len(e.Clients))
	recording := *s.CloudRecording
	streaming := *s.Streaming
	for _, c := range e.Clients {
		switch c.Role.RoleName {
		case model.RoleRecorder:
			recording = CloudRecordingState{Status: model.CloudRecordingRecording, StartedAt: c.StartedCloudRecordingAt}
			continue
		case model.RoleStreamer:
			streaming = StreamingState{Status: model.StreamingStreaming, StartedAt: c.StartedStreamingAt}
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		remote = append(remote, newRemoteParticipant(c, false))
	}
	n.Remote = &RemoteState{Participants: remote}
	n.CloudRecording = &recording
	n.Streaming = &streaming

	waiting := make([]model.WaitingParticipant, 0, len(e.Knockers))
	for _, k := range e.Knockers {
		if _, dup := seen[k.ClientID]; dup {
			continue
		}
		seen[k.ClientID] = struct{}{}
		waiting = append(waiting, model.WaitingParticipant{ID: k.ClientID, DisplayName: k.DisplayName})
	}
	n.Waiting = &WaitingState{Participants: waiting}

	// Remote screenshares belong to the previous membership view.
	shares := make([]model.Screenshare, 0, len(s.Screenshares.Items))
	for _, sh := range s.Screenshares.Items {
		if sh.IsLocal {
			shares = append(shares, sh)
		}
	}
	n.Screenshares = &ScreensharesState{Items: shares}

	sig := *s.Signaling
	sig.RoomJoinRequested = false
	sig.InRoom = true
	n.Signaling = &sig
	n.Connection = &ConnectionState{Status: model.ConnectionStatusConnected}
	return n, nil
}

func newRemoteParticipant(c model.Client, newJoiner bool) model.RemoteParticipant {
	streams := make([]model.Stream, 0, len(c.Streams))
	for _, id := range c.Streams {
		streams = append(streams, model.Stream{ID: id, NewJoiner: newJoiner})
	}
	return model.RemoteParticipant{
		Participant: model.Participant{
			ID:             c.ID,
			DisplayName:    c.DisplayName,
			ExternalID:     c.ExternalID,
			IsAudioEnabled: c.IsAudioEnabled,
			IsVideoEnabled: c.IsVideoEnabled,
		},
		NewJoiner: newJoiner,
		Streams:   streams,
	}
}

func reduceKnockStarted(s *State) *State {
	if s.Status() != model.ConnectionStatusRoomLocked {
		return s
	}
	return withStatus(s, model.ConnectionStatusKnocking)
}

func reduceKnockHandled(s *State, e event.KnockHandled) *State {
	if e.ClientID != s.LocalParticipant.ID || s.LocalParticipant.ID == "" {
		// Another client's knock was answered by a host.
		return removeWaiting(s, e.ClientID)
	}
	if s.Status() != model.ConnectionStatusKnocking {
		return s
	}
	if e.Resolution == model.KnockRejected {
		return withStatus(s, model.ConnectionStatusKnockRejected)
	}
	n := s.clone()
	sess := *s.Session
	sess.RoomKey = e.RoomKey
	sess.Admitted = true
	n.Session = &sess
	sig := *s.Signaling
	sig.RoomJoinRequested = false
	n.Signaling = &sig
	return n
}

func reduceRoomKnocked(s *State, e event.RoomKnocked) *State {
	if !isConnected(s) || s.Waiting.has(e.ClientID) || s.Remote.Find(e.ClientID) != nil {
		return s
	}
	n := s.clone()
	waiting := make([]model.WaitingParticipant, 0, len(s.Waiting.Participants)+1)
	waiting = append(waiting, s.Waiting.Participants...)
	waiting = append(waiting, model.WaitingParticipant{ID: e.ClientID, DisplayName: e.DisplayName})
	n.Waiting = &WaitingState{Participants: waiting}
	return n
}

func removeWaiting(s *State, id string) *State {
	if !s.Waiting.has(id) {
		return s
	}
	waiting := make([]model.WaitingParticipant, 0, len(s.Waiting.Participants))
	for _, p := range s.Waiting.Participants {
		if p.ID != id {
			waiting = append(waiting, p)
		}
	}
	n := s.clone()
	n.Waiting = &WaitingState{Participants: waiting}
	return n
}

func reduceParticipantJoined(s *State, e event.ParticipantJoined) *State {
	if !isConnected(s) {
		return s
	}
	c := e.Client
	switch c.Role.RoleName {
	case model.RoleRecorder:
		n := s.clone()
		n.CloudRecording = &CloudRecordingState{Status: model.CloudRecordingRecording, StartedAt: c.StartedCloudRecordingAt}
		return n
	case model.RoleStreamer:
		n := s.clone()
		n.Streaming = &StreamingState{Status: model.StreamingStreaming, StartedAt: c.StartedStreamingAt}
		return n
	}
	if c.ID == "" || c.ID == s.LocalParticipant.ID || s.Remote.Find(c.ID) != nil {
		return s
	}
	n := removeWaiting(s, c.ID)
	if n == s {
		n = s.clone()
	}
	remote := make([]model.RemoteParticipant, 0, len(s.Remote.Participants)+1)
	remote = append(remote, s.Remote.Participants...)
	remote = append(remote, newRemoteParticipant(c, true))
	n.Remote = &RemoteState{Participants: remote}
	return n
}

func reduceParticipantLeft(s *State, e event.ParticipantLeft) *State {
	i := s.Remote.index(e.ClientID)
	if i < 0 {
		return s
	}
	n := s.clone()
	remote := make([]model.RemoteParticipant, 0, len(s.Remote.Participants)-1)
	remote = append(remote, s.Remote.Participants[:i]...)
	remote = append(remote, s.Remote.Participants[i+1:]...)
	n.Remote = &RemoteState{Participants: remote}
	n.Screenshares = filterScreenshares(s.Screenshares, func(sh model.Screenshare) bool {
		return sh.ParticipantID != e.ClientID
	})
	return n
}

// updateRemote copies the participant list and applies fn to the copy of the
// matching participant. Unknown ids and fn returning false are no-ops.
func updateRemote(s *State, id string, fn func(p *model.RemoteParticipant) bool) *State {
	i := s.Remote.index(id)
	if i < 0 {
		return s
	}
	p := s.Remote.Participants[i]
	p.Streams = append([]model.Stream(nil), p.Streams...)
	if !fn(&p) {
		return s
	}
	remote := append([]model.RemoteParticipant(nil), s.Remote.Participants...)
	remote[i] = p
	n := s.clone()
	n.Remote = &RemoteState{Participants: remote}
	return n
}

func reduceClientMetadata(s *State, e event.ClientMetadataReceived) *State {
	if e.ClientID != "" && e.ClientID == s.LocalParticipant.ID {
		if s.LocalParticipant.DisplayName == e.DisplayName {
			return s
		}
		n := s.clone()
		lp := *s.LocalParticipant
		lp.DisplayName = e.DisplayName
		n.LocalParticipant = &lp
		return n
	}
	return updateRemote(s, e.ClientID, func(p *model.RemoteParticipant) bool {
		if p.DisplayName == e.DisplayName {
			return false
		}
		p.DisplayName = e.DisplayName
		return true
	})
}

func reduceRemoteScreenshareStarted(s *State, e event.RemoteScreenshareStarted) *State {
	return updateRemote(s, e.ClientID, func(p *model.RemoteParticipant) bool {
		if p.StreamIndex(e.StreamID) >= 0 {
			return false
		}
		p.Streams = append(p.Streams, model.Stream{ID: e.StreamID})
		return true
	})
}

func reduceRemoteScreenshareStopped(s *State, e event.RemoteScreenshareStopped) *State {
	n := updateRemote(s, e.ClientID, func(p *model.RemoteParticipant) bool {
		i := p.StreamIndex(e.StreamID)
		if i < 0 {
			return false
		}
		p.Streams = append(p.Streams[:i], p.Streams[i+1:]...)
		return true
	})
	key := model.Screenshare{ParticipantID: e.ClientID, ID: e.StreamID}.Key()
	if !n.Screenshares.has(key) {
		return n
	}
	if n == s {
		n = s.clone()
	}
	n.Screenshares = filterScreenshares(s.Screenshares, func(sh model.Screenshare) bool {
		return sh.Key() != key
	})
	return n
}

func filterScreenshares(s *ScreensharesState, keep func(model.Screenshare) bool) *ScreensharesState {
	items := make([]model.Screenshare, 0, len(s.Items))
	for _, sh := range s.Items {
		if keep(sh) {
			items = append(items, sh)
		}
	}
	if len(items) == len(s.Items) {
		return s
	}
	return &ScreensharesState{Items: items}
}

func appendScreenshare(s *ScreensharesState, sh model.Screenshare) *ScreensharesState {
	if s.has(sh.Key()) {
		return s
	}
	items := make([]model.Screenshare, 0, len(s.Items)+1)
	items = append(items, s.Items...)
	items = append(items, sh)
	return &ScreensharesState{Items: items}
}

func reduceChatMessage(s *State, e event.ChatMessageReceived) *State {
	if !isConnected(s) {
		return s
	}
	msgs := make([]model.ChatMessage, 0, len(s.Chat.Messages)+1)
	msgs = append(msgs, s.Chat.Messages...)
	msgs = append(msgs, e.Message)
	n := s.clone()
	n.Chat = &ChatState{Messages: msgs}
	return n
}
