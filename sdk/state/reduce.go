package state

import (
	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
)

// Reduce applies ev to s. It returns s itself when nothing changed, so callers
// can detect no-ops by pointer comparison. A non-nil error means ev violated a
// protocol invariant; s is returned unchanged in that case.
func Reduce(s *State, ev event.Event) (*State, *model.Error) {
	switch e := ev.(type) {
	case event.JoinRequested:
		return reduceJoinRequested(s, e), nil
	case event.LeaveRequested:
		return reduceLeaveRequested(s), nil
	case event.RoomLeft:
		return reduceRoomLeft(s), nil

	case event.CredentialsFetchStarted:
		return withCredentials(s, &CredentialsState{
			Credentials: s.Credentials.Credentials,
			IsFetching:  true,
		}), nil
	case event.CredentialsFetched:
		creds := e.Credentials
		return withCredentials(s, &CredentialsState{Credentials: &creds}), nil
	case event.CredentialsFetchFailed:
		return withCredentials(s, &CredentialsState{
			Credentials: s.Credentials.Credentials,
			Err:         e.Err,
		}), nil

	case event.OrganizationFetchStarted:
		return withOrganization(s, &OrganizationState{
			Organization: s.Organization.Organization,
			IsFetching:   true,
		}), nil
	case event.OrganizationFetched:
		org := e.Organization
		return withOrganization(s, &OrganizationState{Organization: &org}), nil
	case event.OrganizationFetchFailed:
		return withOrganization(s, &OrganizationState{
			Organization: s.Organization.Organization,
			Err:          e.Err,
		}), nil

	case event.SocketConnecting, event.SocketConnected, event.SocketDisconnected, event.SocketClosed,
		event.DeviceIdentifyStarted, event.DeviceIdentified, event.DeviceIdentifyFailed,
		event.RoomJoinRequested:
		return reduceSignaling(s, ev), nil

	case event.RoomJoined:
		return reduceRoomJoined(s, e)
	case event.KnockStarted:
		return reduceKnockStarted(s), nil
	case event.KnockHandled:
		return reduceKnockHandled(s, e), nil
	case event.RoomKnocked:
		return reduceRoomKnocked(s, e), nil
	case event.KnockerLeft:
		return removeWaiting(s, e.ClientID), nil
	case event.WaitingParticipantHandled:
		return removeWaiting(s, e.ClientID), nil
	case event.ParticipantJoined:
		return reduceParticipantJoined(s, e), nil
	case event.ParticipantLeft:
		return reduceParticipantLeft(s, e), nil
	case event.ParticipantAudioEnabled:
		return updateRemote(s, e.ClientID, func(p *model.RemoteParticipant) bool {
			if p.IsAudioEnabled == e.Enabled {
				return false
			}
			p.IsAudioEnabled = e.Enabled
			return true
		}), nil
	case event.ParticipantVideoEnabled:
		return updateRemote(s, e.ClientID, func(p *model.RemoteParticipant) bool {
			if p.IsVideoEnabled == e.Enabled {
				return false
			}
			p.IsVideoEnabled = e.Enabled
			return true
		}), nil
	case event.ClientMetadataReceived:
		return reduceClientMetadata(s, e), nil
	case event.RemoteScreenshareStarted:
		return reduceRemoteScreenshareStarted(s, e), nil
	case event.RemoteScreenshareStopped:
		return reduceRemoteScreenshareStopped(s, e), nil
	case event.ChatMessageReceived:
		return reduceChatMessage(s, e), nil

	case event.CloudRecordingRequested, event.CloudRecordingStarted, event.CloudRecordingStopped,
		event.StreamingStarted, event.StreamingStopped:
		return reduceRecording(s, ev), nil

	case event.RTCDispatcherCreateStarted, event.RTCDispatcherCreated, event.RTCDispatcherCreateFailed,
		event.RTCManagerCreated, event.RTCManagerDestroyed:
		return reduceRTC(s, ev), nil
	case event.StreamAdded:
		return reduceStreamAdded(s, e), nil
	case event.StreamStatusesUpdated:
		return reduceStreamStatuses(s, e), nil

	case event.LocalMediaStarting, event.LocalMediaStarted, event.LocalMediaStartFailed,
		event.CameraEnabled, event.MicrophoneEnabled:
		return reduceLocalMedia(s, ev), nil
	case event.AudioEnableFulfilled, event.VideoEnableFulfilled, event.DisplayNameSet:
		return reduceLocalParticipant(s, ev), nil
	case event.ScreenshareStartFulfilled:
		return reduceScreenshareStarted(s, e), nil
	case event.ScreenshareStartFailed:
		if s.LocalMedia.Err == e.Err {
			return s, nil
		}
		lm := *s.LocalMedia
		lm.Err = e.Err
		n := s.clone()
		n.LocalMedia = &lm
		return n, nil
	case event.ScreenshareStopFulfilled:
		return reduceScreenshareStopped(s), nil

	case event.WakeLockAcquired:
		return withWakeLock(s, model.WakeLockAcquired), nil
	case event.WakeLockReleased:
		return withWakeLock(s, model.WakeLockReleased), nil
	case event.WakeLockUnsupported:
		return withWakeLock(s, model.WakeLockUnsupported), nil
	}
	return s, nil
}

func withCredentials(s *State, c *CredentialsState) *State {
	n := s.clone()
	n.Credentials = c
	return n
}

func withOrganization(s *State, o *OrganizationState) *State {
	n := s.clone()
	n.Organization = o
	return n
}

func withStatus(s *State, status model.ConnectionStatus) *State {
	if s.Connection.Status == status && s.Connection.Err == nil {
		return s
	}
	n := s.clone()
	n.Connection = &ConnectionState{Status: status}
	return n
}

func withWakeLock(s *State, status model.WakeLockStatus) *State {
	// unsupported is a sentinel; nothing moves it afterwards.
	if s.WakeLock.Status == status || s.WakeLock.Status == model.WakeLockUnsupported {
		return s
	}
	n := s.clone()
	n.WakeLock = &WakeLockState{Status: status}
	return n
}

func reduceJoinRequested(s *State, e event.JoinRequested) *State {
	if s.Status() == model.ConnectionStatusKnockRejected {
		return s
	}
	n := s.clone()
	n.Session = &SessionState{
		Epoch:       s.Session.Epoch,
		WantsToJoin: true,
		// a join during teardown waits for room_left
		Leaving: s.Session.Leaving,
		Params:  e.Params,
		RoomKey: e.Params.RoomKey,
	}
	// A fresh intent is the only thing that clears fetch errors.
	if s.Credentials.Err != nil {
		n.Credentials = &CredentialsState{Credentials: s.Credentials.Credentials}
	}
	switch {
	case s.Organization.Organization != nil && s.Organization.Organization.Subdomain != e.Params.Subdomain:
		n.Organization = &OrganizationState{}
	case s.Organization.Err != nil:
		n.Organization = &OrganizationState{Organization: s.Organization.Organization}
	}
	if s.RTC.Err != nil {
		rtc := *s.RTC
		rtc.Err = nil
		n.RTC = &rtc
	}
	lm := *s.LocalMedia
	lm.Configured = e.Params.HasLocalMedia
	n.LocalMedia = &lm
	if e.Params.DisplayName != "" && s.LocalParticipant.DisplayName == "" {
		lp := *s.LocalParticipant
		lp.DisplayName = e.Params.DisplayName
		lp.ExternalID = e.Params.ExternalID
		n.LocalParticipant = &lp
	}
	switch s.Status() {
	case model.ConnectionStatusInitializing, model.ConnectionStatusDisconnected:
		n.Connection = &ConnectionState{Status: model.ConnectionStatusConnecting}
	}
	return n
}

func reduceLeaveRequested(s *State) *State {
	if s.Session.Leaving {
		if !s.Session.WantsToJoin {
			return s
		}
		// a join queued behind the teardown is called off
		n := s.clone()
		sess := *s.Session
		sess.WantsToJoin = false
		n.Session = &sess
		return n
	}
	switch s.Status() {
	case model.ConnectionStatusInitializing, model.ConnectionStatusDisconnecting,
		model.ConnectionStatusDisconnected:
		return s
	}
	n := s.clone()
	n.Session = &SessionState{
		Epoch:   s.Session.Epoch + 1,
		Leaving: true,
		Params:  s.Session.Params,
	}
	// In-flight work of the previous epoch will never report back.
	n.Credentials = &CredentialsState{Credentials: s.Credentials.Credentials, Err: s.Credentials.Err}
	n.Organization = &OrganizationState{Organization: s.Organization.Organization, Err: s.Organization.Err}
	if s.RTC.IsCreatingDispatcher {
		rtc := *s.RTC
		rtc.IsCreatingDispatcher = false
		n.RTC = &rtc
	}
	if s.Status() != model.ConnectionStatusKnockRejected {
		n.Connection = &ConnectionState{Status: model.ConnectionStatusDisconnecting}
	}
	return n
}

func reduceRoomLeft(s *State) *State {
	n := s.clone()
	sess := *s.Session
	sess.Leaving = false
	n.Session = &sess
	n.Remote = &RemoteState{}
	n.Screenshares = &ScreensharesState{}
	n.Waiting = &WaitingState{}
	lp := *s.LocalParticipant
	lp.IsScreenSharing = false
	n.LocalParticipant = &lp
	switch {
	case s.Status() == model.ConnectionStatusKnockRejected:
	case s.Session.WantsToJoin:
		n.Connection = &ConnectionState{Status: model.ConnectionStatusConnecting}
	default:
		n.Connection = &ConnectionState{Status: model.ConnectionStatusDisconnected}
	}
	return n
}

func reduceSignaling(s *State, ev event.Event) *State {
	sig := *s.Signaling
	switch e := ev.(type) {
	case event.SocketConnecting:
		sig.Status = model.SignalStatusConnecting
		sig.Err = nil
	case event.SocketConnected:
		sig.Status = model.SignalStatusConnected
		sig.IsListening = true
	case event.SocketDisconnected:
		sig = SignalingState{Status: model.SignalStatusDisconnected, Err: e.Err}
	case event.SocketClosed:
		sig = SignalingState{}
	case event.DeviceIdentifyStarted:
		sig.IsIdentifying = true
	case event.DeviceIdentified:
		sig.IsIdentifying = false
		sig.DeviceIdentified = true
	case event.DeviceIdentifyFailed:
		sig.IsIdentifying = false
		sig.Err = e.Err
	case event.RoomJoinRequested:
		sig.RoomJoinRequested = true
	}
	if sig == *s.Signaling {
		return s
	}
	n := s.clone()
	n.Signaling = &sig
	return n
}
