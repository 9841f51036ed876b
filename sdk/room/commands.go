package room

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/reaction"
	"github.com/adwski/roomsdk/sdk/session"
	"github.com/adwski/roomsdk/sdk/signaling"
	"github.com/adwski/roomsdk/sdk/state"
)

const (
	maxChatMessageLength = 4000
	maxDisplayNameLength = 100

	recordingCloud = "cloud"

	chatRate  = 2 // messages per second
	chatBurst = 5
)

var (
	ErrNotConnected     = errors.New("room is not connected")
	ErrNotLocked        = errors.New("room is not locked")
	ErrNoLocalMedia     = errors.New("session has no local media")
	ErrUnknownKnocker   = errors.New("no such waiting participant")
	ErrEmptyMessage     = errors.New("chat message cannot be empty")
	ErrMessageTooLong   = errors.New("chat message is too long")
	ErrChatRateLimited  = errors.New("too many chat messages")
	ErrDisplayNameLong  = errors.New("display name is too long")
	ErrRecordingActive  = errors.New("cloud recording is already requested")
	ErrRecordingMissing = errors.New("cloud recording is not running")
	ErrSend             = errors.New("unable to send command")
)

// Join records the intent to join roomURL. The url is validated here;
// everything else happens asynchronously and is reported as events.
func (s *Session) Join(roomURL string, opts session.Options) error {
	if opts.BaseDomain == "" {
		opts.BaseDomain = s.baseDomain
	}
	if opts.SDKVersion == "" {
		opts.SDKVersion = s.sdkVersion
	}
	opts.HasLocalMedia = s.local != nil
	params, err := session.NewJoinParams(roomURL, opts)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("room", params.RoomName).Str("subdomain", params.Subdomain).Msg("join requested")
	s.store.Dispatch(event.JoinRequested{Params: params})
	return nil
}

// Knock asks the hosts of a locked room to let us in.
func (s *Session) Knock(ctx context.Context) error {
	cur := s.store.State()
	if cur.Status() != model.ConnectionStatusRoomLocked {
		return ErrNotLocked
	}
	if err := s.send(ctx, signaling.KnockRoom{RoomRequest: reaction.RoomRequest(cur)}); err != nil {
		return err
	}
	s.store.Dispatch(event.KnockStarted{})
	return nil
}

// Leave tears the session down. It is a no-op before the first Join, once
// disconnected, and while a leave is already in progress.
func (s *Session) Leave() {
	s.store.Dispatch(event.LeaveRequested{})
}

func (s *Session) SendChatMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxChatMessageLength {
		return ErrMessageTooLong
	}
	if err := s.connected(); err != nil {
		return err
	}
	if !s.chatLimiter.Allow() {
		return ErrChatRateLimited
	}
	return s.send(ctx, signaling.SendChatMessage{Text: text})
}

// SetDisplayName announces the new name when connected; before that it is
// only remembered for the join.
func (s *Session) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return ErrDisplayNameLong
	}
	if s.connected() == nil {
		if err := s.send(ctx, signaling.SendClientMetadata{DisplayName: name}); err != nil {
			return err
		}
	}
	s.store.Dispatch(event.DisplayNameSet{DisplayName: name})
	return nil
}

func (s *Session) AcceptWaitingParticipant(ctx context.Context, id string) error {
	return s.handleKnock(ctx, id, signaling.KnockActionAccept)
}

func (s *Session) RejectWaitingParticipant(ctx context.Context, id string) error {
	return s.handleKnock(ctx, id, signaling.KnockActionReject)
}

func (s *Session) handleKnock(ctx context.Context, id, action string) error {
	if err := s.connected(); err != nil {
		return err
	}
	if !isWaiting(s.store.State(), id) {
		return ErrUnknownKnocker
	}
	if err := s.send(ctx, signaling.HandleKnock{ClientID: id, Action: action}); err != nil {
		return err
	}
	s.store.Dispatch(event.WaitingParticipantHandled{ClientID: id})
	return nil
}

func isWaiting(cur *state.State, id string) bool {
	for _, p := range cur.Waiting.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// StartScreenshare captures the screen and announces the stream.
func (s *Session) StartScreenshare(ctx context.Context) error {
	if s.local == nil {
		return ErrNoLocalMedia
	}
	if err := s.connected(); err != nil {
		return err
	}
	stream, err := s.local.StartScreenshare(ctx)
	if err != nil {
		s.store.Dispatch(event.ScreenshareStartFailed{Err: err})
		return err
	}
	msg := signaling.StartScreenshare{StreamID: stream.ID(), HasAudioTrack: stream.HasAudioTrack()}
	if err = s.send(ctx, msg); err != nil {
		if _, stopErr := s.local.StopScreenshare(); stopErr != nil {
			s.logger.Warn().Err(stopErr).Msg("unable to stop unannounced screenshare")
		}
		return err
	}
	s.store.Dispatch(event.ScreenshareStartFulfilled{Stream: stream})
	return nil
}

func (s *Session) StopScreenshare(ctx context.Context) error {
	if s.local == nil {
		return ErrNoLocalMedia
	}
	stream, err := s.local.StopScreenshare()
	if stream == nil {
		return err
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("capturer failed to stop screenshare")
	}
	s.store.Dispatch(event.ScreenshareStopFulfilled{})
	if s.connected() != nil {
		return nil
	}
	return s.send(ctx, signaling.StopScreenshare{StreamID: stream.ID()})
}

func (s *Session) StartCloudRecording(ctx context.Context) error {
	if err := s.connected(); err != nil {
		return err
	}
	switch s.store.State().CloudRecording.Status {
	case model.CloudRecordingRequested, model.CloudRecordingRecording:
		return ErrRecordingActive
	}
	s.store.Dispatch(event.CloudRecordingRequested{})
	if err := s.send(ctx, signaling.StartRecording{Recording: recordingCloud}); err != nil {
		s.store.Dispatch(event.CloudRecordingStarted{Error: err.Error()})
		return err
	}
	return nil
}

// StopCloudRecording asks the server to stop; the state goes back to idle
// when cloud_recording_stopped arrives.
func (s *Session) StopCloudRecording(ctx context.Context) error {
	if err := s.connected(); err != nil {
		return err
	}
	if s.store.State().CloudRecording.Status != model.CloudRecordingRecording {
		return ErrRecordingMissing
	}
	return s.send(ctx, signaling.StopRecording{})
}

// ToggleCamera flips the camera, or sets it when enabled is given. The room
// is told by the sync reaction once connected.
func (s *Session) ToggleCamera(enabled *bool) error {
	if s.local == nil {
		return ErrNoLocalMedia
	}
	return s.local.ToggleCamera(enabled)
}

func (s *Session) ToggleMicrophone(enabled *bool) error {
	if s.local == nil {
		return ErrNoLocalMedia
	}
	return s.local.ToggleMicrophone(enabled)
}

func (s *Session) connected() error {
	if s.store.State().Status() != model.ConnectionStatusConnected {
		return ErrNotConnected
	}
	return nil
}

func (s *Session) send(ctx context.Context, msg signaling.Outbound) error {
	if err := s.socket.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("type", msg.MessageType()).Msg("command was not sent")
		return errors.Join(ErrSend, err)
	}
	return nil
}
