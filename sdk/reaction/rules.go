package reaction

import (
	"context"
	"errors"
	"time"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/media"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/rtc"
	"github.com/adwski/roomsdk/sdk/signaling"
	"github.com/adwski/roomsdk/sdk/state"
	"github.com/adwski/roomsdk/sdk/store"
	"github.com/adwski/roomsdk/sdk/stream"
)

// Reaction names, also used as metric labels.
const (
	FetchCredentials    = "fetch-credentials"
	FetchOrganization   = "fetch-organization"
	ConnectSignaling    = "connect-signaling"
	IdentifyDevice      = "identify-device"
	StartLocalMedia     = "start-local-media"
	JoinRoom            = "join-room"
	CreateRTCDispatcher = "create-rtc-dispatcher"
	ReconcileStreams    = "reconcile-streams"
	SyncAudio           = "sync-audio"
	SyncVideo           = "sync-video"
	Teardown            = "teardown"
	AcquireWakeLock     = "wake-lock-acquire"
	ReleaseWakeLock     = "wake-lock-release"
)

const defaultReconnectDelay = time.Second

type (
	CredentialSource interface {
		Get(ctx context.Context) (model.Credentials, error)
	}

	OrganizationSource interface {
		Resolve(ctx context.Context, creds model.Credentials, subdomain string) (model.Organization, error)
	}

	LocalMedia interface {
		Start(ctx context.Context) event.Event
		StopScreenshare() (model.MediaStream, error)
	}

	// Transport is the session's rtc connector.
	Transport interface {
		Create(ctx context.Context, local model.MediaStream) event.Event
		Manager() rtc.Manager
		DisconnectAll()
		Close()
	}

	// Deps are the collaborators the reaction table drives.
	Deps struct {
		Credentials  CredentialSource
		Organization OrganizationSource
		Socket       signaling.Socket
		Handler      signaling.Handler
		Transport    Transport
		Media        LocalMedia
		WakeLock     media.WakeLock
		Policy       stream.Policy
		// ReconnectDelay is waited before reopening a lost socket.
		ReconnectDelay time.Duration
	}
)

// Table returns every room reaction in evaluation order.
func Table(d Deps) []Reaction {
	if d.ReconnectDelay == 0 {
		d.ReconnectDelay = defaultReconnectDelay
	}
	if d.WakeLock == nil {
		d.WakeLock = media.NoWakeLock{}
	}
	return []Reaction{
		{Name: FetchCredentials, Guard: needsCredentials, Run: d.fetchCredentials},
		{Name: FetchOrganization, Guard: needsOrganization, Run: d.fetchOrganization},
		{Name: ConnectSignaling, Guard: needsSocket, Run: d.connectSignaling},
		{Name: IdentifyDevice, Guard: needsIdentify, Run: d.identifyDevice},
		{Name: StartLocalMedia, Guard: needsLocalMedia, Run: d.startLocalMedia},
		{Name: JoinRoom, Guard: needsJoin, Run: d.joinRoom},
		{Name: CreateRTCDispatcher, Guard: needsDispatcher, Run: d.createDispatcher},
		newReconciler(d.Transport, d.Policy).reaction(),
		{Name: SyncAudio, Guard: audioOutOfSync, Run: d.syncAudio},
		{Name: SyncVideo, Guard: videoOutOfSync, Run: d.syncVideo},
		{Name: Teardown, Guard: leaving, Run: d.teardown},
		{Name: AcquireWakeLock, Guard: needsWakeLock, Run: d.acquireWakeLock},
		{Name: ReleaseWakeLock, Guard: holdsWakeLock, Run: d.releaseWakeLock},
	}
}

// joining holds while a join is wanted and no teardown is in progress.
func joining(s *state.State) bool {
	return s.Session.WantsToJoin && !s.Session.Leaving
}

func needsCredentials(_, cur *state.State) bool {
	c := cur.Credentials
	return joining(cur) && c.Credentials == nil && !c.IsFetching && c.Err == nil
}

func (d Deps) fetchCredentials(eff store.Effects, _ *state.State) {
	eff.Dispatch(event.CredentialsFetchStarted{})
	eff.Go(func(ctx context.Context) event.Event {
		creds, err := d.Credentials.Get(ctx)
		if err != nil {
			return event.CredentialsFetchFailed{Err: err}
		}
		return event.CredentialsFetched{Credentials: creds}
	})
}

func needsOrganization(_, cur *state.State) bool {
	o := cur.Organization
	return joining(cur) &&
		cur.Credentials.Credentials != nil && !cur.Credentials.IsFetching &&
		o.Organization == nil && !o.IsFetching && o.Err == nil
}

func (d Deps) fetchOrganization(eff store.Effects, cur *state.State) {
	creds := *cur.Credentials.Credentials
	subdomain := cur.Session.Params.Subdomain
	eff.Dispatch(event.OrganizationFetchStarted{})
	eff.Go(func(ctx context.Context) event.Event {
		org, err := d.Organization.Resolve(ctx, creds, subdomain)
		if err != nil {
			return event.OrganizationFetchFailed{Err: err}
		}
		return event.OrganizationFetched{Organization: org}
	})
}

func needsSocket(_, cur *state.State) bool {
	sig := cur.Signaling.Status
	return joining(cur) && (sig == model.SignalStatusNone || sig == model.SignalStatusDisconnected)
}

func (d Deps) connectSignaling(eff store.Effects, cur *state.State) {
	reconnect := cur.Signaling.Status == model.SignalStatusDisconnected
	eff.Dispatch(event.SocketConnecting{})
	eff.Go(func(ctx context.Context) event.Event {
		if reconnect {
			t := time.NewTimer(d.ReconnectDelay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := d.Socket.Connect(ctx, d.Handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return event.SocketDisconnected{Err: err}
		}
		return event.SocketConnected{}
	})
}

func needsIdentify(_, cur *state.State) bool {
	sig := cur.Signaling
	return cur.Credentials.Credentials != nil &&
		sig.Status == model.SignalStatusConnected && sig.IsListening &&
		!sig.DeviceIdentified && !sig.IsIdentifying && sig.Err == nil
}

func (d Deps) identifyDevice(eff store.Effects, cur *state.State) {
	creds := *cur.Credentials.Credentials
	eff.Dispatch(event.DeviceIdentifyStarted{})
	eff.Go(func(ctx context.Context) event.Event {
		if err := d.Socket.Send(ctx, signaling.IdentifyDevice{DeviceCredentials: creds}); err != nil {
			return event.DeviceIdentifyFailed{Err: err}
		}
		// device_identified arrives from the server
		return nil
	})
}

func needsLocalMedia(_, cur *state.State) bool {
	lm := cur.LocalMedia
	return joining(cur) && lm.Configured && lm.Status == state.LocalMediaIdle
}

func (d Deps) startLocalMedia(eff store.Effects, _ *state.State) {
	eff.Dispatch(event.LocalMediaStarting{})
	eff.Go(d.Media.Start)
}

// localMediaSettled holds when joining does not have to wait for capture.
func localMediaSettled(s *state.State) bool {
	lm := s.LocalMedia
	return !lm.Configured || lm.Status == state.LocalMediaStarted || lm.Status == state.LocalMediaFailed
}

func needsJoin(_, cur *state.State) bool {
	sig := cur.Signaling
	if !joining(cur) || !sig.DeviceIdentified || sig.RoomJoinRequested || sig.InRoom ||
		cur.Organization.Organization == nil || !localMediaSettled(cur) {
		return false
	}
	switch cur.Status() {
	case model.ConnectionStatusConnecting, model.ConnectionStatusConnected:
		// connected means the socket was replaced and the room has to be joined again
		return true
	case model.ConnectionStatusKnocking:
		return cur.Session.Admitted
	}
	return false
}

// RoomRequest builds the join and knock payload from a snapshot.
func RoomRequest(s *state.State) signaling.RoomRequest {
	req := signaling.RoomRequest{
		RoomName:    s.Session.Params.RoomName,
		RoomKey:     s.Session.RoomKey,
		DisplayName: s.LocalParticipant.DisplayName,
		ExternalID:  s.Session.Params.ExternalID,
		SDKVersion:  s.Session.Params.SDKVersion,
		SelfID:      s.LocalParticipant.ID,
		Config: signaling.MediaConfig{
			IsAudioEnabled: s.LocalMedia.MicrophoneEnabled,
			IsVideoEnabled: s.LocalMedia.CameraEnabled,
		},
	}
	if s.Organization.Organization != nil {
		req.OrganizationID = s.Organization.Organization.ID
	}
	return req
}

func (d Deps) joinRoom(eff store.Effects, cur *state.State) {
	req := RoomRequest(cur)
	eff.Dispatch(event.RoomJoinRequested{})
	eff.Go(func(ctx context.Context) event.Event {
		if err := d.Socket.Send(ctx, signaling.JoinRoom{RoomRequest: req}); err != nil {
			eff.Logger().Error().Err(err).Msg("join_room was not sent")
		}
		return nil
	})
}

func needsDispatcher(_, cur *state.State) bool {
	r := cur.RTC
	sig := cur.Signaling
	return joining(cur) &&
		!r.DispatcherCreated && !r.IsCreatingDispatcher && r.Err == nil &&
		sig.Status == model.SignalStatusConnected && sig.IsListening &&
		localMediaSettled(cur)
}

func (d Deps) createDispatcher(eff store.Effects, cur *state.State) {
	local := cur.LocalMedia.Stream
	eff.Dispatch(event.RTCDispatcherCreateStarted{})
	eff.Go(func(ctx context.Context) event.Event {
		return d.Transport.Create(ctx, local)
	})
}

func audioOutOfSync(_, cur *state.State) bool {
	return cur.Status() == model.ConnectionStatusConnected &&
		cur.LocalMedia.MicrophoneEnabled != cur.LocalParticipant.IsAudioEnabled
}

func (d Deps) syncAudio(eff store.Effects, cur *state.State) {
	enabled := cur.LocalMedia.MicrophoneEnabled
	eff.Go(func(ctx context.Context) event.Event {
		if err := d.Socket.Send(ctx, signaling.EnableAudio{Enabled: enabled}); err != nil {
			eff.Logger().Error().Err(err).Msg("enable_audio was not sent")
			return nil
		}
		return event.AudioEnableFulfilled{Enabled: enabled}
	})
}

func videoOutOfSync(_, cur *state.State) bool {
	return cur.Status() == model.ConnectionStatusConnected &&
		cur.LocalMedia.CameraEnabled != cur.LocalParticipant.IsVideoEnabled
}

func (d Deps) syncVideo(eff store.Effects, cur *state.State) {
	enabled := cur.LocalMedia.CameraEnabled
	eff.Go(func(ctx context.Context) event.Event {
		if err := d.Socket.Send(ctx, signaling.EnableVideo{Enabled: enabled}); err != nil {
			eff.Logger().Error().Err(err).Msg("enable_video was not sent")
			return nil
		}
		return event.VideoEnableFulfilled{Enabled: enabled}
	})
}

func leaving(_, cur *state.State) bool {
	return cur.Session.Leaving
}

// teardown stops streams, destroys the transport, closes the socket and
// only then reports the room as left.
func (d Deps) teardown(eff store.Effects, _ *state.State) {
	eff.Go(func(ctx context.Context) event.Event {
		if d.Media != nil {
			if _, err := d.Media.StopScreenshare(); err != nil && !errors.Is(err, media.ErrScreenshareAbsent) {
				eff.Logger().Warn().Err(err).Msg("screenshare was not stopped")
			}
		}
		d.Transport.DisconnectAll()
		d.Transport.Close()

		if err := d.Socket.Send(ctx, signaling.LeaveRoom{}); err != nil && !errors.Is(err, signaling.ErrNotConnected) {
			eff.Logger().Warn().Err(err).Msg("leave_room was not sent")
		}
		if err := d.Socket.Close(); err != nil {
			eff.Logger().Warn().Err(err).Msg("socket close failed")
		}
		eff.Dispatch(event.SocketClosed{})
		return event.RoomLeft{}
	})
}

func needsWakeLock(_, cur *state.State) bool {
	st := cur.WakeLock.Status
	return cur.Status() == model.ConnectionStatusConnected &&
		(st == model.WakeLockIdle || st == model.WakeLockReleased)
}

func (d Deps) acquireWakeLock(eff store.Effects, _ *state.State) {
	eff.Go(func(context.Context) event.Event {
		err := d.WakeLock.Acquire()
		switch {
		case errors.Is(err, media.ErrUnsupported):
			return event.WakeLockUnsupported{}
		case err != nil:
			eff.Logger().Warn().Err(err).Msg("wake lock was not acquired")
			return nil
		}
		return event.WakeLockAcquired{}
	})
}

func holdsWakeLock(_, cur *state.State) bool {
	switch cur.Status() {
	case model.ConnectionStatusConnected, model.ConnectionStatusConnecting:
		return false
	}
	return cur.WakeLock.Status == model.WakeLockAcquired
}

func (d Deps) releaseWakeLock(eff store.Effects, _ *state.State) {
	eff.Go(func(context.Context) event.Event {
		if err := d.WakeLock.Release(); err != nil {
			eff.Logger().Warn().Err(err).Msg("wake lock was not released")
			return nil
		}
		return event.WakeLockReleased{}
	})
}
