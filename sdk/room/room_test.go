package room

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adwski/roomsdk/sdk/media"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/registry"
	"github.com/adwski/roomsdk/sdk/rtc"
	"github.com/adwski/roomsdk/sdk/session"
	"github.com/adwski/roomsdk/sdk/signaling"
	signalws "github.com/adwski/roomsdk/sdk/signaling/websocket"
	"github.com/adwski/roomsdk/sdk/state"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type creds struct{}

func (creds) Get(context.Context) (model.Credentials, error) {
	return model.Credentials{UUID: "dev", HMAC: "mac"}, nil
}

type orgs struct{}

func (orgs) Resolve(_ context.Context, _ model.Credentials, subdomain string) (model.Organization, error) {
	return model.Organization{ID: "org-1", Subdomain: subdomain}, nil
}

type socket struct {
	mx      sync.Mutex
	handler signaling.Handler
	sent    []signaling.Outbound
	closed  int
}

func (s *socket) Connect(_ context.Context, h signaling.Handler) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.handler = h
	return nil
}

func (s *socket) Send(_ context.Context, msg signaling.Outbound) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.handler == nil {
		return signaling.ErrNotConnected
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *socket) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.handler = nil
	s.closed++
	return nil
}

func (s *socket) deliver(t *testing.T, msgType string, payload any) {
	t.Helper()
	msg := signaling.Message{Type: msgType}
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = b
	}
	s.mx.Lock()
	h := s.handler
	s.mx.Unlock()
	require.NotNil(t, h)
	h.HandleMessage(msg)
}

func (s *socket) hasSent(msgType string) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	for _, m := range s.sent {
		if m.MessageType() == msgType {
			return true
		}
	}
	return false
}

func (s *socket) count(msgType string) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	n := 0
	for _, m := range s.sent {
		if m.MessageType() == msgType {
			n++
		}
	}
	return n
}

func (s *socket) last() signaling.Outbound {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

type manager struct {
	mx     sync.Mutex
	closed bool
}

func (m *manager) AcceptNewStream(rtc.AcceptRequest) {}
func (m *manager) Disconnect(string, bool) {}
func (m *manager) DisconnectAll() {}
func (m *manager) ShouldAcceptStreamsFromBothSides() bool { return false }
func (m *manager) HandleRelay(signaling.Relay) {}

func (m *manager) Close() error {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.closed = true
	return nil
}

func (m *manager) isClosed() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.closed
}

type recorder struct {
	mx     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) has(t EventType) bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	for _, ev := range r.events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

func newSession(t *testing.T, opts ...func(*Config)) (*Session, *socket, *manager) {
	t.Helper()
	logger := zerolog.Nop()
	sock := &socket{}
	mgr := &manager{}
	cfg := Config{
		Logger:       &logger,
		Credentials:  creds{},
		Organization: orgs{},
		Socket:       sock,
		RTC: rtc.FactoryFunc(func(context.Context, rtc.ManagerConfig) (rtc.Manager, error) {
			return mgr, nil
		}),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	sess, err := New(cfg)
	require.NoError(t, err)
	return sess, sock, mgr
}

func run(t *testing.T, sess *Session) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- sess.Run(ctx) }()
	return func() {
		cancel()
		assert.NoError(t, <-done)
	}
}

// handshake answers the n-th join of sess until it is connected.
func handshake(t *testing.T, sess *Session, sock *socket, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return sock.count(signaling.TypeIdentifyDevice) == n }, waitFor, tick)
	sock.deliver(t, signaling.TypeDeviceIdentified, nil)
	require.Eventually(t, func() bool { return sock.count(signaling.TypeJoinRoom) == n }, waitFor, tick)
	sock.deliver(t, signaling.TypeRoomJoined, map[string]any{
		"selfId": "p1",
		"room": map[string]any{
			"clients": []map[string]any{{"id": "p1", "displayName": "Ann", "role": map[string]string{"roleName": "host"}}},
		},
	})
	require.Eventually(t, func() bool {
		return sess.State().Status() == model.ConnectionStatusConnected
	}, waitFor, tick)
}

func TestJoinRejectsBadRoomURL(t *testing.T) {
	sess, _, _ := newSession(t)

	err := sess.Join("https://whereby.com/room", session.Options{})
	require.Error(t, err)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
	assert.False(t, sess.State().Session.WantsToJoin)
}

func TestSessionLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess, sock, mgr := newSession(t)
	rec := &recorder{}
	unsubscribe := sess.Subscribe(rec.record)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- sess.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	require.NoError(t, sess.Join("https://acme.whereby.com/standup", session.Options{DisplayName: " Ann "}))
	require.Eventually(t, func() bool { return sock.hasSent(signaling.TypeIdentifyDevice) }, waitFor, tick)

	sock.deliver(t, signaling.TypeDeviceIdentified, nil)
	require.Eventually(t, func() bool { return sock.hasSent(signaling.TypeJoinRoom) }, waitFor, tick)

	sock.deliver(t, signaling.TypeRoomJoined, map[string]any{
		"selfId": "p1",
		"room": map[string]any{
			"clients": []map[string]any{
				{"id": "p1", "displayName": "Ann", "role": map[string]string{"roleName": "host"}},
				{"id": "p2", "displayName": "Bo", "role": map[string]string{"roleName": "host"}, "streams": []string{"0"}},
			},
			"knockers": []map[string]string{{"clientId": "k1", "displayName": "Kim"}},
		},
	})
	require.Eventually(t, func() bool {
		cur := sess.State()
		return cur.Status() == model.ConnectionStatusConnected && cur.RTC.Status == model.RTCStatusReady
	}, waitFor, tick)
	assert.True(t, rec.has(ConnectionStatusChanged))
	assert.True(t, rec.has(ParticipantsChanged))
	assert.True(t, rec.has(WaitingParticipantsChanged))

	cur := sess.State()
	assert.Equal(t, "p1", cur.LocalParticipant.ID)
	require.Len(t, cur.Remote.Participants, 1)
	assert.Equal(t, "p2", cur.Remote.Participants[0].ID)

	t.Run("chat", func(t *testing.T) {
		assert.ErrorIs(t, sess.SendChatMessage(ctx, "   "), ErrEmptyMessage)
		require.NoError(t, sess.SendChatMessage(ctx, " hello "))
		assert.Equal(t, signaling.SendChatMessage{Text: "hello"}, sock.last())

		var limited bool
		for range chatBurst + 1 {
			if errors.Is(sess.SendChatMessage(ctx, "spam"), ErrChatRateLimited) {
				limited = true
				break
			}
		}
		assert.True(t, limited)
	})

	t.Run("waiting participants", func(t *testing.T) {
		assert.ErrorIs(t, sess.AcceptWaitingParticipant(ctx, "nobody"), ErrUnknownKnocker)
		require.NoError(t, sess.AcceptWaitingParticipant(ctx, "k1"))
		assert.Equal(t, signaling.HandleKnock{ClientID: "k1", Action: signaling.KnockActionAccept}, sock.last())
		require.Eventually(t, func() bool { return len(sess.State().Waiting.Participants) == 0 }, waitFor, tick)
	})

	t.Run("cloud recording", func(t *testing.T) {
		assert.ErrorIs(t, sess.StopCloudRecording(ctx), ErrRecordingMissing)
		require.NoError(t, sess.StartCloudRecording(ctx))
		assert.Equal(t, signaling.StartRecording{Recording: "cloud"}, sock.last())
		require.Eventually(t, func() bool {
			return sess.State().CloudRecording.Status == model.CloudRecordingRequested
		}, waitFor, tick)
		assert.ErrorIs(t, sess.StartCloudRecording(ctx), ErrRecordingActive)
		require.Eventually(t, func() bool { return rec.has(CloudRecordingRequestStarted) }, waitFor, tick)

		sock.deliver(t, signaling.TypeCloudRecordingStarted, map[string]any{})
		require.Eventually(t, func() bool {
			return sess.State().CloudRecording.Status == model.CloudRecordingRecording
		}, waitFor, tick)
		require.NoError(t, sess.StopCloudRecording(ctx))
		assert.Equal(t, signaling.StopRecording{}, sock.last())
		assert.Equal(t, model.CloudRecordingRecording, sess.State().CloudRecording.Status, "idle only once the server confirms")

		sock.deliver(t, signaling.TypeCloudRecordingStopped, nil)
		require.Eventually(t, func() bool {
			return sess.State().CloudRecording.Status == model.CloudRecordingIdle
		}, waitFor, tick)
		assert.True(t, rec.has(CloudRecordingStopped))
	})

	t.Run("display name", func(t *testing.T) {
		require.NoError(t, sess.SetDisplayName(ctx, "Annie"))
		assert.Equal(t, signaling.SendClientMetadata{DisplayName: "Annie"}, sock.last())
		require.Eventually(t, func() bool { return sess.State().LocalParticipant.DisplayName == "Annie" }, waitFor, tick)
	})

	t.Run("no local media", func(t *testing.T) {
		assert.ErrorIs(t, sess.ToggleCamera(nil), ErrNoLocalMedia)
		assert.ErrorIs(t, sess.StartScreenshare(ctx), ErrNoLocalMedia)
		assert.ErrorIs(t, sess.Knock(ctx), ErrNotLocked)
	})

	sess.Leave()
	require.Eventually(t, func() bool {
		return sess.State().Status() == model.ConnectionStatusDisconnected
	}, waitFor, tick)
	assert.True(t, mgr.isClosed())
	assert.True(t, sock.hasSent(signaling.TypeLeaveRoom))
	assert.ErrorIs(t, sess.SendChatMessage(ctx, "bye"), ErrNotConnected)
}

func TestProject(t *testing.T) {
	prev := state.Initial()
	cur := *prev
	cur.Connection = &state.ConnectionState{Status: model.ConnectionStatusConnected}
	cur.Chat = &state.ChatState{Messages: []model.ChatMessage{{SenderID: "p2", Text: "hi"}}}
	cur.CloudRecording = &state.CloudRecordingState{Status: model.CloudRecordingError, Error: "no recorder"}
	boom := errors.New("boom")
	cur.Credentials = &state.CredentialsState{Err: boom}

	events := Project(prev, &cur, nil)
	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
		assert.Same(t, &cur, ev.State)
	}
	assert.Equal(t, []EventType{
		ConnectionStatusChanged,
		ChatMessagesChanged,
		CloudRecordingError,
		Error,
	}, types)

	last := events[len(events)-1]
	require.NotNil(t, last.Err)
	assert.Equal(t, model.KindTransient, last.Err.Kind)
	assert.ErrorIs(t, last.Err, boom)

	assert.Empty(t, Project(&cur, &cur, nil), "same snapshot projects nothing")

	protocol := model.NewError(model.KindProtocol, "no self", nil)
	events = Project(&cur, &cur, protocol)
	require.Len(t, events, 1)
	assert.Equal(t, Error, events[0].Type)
	assert.Same(t, protocol, events[0].Err)
}

func TestRepeatedLeaveReachesDisconnected(t *testing.T) {
	defer goleak.VerifyNone(t)

	sess, sock, _ := newSession(t)
	defer run(t, sess)()

	require.NoError(t, sess.Join("https://acme.whereby.com/standup", session.Options{}))
	handshake(t, sess, sock, 1)

	sess.Leave()
	sess.Leave()
	require.Eventually(t, func() bool {
		cur := sess.State()
		return cur.Status() == model.ConnectionStatusDisconnected && !cur.Session.Leaving
	}, waitFor, tick)
	assert.EqualValues(t, 1, sess.State().Session.Epoch)
	assert.Equal(t, 1, sock.count(signaling.TypeLeaveRoom))

	require.NoError(t, sess.Join("https://acme.whereby.com/standup", session.Options{}))
	handshake(t, sess, sock, 2)
}

func TestScreenshareStoppedOnLeave(t *testing.T) {
	defer goleak.VerifyNone(t)

	devices := registry.New[media.Capturer]()
	_, err := devices.CreateOrGet("static", func() (media.Capturer, error) {
		return media.NewStaticCapturer(), nil
	})
	require.NoError(t, err)

	sess, sock, _ := newSession(t, func(cfg *Config) {
		cfg.Devices = devices
		cfg.Device = "static"
	})
	defer run(t, sess)()
	ctx := context.Background()

	require.NoError(t, sess.Join("https://acme.whereby.com/standup", session.Options{}))
	handshake(t, sess, sock, 1)
	require.NoError(t, sess.StartScreenshare(ctx))
	require.Eventually(t, func() bool { return sess.State().LocalParticipant.IsScreenSharing }, waitFor, tick)

	sess.Leave()
	require.Eventually(t, func() bool {
		return sess.State().Status() == model.ConnectionStatusDisconnected
	}, waitFor, tick)
	assert.False(t, sess.State().LocalParticipant.IsScreenSharing)

	require.NoError(t, sess.Join("https://acme.whereby.com/standup", session.Options{}))
	handshake(t, sess, sock, 2)
	require.NoError(t, sess.StartScreenshare(ctx), "capture was released with the room")
	assert.Equal(t, 2, sock.count(signaling.TypeStartScreenshare))
}

func TestLeaveDuringSocketReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	const reconnectDelay = 500 * time.Millisecond
	var (
		mx          sync.Mutex
		connections int
		identifies  int
		upgrader    websocket.Upgrader
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		mx.Lock()
		connections++
		first := connections == 1
		mx.Unlock()
		if first {
			// the first socket is dropped right away
			return
		}
		for {
			var m signaling.Message
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			if m.Type == signaling.TypeIdentifyDevice {
				mx.Lock()
				identifies++
				mx.Unlock()
			}
		}
	}))
	defer srv.Close()
	counts := func() (int, int) {
		mx.Lock()
		defer mx.Unlock()
		return connections, identifies
	}

	logger := zerolog.Nop()
	sess, _, _ := newSession(t, func(cfg *Config) {
		cfg.Socket = signalws.NewClient(signalws.Config{
			Logger: &logger,
			URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		})
		cfg.ReconnectDelay = reconnectDelay
	})
	lost := make(chan struct{})
	var lostOnce sync.Once
	sess.SubscribeState(func(_, cur *state.State, _ *model.Error) {
		if cur.Signaling.Status == model.SignalStatusDisconnected {
			lostOnce.Do(func() { close(lost) })
		}
	})
	defer run(t, sess)()

	require.NoError(t, sess.Join("https://acme.whereby.com/standup", session.Options{}))
	select {
	case <-lost:
	case <-time.After(waitFor):
		t.Fatal("socket loss was not reported")
	}

	sess.Leave()
	require.Eventually(t, func() bool {
		return sess.State().Status() == model.ConnectionStatusDisconnected
	}, waitFor, tick)
	assert.Equal(t, model.SignalStatusNone, sess.State().Signaling.Status)

	time.Sleep(reconnectDelay + 200*time.Millisecond)
	conns, _ := counts()
	assert.Equal(t, 1, conns, "no socket is opened after the leave")

	require.NoError(t, sess.Join("https://acme.whereby.com/standup", session.Options{}))
	require.Eventually(t, func() bool {
		_, ids := counts()
		return ids == 1
	}, waitFor, tick)
	assert.Equal(t, model.SignalStatusConnected, sess.State().Signaling.Status)
	conns, _ = counts()
	assert.Equal(t, 2, conns)
}
