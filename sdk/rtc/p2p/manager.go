// Package p2p is an rtc manager with one pion peer connection per remote client.
package p2p

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/rtc"
	"github.com/adwski/roomsdk/sdk/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	relayTimeout = 3 * time.Second

	streamTypeScreenshare = "screenshare"
)

var (
	ErrAPI         = errors.New("unable to set up webrtc api")
	ErrPeer        = errors.New("unable to create peer connection")
	ErrNegotiation = errors.New("negotiation failed")
	ErrClosed      = errors.New("manager is closed")
)

// TrackSource is a local stream that can be published on a peer connection.
type TrackSource interface {
	Tracks() []webrtc.TrackLocal
}

type (
	Config struct {
		Logger     *zerolog.Logger
		ICEServers []string
		// AcceptStreamsFromBothSides lets this side accept new joiners' webcams
		// itself instead of waiting for their offer.
		AcceptStreamsFromBothSides bool
	}

	// Factory creates managers sharing one webrtc API.
	Factory struct {
		logger    *zerolog.Logger
		api       *webrtc.API
		config    webrtc.Configuration
		bothSides bool
	}

	Manager struct {
		logger    zerolog.Logger
		api       *webrtc.API
		config    webrtc.Configuration
		bothSides bool
		relay     signaling.Sender
		dispatch  func(event.Event)
		local     model.MediaStream

		mx     *sync.Mutex
		peers  map[string]*peer
		closed bool
		wg     *sync.WaitGroup
	}

	peer struct {
		clientID string
		pc       *webrtc.PeerConnection

		mx        *sync.Mutex
		remoteSet bool
		pending   []webrtc.ICECandidateInit
		primary   string
		streams   map[string]*remoteStream
	}

	remoteStream struct {
		id    string
		audio atomic.Bool
	}
)

func (s *remoteStream) ID() string          { return s.id }
func (s *remoteStream) HasAudioTrack() bool { return s.audio.Load() }

func NewFactory(cfg Config) (*Factory, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, errors.Join(ErrAPI, err)
	}
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(cfg.Logger)}

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	return &Factory{
		logger:    cfg.Logger,
		api:       webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se)),
		config:    webrtc.Configuration{ICEServers: servers},
		bothSides: cfg.AcceptStreamsFromBothSides,
	}, nil
}

func (f *Factory) NewManager(ctx context.Context, cfg rtc.ManagerConfig) (rtc.Manager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Manager{
		logger:    f.logger.With().Str("component", "p2p").Logger(),
		api:       f.api,
		config:    f.config,
		bothSides: f.bothSides,
		relay:     cfg.Relay,
		dispatch:  cfg.Dispatch,
		local:     cfg.LocalStream,
		mx:        &sync.Mutex{},
		peers:     make(map[string]*peer),
		wg:        &sync.WaitGroup{},
	}, nil
}

func (m *Manager) ShouldAcceptStreamsFromBothSides() bool {
	return m.bothSides
}

// AcceptNewStream offers to the client. Screenshares ride on the client's
// existing connection, so only the first accepted stream opens one.
func (m *Manager) AcceptNewStream(req rtc.AcceptRequest) {
	p, created, err := m.peerFor(req.ClientID, req.ShouldAddLocalVideo)
	if err != nil {
		m.logger.Error().Err(err).Str("clientID", req.ClientID).Msg("cannot accept stream")
		return
	}
	if !created {
		m.logger.Debug().
			Str("clientID", req.ClientID).
			Str("streamID", req.StreamID).
			Msg("stream joins existing connection")
		return
	}
	m.spawn(func() { m.offer(p) })
}

// Disconnect closes the client's connection when addressed by client id.
// Secondary streams end when the remote side stops them.
func (m *Manager) Disconnect(streamID string, _ bool) {
	m.mx.Lock()
	p, ok := m.peers[streamID]
	if ok {
		delete(m.peers, streamID)
	}
	m.mx.Unlock()
	if !ok {
		m.logger.Debug().Str("streamID", streamID).Msg("no connection to disconnect")
		return
	}
	m.closePeer(p)
}

func (m *Manager) DisconnectAll() {
	m.mx.Lock()
	peers := m.peers
	m.peers = make(map[string]*peer)
	m.mx.Unlock()
	for _, p := range peers {
		m.closePeer(p)
	}
}

func (m *Manager) Close() error {
	m.mx.Lock()
	m.closed = true
	peers := m.peers
	m.peers = make(map[string]*peer)
	m.mx.Unlock()

	var errs []error
	for _, p := range peers {
		errs = append(errs, p.pc.Close())
	}
	m.wg.Wait()
	return errors.Join(errs...)
}

func (m *Manager) HandleRelay(msg signaling.Relay) {
	if msg.SenderID == "" {
		m.logger.Warn().Str("type", msg.Kind).Msg("relay without sender")
		return
	}
	switch msg.Kind {
	case signaling.TypeSDPOffer:
		if msg.Description == nil {
			return
		}
		p, _, err := m.peerFor(msg.SenderID, true)
		if err != nil {
			m.logger.Error().Err(err).Str("clientID", msg.SenderID).Msg("cannot answer offer")
			return
		}
		desc := *msg.Description
		m.spawn(func() { m.answer(p, desc) })
	case signaling.TypeSDPAnswer:
		if msg.Description == nil {
			return
		}
		if p := m.lookup(msg.SenderID); p != nil {
			m.setRemote(p, webrtc.SessionDescription{
				Type: webrtc.NewSDPType(msg.Description.Type),
				SDP:  msg.Description.SDP,
			})
		}
	case signaling.TypeICECandidate:
		if msg.Candidate == nil {
			return
		}
		// candidates may overtake the offer; they wait on the new peer
		if p, _, err := m.peerFor(msg.SenderID, true); err == nil {
			m.addCandidate(p, webrtc.ICECandidateInit{
				Candidate:     msg.Candidate.Candidate,
				SDPMid:        msg.Candidate.SDPMid,
				SDPMLineIndex: msg.Candidate.SDPMLineIndex,
			})
		}
	case signaling.TypeReadyToReceiveOffer:
		m.AcceptNewStream(rtc.AcceptRequest{
			StreamID:            msg.SenderID,
			ClientID:            msg.SenderID,
			ShouldAddLocalVideo: true,
		})
	}
}

func (m *Manager) lookup(clientID string) *peer {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.peers[clientID]
}

// peerFor returns the client's peer, creating it when absent.
func (m *Manager) peerFor(clientID string, withLocal bool) (*peer, bool, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	if p, ok := m.peers[clientID]; ok {
		return p, false, nil
	}
	p, err := m.newPeer(clientID, withLocal)
	if err != nil {
		return nil, false, err
	}
	m.peers[clientID] = p
	return p, true, nil
}

func (m *Manager) newPeer(clientID string, withLocal bool) (*peer, error) {
	pc, err := m.api.NewPeerConnection(m.config)
	if err != nil {
		return nil, errors.Join(ErrPeer, err)
	}
	p := &peer{
		clientID: clientID,
		pc:       pc,
		mx:       &sync.Mutex{},
		streams:  make(map[string]*remoteStream),
	}

	var tracks []webrtc.TrackLocal
	if src, ok := m.local.(TrackSource); ok && withLocal {
		tracks = src.Tracks()
	}
	for _, t := range tracks {
		if _, err = pc.AddTrack(t); err != nil {
			return nil, errors.Join(ErrPeer, err, pc.Close())
		}
	}
	if len(tracks) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err = pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return nil, errors.Join(ErrPeer, err, pc.Close())
			}
		}
	}

	logger := m.logger.With().Str("clientID", clientID).Logger()
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cand := c.ToJSON()
		m.send(signaling.Relay{
			Kind:       signaling.TypeICECandidate,
			ReceiverID: clientID,
			Candidate: &signaling.ICECandidate{
				Candidate:     cand.Candidate,
				SDPMid:        cand.SDPMid,
				SDPMLineIndex: cand.SDPMLineIndex,
			},
		})
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		logger.Debug().Str("state", st.String()).Msg("peer connection state changed")
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.onTrack(p, track)
	})
	return p, nil
}

func (m *Manager) onTrack(p *peer, track *webrtc.TrackRemote) {
	p.mx.Lock()
	msid := track.StreamID()
	if p.primary == "" {
		p.primary = msid
	}
	rs, ok := p.streams[msid]
	if !ok {
		rs = &remoteStream{id: msid}
		p.streams[msid] = rs
	}
	streamID, streamType := model.PrimaryStreamID, model.StreamTypeWebcam
	if msid != p.primary {
		streamID, streamType = msid, streamTypeScreenshare
	}
	p.mx.Unlock()

	if track.Kind() == webrtc.RTPCodecTypeAudio {
		rs.audio.Store(true)
	}
	m.dispatch(event.StreamAdded{
		ClientID:   p.clientID,
		StreamID:   streamID,
		Stream:     rs,
		StreamType: streamType,
	})
	// nothing renders remote media here; keep the receive buffers flowing
	m.spawn(func() {
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
		}
	})
}

func (m *Manager) offer(p *peer) {
	offer, err := p.pc.CreateOffer(nil)
	if err == nil {
		err = p.pc.SetLocalDescription(offer)
	}
	if err != nil {
		m.logger.Error().Err(errors.Join(ErrNegotiation, err)).Str("clientID", p.clientID).Msg("offer failed")
		return
	}
	m.send(signaling.Relay{
		Kind:        signaling.TypeSDPOffer,
		ReceiverID:  p.clientID,
		Description: &signaling.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP},
	})
}

func (m *Manager) answer(p *peer, desc signaling.SessionDescription) {
	if !m.setRemote(p, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: desc.SDP}) {
		return
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err == nil {
		err = p.pc.SetLocalDescription(answer)
	}
	if err != nil {
		m.logger.Error().Err(errors.Join(ErrNegotiation, err)).Str("clientID", p.clientID).Msg("answer failed")
		return
	}
	m.send(signaling.Relay{
		Kind:        signaling.TypeSDPAnswer,
		ReceiverID:  p.clientID,
		Description: &signaling.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP},
	})
}

// setRemote applies desc and flushes candidates that arrived before it.
func (m *Manager) setRemote(p *peer, desc webrtc.SessionDescription) bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		m.logger.Error().Err(errors.Join(ErrNegotiation, err)).Str("clientID", p.clientID).Msg("remote description rejected")
		return false
	}
	p.remoteSet = true
	for _, c := range p.pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			m.logger.Warn().Err(err).Str("clientID", p.clientID).Msg("buffered candidate rejected")
		}
	}
	p.pending = nil
	return true
}

func (m *Manager) addCandidate(p *peer, c webrtc.ICECandidateInit) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		return
	}
	if err := p.pc.AddICECandidate(c); err != nil {
		m.logger.Warn().Err(err).Str("clientID", p.clientID).Msg("candidate rejected")
	}
}

func (m *Manager) send(msg signaling.Relay) {
	if m.relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	if err := m.relay.Send(ctx, msg); err != nil {
		m.logger.Warn().Err(err).Str("type", msg.Kind).Str("dst", msg.ReceiverID).Msg("relay was not sent")
	}
}

func (m *Manager) closePeer(p *peer) {
	if err := p.pc.Close(); err != nil {
		m.logger.Warn().Err(err).Str("clientID", p.clientID).Msg("unable to close peer connection")
	}
}

// spawn is a no-op once the manager is closed.
func (m *Manager) spawn(fn func()) {
	m.mx.Lock()
	if m.closed {
		m.mx.Unlock()
		return
	}
	m.wg.Add(1)
	m.mx.Unlock()
	go func() {
		defer m.wg.Done()
		fn()
	}()
}
