// Package stream decides which remote streams the transport should receive
// and drives the transport accordingly.
package stream

import (
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/rtc"
	"github.com/rs/zerolog"
)

// Acceptor is the part of the rtc manager reconciliation needs.
type Acceptor interface {
	AcceptNewStream(req rtc.AcceptRequest)
	Disconnect(streamID string, activeBreakout bool)
	ShouldAcceptStreamsFromBothSides() bool
}

// Policy carries the viewer-side inputs of classification.
type Policy struct {
	// Eligible reports whether this client may see the participant.
	// Nil means every participant is eligible.
	Eligible           func(p *model.RemoteParticipant) bool
	MyselfBroadcasting bool
	ActiveBreakout     bool
}

func (p Policy) eligible(rp *model.RemoteParticipant) bool {
	if p.Eligible == nil {
		return true
	}
	return p.Eligible(rp)
}

// Change is a stream whose state has to move to Target.
type Change struct {
	ClientID string
	Stream   model.Stream
	Target   model.StreamState
}

// Classify computes the target state of st. ok is false when st is already
// settled for the given inputs.
func Classify(st model.Stream, eligible, myselfBroadcasting bool) (target model.StreamState, ok bool) {
	primary := st.NewJoiner && st.ID == model.PrimaryStreamID
	switch {
	case eligible:
		if st.State == model.StreamStateDoneAccept {
			return st.State, false
		}
		if primary {
			return model.StreamStateNewAccept, true
		}
		return model.StreamStateToAccept, true
	case myselfBroadcasting:
		if st.State == model.StreamStateDoneAccept {
			return st.State, false
		}
		if primary {
			return model.StreamStateDoneAccept, true
		}
		return model.StreamStateOldAccept, true
	default:
		if st.State == model.StreamStateDoneUnaccept {
			return st.State, false
		}
		return model.StreamStateToUnaccept, true
	}
}

// Plan lists the streams of participants that need a transition, in
// participant then stream order.
func Plan(participants []model.RemoteParticipant, p Policy) []Change {
	var changes []Change
	for i := range participants {
		rp := &participants[i]
		eligible := p.eligible(rp)
		for _, st := range rp.Streams {
			target, ok := Classify(st, eligible, p.MyselfBroadcasting)
			if !ok {
				continue
			}
			changes = append(changes, Change{ClientID: rp.ID, Stream: st, Target: target})
		}
	}
	return changes
}

// addressOf returns the id the transport knows a stream by.
func addressOf(clientID, streamID string) string {
	if streamID == model.PrimaryStreamID {
		return clientID
	}
	return streamID
}

// Reconcile issues transport commands for changes and returns the settled
// states to record. find looks participants up in the latest snapshot;
// changes for participants that are gone by now are skipped.
func Reconcile(
	acc Acceptor,
	changes []Change,
	find func(clientID string) *model.RemoteParticipant,
	p Policy,
	logger *zerolog.Logger,
) []model.StreamStatusUpdate {
	if len(changes) == 0 {
		return nil
	}
	bothSides := acc.ShouldAcceptStreamsFromBothSides()
	updates := make([]model.StreamStatusUpdate, 0, len(changes))
	for _, c := range changes {
		rp := find(c.ClientID)
		if rp == nil || rp.StreamIndex(c.Stream.ID) < 0 {
			logger.Debug().
				Str("clientID", c.ClientID).
				Str("streamID", c.Stream.ID).
				Msg("participant or stream gone, skipping")
			continue
		}

		addr := addressOf(c.ClientID, c.Stream.ID)
		switch {
		case c.Target == model.StreamStateToAccept,
			c.Target == model.StreamStateNewAccept && bothSides,
			c.Target == model.StreamStateOldAccept && !bothSides:
			acc.AcceptNewStream(rtc.AcceptRequest{
				StreamID:            addr,
				ClientID:            c.ClientID,
				ShouldAddLocalVideo: c.Stream.ID == model.PrimaryStreamID,
				ActiveBreakout:      p.ActiveBreakout,
			})
		case c.Target == model.StreamStateNewAccept, c.Target == model.StreamStateOldAccept:
			// the remote side initiates
		case c.Target == model.StreamStateToUnaccept:
			acc.Disconnect(addr, p.ActiveBreakout)
		case c.Target != model.StreamStateDoneAccept:
			logger.Warn().
				Str("clientID", c.ClientID).
				Str("streamID", c.Stream.ID).
				Str("target", string(c.Target)).
				Msg("unhandled stream state")
			continue
		}
		updates = append(updates, model.StreamStatusUpdate{
			ClientID: c.ClientID,
			StreamID: c.Stream.ID,
			State:    c.Target.Done(),
		})
	}
	return updates
}
