// Package rtc defines the transport manager contract and owns its lifecycle
// for a room session.
package rtc

import (
	"context"
	"errors"

	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/signaling"
)

var (
	ErrCreate   = errors.New("unable to create rtc manager")
	ErrCanceled = errors.New("rtc manager creation superseded")
)

// AcceptRequest asks the manager to start receiving a remote stream.
// StreamID is the participant id for the primary stream.
type AcceptRequest struct {
	StreamID            string
	ClientID            string
	ShouldAddLocalVideo bool
	ActiveBreakout      bool
}

type Manager interface {
	AcceptNewStream(req AcceptRequest)
	Disconnect(streamID string, activeBreakout bool)
	DisconnectAll()
	// ShouldAcceptStreamsFromBothSides is an opaque transport policy.
	ShouldAcceptStreamsFromBothSides() bool
	// HandleRelay feeds sdp and ice messages received over signaling.
	HandleRelay(msg signaling.Relay)
	Close() error
}

// ManagerConfig is handed to a Factory. Dispatch delivers transport events
// (StreamAdded) to the room store; it must not block.
type ManagerConfig struct {
	Relay       signaling.Sender
	Dispatch    func(event.Event)
	LocalStream model.MediaStream
}

type Factory interface {
	NewManager(ctx context.Context, cfg ManagerConfig) (Manager, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, cfg ManagerConfig) (Manager, error)

func (f FactoryFunc) NewManager(ctx context.Context, cfg ManagerConfig) (Manager, error) {
	return f(ctx, cfg)
}
