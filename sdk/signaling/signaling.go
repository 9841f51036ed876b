// Package signaling holds the signaling socket contract, the wire messages
// exchanged over it and the router that turns inbound messages into room
// events and transport relays.
package signaling

import (
	"context"
	"errors"
)

var (
	ErrNotConnected = errors.New("signaling socket is not connected")
	ErrSendTimeout  = errors.New("signaling send timed out")
	ErrDecode       = errors.New("unable to decode signaling message")
	ErrEncode       = errors.New("unable to encode signaling message")
)

type (
	// Sender emits an outbound message.
	Sender interface {
		Send(ctx context.Context, msg Outbound) error
	}

	// Handler receives raw inbound envelopes and socket loss. It is called
	// from the socket's receive goroutine.
	Handler interface {
		HandleMessage(msg Message)
		HandleDisconnect(err error)
	}

	// Socket is a signaling connection. Connect returns once the socket is
	// open; Close is an intentional shutdown and does not call HandleDisconnect.
	Socket interface {
		Sender
		Connect(ctx context.Context, h Handler) error
		Close() error
	}
)
