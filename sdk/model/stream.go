package model

import "strings"

// PrimaryStreamID is the id of a participant's webcam stream.
// The rtc layer addresses that stream by participant id instead.
const PrimaryStreamID = "0"

const StreamTypeWebcam = "webcam"

// StreamState marks whether transport work for a stream is pending or settled.
type StreamState string

const (
	StreamStateUnset        StreamState = ""
	StreamStateNewAccept    StreamState = "new_accept"
	StreamStateToAccept     StreamState = "to_accept"
	StreamStateDoneAccept   StreamState = "done_accept"
	StreamStateOldAccept    StreamState = "old_accept"
	StreamStateToUnaccept   StreamState = "to_unaccept"
	StreamStateDoneUnaccept StreamState = "done_unaccept"
)

// Done returns the settled equivalent: to_*, new_* and old_* become done_*.
func (s StreamState) Done() StreamState {
	for _, prefix := range []string{"to_", "new_", "old_"} {
		if rest, ok := strings.CutPrefix(string(s), prefix); ok {
			return StreamState("done_" + rest)
		}
	}
	return s
}

func (s StreamState) IsDone() bool {
	return s == StreamStateDoneAccept || s == StreamStateDoneUnaccept
}

type Stream struct {
	ID        string      `json:"id"`
	State     StreamState `json:"state"`
	NewJoiner bool        `json:"newJoiner"`
}

// StreamStatusUpdate is the outcome of reconciling one remote stream.
type StreamStatusUpdate struct {
	ClientID string
	StreamID string
	State    StreamState
}
