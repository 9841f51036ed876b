package reaction

import (
	"github.com/adwski/roomsdk/sdk/event"
	"github.com/adwski/roomsdk/sdk/model"
	"github.com/adwski/roomsdk/sdk/selector"
	"github.com/adwski/roomsdk/sdk/state"
	"github.com/adwski/roomsdk/sdk/store"
	"github.com/adwski/roomsdk/sdk/stream"
)

type streamKey struct {
	clientID string
	streamID string
}

// reconciler settles remote streams against the rtc manager. Settled states
// travel back through the queue, so it remembers what it already issued
// until the snapshot catches up.
type reconciler struct {
	transport Transport
	policy    stream.Policy
	plan      selector.Func[*state.State, []stream.Change]
	issued    map[streamKey]model.StreamState
}

func newReconciler(t Transport, p stream.Policy) *reconciler {
	return &reconciler{
		transport: t,
		policy:    p,
		plan: selector.New1(
			func(s *state.State) *state.RemoteState { return s.Remote },
			func(r *state.RemoteState) []stream.Change { return stream.Plan(r.Participants, p) },
		),
		issued: make(map[streamKey]model.StreamState),
	}
}

func (r *reconciler) reaction() Reaction {
	return Reaction{Name: ReconcileStreams, Guard: r.guard, Run: r.run, Level: true}
}

func (r *reconciler) guard(prev, cur *state.State) bool {
	if cur.RTC.Status != model.RTCStatusReady {
		clear(r.issued)
		return false
	}
	becameReady := prev.RTC.Status != model.RTCStatusReady
	if !becameReady && prev.Remote == cur.Remote {
		return false
	}
	r.forgetSettled(cur)
	return len(r.pending(cur)) > 0
}

func (r *reconciler) run(eff store.Effects, cur *state.State) {
	m := r.transport.Manager()
	if m == nil {
		return
	}
	logger := eff.Logger()
	updates := stream.Reconcile(m, r.pending(cur), cur.Remote.Find, r.policy, logger)
	if len(updates) == 0 {
		return
	}
	for _, u := range updates {
		r.issued[streamKey{u.ClientID, u.StreamID}] = u.State
	}
	eff.Dispatch(event.StreamStatusesUpdated{Updates: updates})
}

// pending drops changes already issued and not yet reflected.
func (r *reconciler) pending(cur *state.State) []stream.Change {
	changes := r.plan(cur)
	if len(r.issued) == 0 {
		return changes
	}
	out := make([]stream.Change, 0, len(changes))
	for _, c := range changes {
		if done, ok := r.issued[streamKey{c.ClientID, c.Stream.ID}]; ok && done == c.Target.Done() {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *reconciler) forgetSettled(cur *state.State) {
	for k, done := range r.issued {
		p := cur.Remote.Find(k.clientID)
		if p == nil {
			delete(r.issued, k)
			continue
		}
		i := p.StreamIndex(k.streamID)
		if i < 0 || p.Streams[i].State == done {
			delete(r.issued, k)
		}
	}
}
