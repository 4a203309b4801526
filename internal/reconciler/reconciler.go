package reconciler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/gridiron-viewer/internal/engine"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

const DefaultMaxPending = 256

var ErrNoSender = errors.New("no outbound channel bound")

type Msg interface{ isReconcilerMsg() }

type FromServer struct {
	Msg types.ServerMessage
}

func (FromServer) isReconcilerMsg() {}

// FromREST carries the snapshot returned by a mutating REST call.
type FromREST struct {
	Snapshot types.GameSnapshot
}

func (FromREST) isReconcilerMsg() {}

type RESTFailed struct {
	Op  string
	Err error
}

func (RESTFailed) isReconcilerMsg() {}

type ConnOpened struct{}

func (ConnOpened) isReconcilerMsg() {}

type ConnError struct{ Err error }

func (ConnError) isReconcilerMsg() {}

type Subscribe struct {
	ClientID string
	Outbox   chan Snapshot // where this subscriber wants to receive snapshots
}

func (Subscribe) isReconcilerMsg() {}

type Unsubscribe struct{ ClientID string }

func (Unsubscribe) isReconcilerMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isReconcilerMsg() {}

type BindSender struct {
	Sender Sender
}

func (BindSender) isReconcilerMsg() {}

type SendPlayCall struct {
	Call  types.PlayCall
	Reply chan error
}

func (SendPlayCall) isReconcilerMsg() {}

// Clear ends the session: state, play log and buffered deltas are dropped.
type Clear struct{}

func (Clear) isReconcilerMsg() {}

type Shutdown struct{}

func (Shutdown) isReconcilerMsg() {}

// Sender is the outbound half of the real-time channel.
type Sender interface {
	Send(types.ClientMessage)
}

// Snapshot is a deep copy; subscribers may keep it but it never changes.
type Snapshot struct {
	Version       int                   `json:"version"`
	HasState      bool                  `json:"has_state"`
	State         types.GameState       `json:"game_state"`
	Home          types.Team            `json:"home_team"`
	Away          types.Team            `json:"away_team"`
	PlayLog       []engine.PlayLogEntry `json:"play_log"`
	AwaitingInput bool                  `json:"awaiting_input"`
	Prompt        *types.DownState      `json:"prompt,omitempty"`
	LegalPlays    []types.PlayOption    `json:"legal_plays,omitempty"`
	Notice        string                `json:"notice,omitempty"`
	Pending       int                   `json:"pending"`
}

type View struct {
	Snapshot
	NumSubscribers int `json:"num_subscribers"`
}

type Config struct {
	Logger     *zap.Logger
	MaxPending int
}

type Reconciler struct {
	inbox      chan Msg
	session    engine.Session
	version    int
	pending    []types.ServerMessage
	maxPending int
	subs       map[string]chan Snapshot
	sender     Sender
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(parent context.Context, cfg Config) *Reconciler {
	ctx, cancel := context.WithCancel(parent)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}

	r := &Reconciler{
		inbox:      make(chan Msg, 64),
		maxPending: maxPending,
		subs:       make(map[string]chan Snapshot),
		log:        logger.Named("reconciler"),
		ctx:        ctx,
		cancel:     cancel,
	}

	go r.loop()
	return r
}

func (r *Reconciler) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Subscribe:
				r.subs[msg.ClientID] = msg.Outbox
				r.deliver(msg.ClientID, msg.Outbox, r.snapshot())

			case Unsubscribe:
				delete(r.subs, msg.ClientID)

			case FromServer:
				if r.apply(msg.Msg) {
					r.changed()
				}

			case FromREST:
				if msg.Snapshot.GameState == nil {
					r.log.Warn("rest snapshot without game state")
					break
				}
				if r.apply(types.StateSync(msg.Snapshot)) {
					r.changed()
				}

			case RESTFailed:
				// Last-known-good state is kept; only the notice changes.
				r.log.Warn("rest call failed", zap.String("op", msg.Op), zap.Error(msg.Err))
				r.session.Notice = fmt.Sprintf("%s failed: %v", msg.Op, msg.Err)
				r.changed()

			case ConnOpened:
				if r.sender != nil {
					r.sender.Send(types.RequestSync{})
				}

			case ConnError:
				r.log.Warn("channel error", zap.Error(msg.Err))
				r.session.Notice = fmt.Sprintf("connection error: %v", msg.Err)
				r.changed()

			case BindSender:
				r.sender = msg.Sender

			case SendPlayCall:
				msg.Reply <- r.sendPlayCall(msg.Call)

			case Clear:
				r.session = engine.Session{}
				r.pending = nil
				r.changed()

			case GetState:
				msg.Reply <- View{
					Snapshot:       r.snapshot(),
					NumSubscribers: len(r.subs),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

// apply reports whether the session changed.
func (r *Reconciler) apply(m types.ServerMessage) bool {
	events, next, err := engine.Apply(r.session, m)
	switch {
	case errors.Is(err, engine.ErrNoSnapshot):
		r.buffer(m)
		return true
	case err != nil:
		r.log.Warn("message rejected", zap.String("type", string(m.Type())), zap.Error(err))
		return false
	}

	r.session = next
	if engine.ContainsEvent(events, engine.EvtSnapshotApplied) {
		r.replayPending()
	}
	return true
}

func (r *Reconciler) buffer(m types.ServerMessage) {
	if len(r.pending) >= r.maxPending {
		r.log.Warn("pending buffer full, dropping oldest delta",
			zap.String("dropped", string(r.pending[0].Type())))
		r.pending = r.pending[1:]
	}
	r.pending = append(r.pending, m)
}

func (r *Reconciler) replayPending() {
	pending := r.pending
	r.pending = nil
	for _, m := range pending {
		_, next, err := engine.Apply(r.session, m)
		if err != nil {
			r.log.Warn("buffered delta rejected", zap.String("type", string(m.Type())), zap.Error(err))
			continue
		}
		r.session = next
	}
	if len(pending) > 0 {
		r.log.Debug("replayed buffered deltas", zap.Int("count", len(pending)))
	}
}

func (r *Reconciler) sendPlayCall(call types.PlayCall) error {
	if err := engine.ValidatePlayCall(r.session, call); err != nil {
		return err
	}
	if r.sender == nil {
		return ErrNoSender
	}
	r.sender.Send(call)
	return nil
}

func (r *Reconciler) changed() {
	r.version++
	r.broadcast(r.snapshot())
}

func (r *Reconciler) snapshot() Snapshot {
	s := engine.Clone(r.session)
	snap := Snapshot{
		Version:       r.version,
		Home:          s.Home,
		Away:          s.Away,
		PlayLog:       s.PlayLog,
		AwaitingInput: s.AwaitingInput,
		Prompt:        s.Prompt,
		LegalPlays:    s.LegalPlays,
		Notice:        s.Notice,
		Pending:       len(r.pending),
	}
	if s.State != nil {
		snap.HasState = true
		snap.State = *s.State
	}
	return snap
}

func (r *Reconciler) shutdown() {
	for id, ch := range r.subs {
		close(ch) // Tell subscriber no more snapshots
		delete(r.subs, id)
	}
	r.cancel()
}

func (r *Reconciler) broadcast(snap Snapshot) {
	for id, ch := range r.subs {
		r.deliver(id, ch, snap)
	}
}

func (r *Reconciler) deliver(id string, ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		// ok
	default:
		// Subscriber is slow/full - drop them.
		r.log.Debug("dropping slow subscriber", zap.String("id", id))
		close(ch)
		delete(r.subs, id)
	}
}

// Expose the inbox so the transport, REST layer and tests can send messages.
func (r *Reconciler) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the reconciler has stopped.
func (r *Reconciler) Done() <-chan struct{} { return r.ctx.Done() }

// Post delivers m unless the reconciler has stopped.
func (r *Reconciler) Post(m Msg) { r.post(m) }

// post never blocks past shutdown.
func (r *Reconciler) post(m Msg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

func (r *Reconciler) HandleMessage(m types.ServerMessage) { r.post(FromServer{Msg: m}) }
func (r *Reconciler) HandleOpen()                         { r.post(ConnOpened{}) }
func (r *Reconciler) HandleError(err error)               { r.post(ConnError{Err: err}) }

// State returns the current view, or false if the reconciler has stopped.
func (r *Reconciler) State(ctx context.Context) (View, bool) {
	reply := make(chan View, 1)
	select {
	case r.inbox <- GetState{Reply: reply}:
	case <-ctx.Done():
		return View{}, false
	case <-r.ctx.Done():
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-ctx.Done():
		return View{}, false
	case <-r.ctx.Done():
		return View{}, false
	}
}

// PlayCall validates call against the current prompt and sends it.
func (r *Reconciler) PlayCall(ctx context.Context, call types.PlayCall) error {
	reply := make(chan error, 1)
	select {
	case r.inbox <- SendPlayCall{Call: call, Reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return context.Canceled
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return context.Canceled
	}
}
