// Package hub supervises the one active game session: it owns the connection
// manager bound to that game and routes REST results into the reconciler.
package hub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/gridiron-viewer/internal/conn"
	"github.com/DoyleJ11/gridiron-viewer/internal/reconciler"
	"github.com/DoyleJ11/gridiron-viewer/internal/simapi"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

var (
	ErrNoActiveGame = errors.New("no active game")
	ErrHubStopped   = errors.New("hub stopped")
)

// REST is the subset of the simulation API the hub drives.
type REST interface {
	CreateGame(ctx context.Context, req simapi.CreateGameRequest) (types.GameSnapshot, error)
	Step(ctx context.Context, gameID string) (types.GameSnapshot, error)
	Pause(ctx context.Context, gameID string) (types.GameSnapshot, error)
	Resume(ctx context.Context, gameID string) (types.GameSnapshot, error)
	UpdateSettings(ctx context.Context, gameID string, s simapi.Settings) (types.GameSnapshot, error)
}

type HubMsg interface{ isHubMsg() }

type Activate struct {
	GameID string
	Reply  chan error
}

type GetActive struct {
	Reply chan activeReply
}

type End struct {
	Reply chan error
}

type ShutdownHub struct {
	Reply chan error
}

type activeReply struct {
	gameID string
	mgr    *conn.Manager
}

func (Activate) isHubMsg()    {}
func (GetActive) isHubMsg()   {}
func (End) isHubMsg()         {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	// WSURL is the channel URL template; "{id}" is replaced by the game ID.
	WSURL  string
	Conn   conn.Config
	Dialer conn.Dialer
	Logger *zap.Logger
}

// Active describes the supervised session.
type Active struct {
	GameID string      `json:"game_id"`
	Conn   conn.Status `json:"conn"`
}

type Hub struct {
	cfg    Config
	rec    *reconciler.Reconciler
	api    REST
	log    *zap.Logger
	inbox  chan HubMsg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// owned by loop
	gameID string
	mgr    *conn.Manager
}

func NewHub(parent context.Context, cfg Config, rec *reconciler.Reconciler, api REST) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		rec:    rec,
		api:    api,
		log:    cfg.Logger.Named("hub"),
		inbox:  make(chan HubMsg, 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			_ = h.release()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Activate:
				msg.Reply <- h.activate(msg.GameID)

			case GetActive:
				msg.Reply <- activeReply{gameID: h.gameID, mgr: h.mgr}

			case End:
				err := h.release()
				h.rec.Post(reconciler.Clear{})
				msg.Reply <- err

			case ShutdownHub:
				msg.Reply <- h.release()
				h.cancel()
				return
			}
		}
	}
}

// activate keeps the session of the game already active and only reopens its
// channel if it closed. Switching games clears the reconciler before the new
// channel opens.
func (h *Hub) activate(gameID string) error {
	if gameID == "" {
		return fmt.Errorf("activate: empty game id")
	}
	if gameID == h.gameID && h.mgr != nil {
		h.mgr.Connect()
		return nil
	}
	err := h.release()
	h.rec.Post(reconciler.Clear{})

	cfg := h.cfg.Conn
	cfg.URL = GameURL(h.cfg.WSURL, gameID)
	if cfg.Logger == nil {
		cfg.Logger = h.cfg.Logger
	}
	mgr := conn.NewManager(h.ctx, cfg, h.cfg.Dialer, h.rec)
	h.rec.Post(reconciler.BindSender{Sender: mgr})
	mgr.Connect()

	h.gameID, h.mgr = gameID, mgr
	h.log.Info("game activated", zap.String("game", gameID), zap.String("url", cfg.URL))
	return err
}

// release disconnects and closes the active manager, if any.
func (h *Hub) release() error {
	if h.mgr == nil {
		return nil
	}
	h.rec.Post(reconciler.BindSender{})
	h.mgr.Disconnect()
	err := h.mgr.Close()
	h.log.Info("game released", zap.String("game", h.gameID))
	h.gameID, h.mgr = "", nil
	return err
}

// GameURL substitutes the escaped game ID into template.
func GameURL(template, gameID string) string {
	return strings.ReplaceAll(template, "{id}", url.PathEscape(gameID))
}

func (h *Hub) ask(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

func wait[T any](ctx, hubCtx context.Context, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-hubCtx.Done():
		return zero, ErrHubStopped
	}
}

// Activate points the session at gameID and opens its channel.
func (h *Hub) Activate(ctx context.Context, gameID string) error {
	reply := make(chan error, 1)
	if err := h.ask(ctx, Activate{GameID: gameID, Reply: reply}); err != nil {
		return err
	}
	err, werr := wait(ctx, h.ctx, reply)
	return multierr.Append(werr, err)
}

// Active reports the supervised game, or false when there is none.
func (h *Hub) Active(ctx context.Context) (Active, bool) {
	r, err := h.active(ctx)
	if err != nil || r.mgr == nil {
		return Active{}, false
	}
	return Active{GameID: r.gameID, Conn: r.mgr.Status()}, true
}

func (h *Hub) active(ctx context.Context) (activeReply, error) {
	reply := make(chan activeReply, 1)
	if err := h.ask(ctx, GetActive{Reply: reply}); err != nil {
		return activeReply{}, err
	}
	return wait(ctx, h.ctx, reply)
}

// End closes the active channel and clears the session.
func (h *Hub) End(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := h.ask(ctx, End{Reply: reply}); err != nil {
		return err
	}
	err, werr := wait(ctx, h.ctx, reply)
	return multierr.Append(werr, err)
}

// Shutdown releases the active session and stops the hub.
func (h *Hub) Shutdown() error {
	reply := make(chan error, 1)
	select {
	case h.inbox <- ShutdownHub{Reply: reply}:
	case <-h.ctx.Done():
		<-h.done
		return nil
	}
	var err error
	select {
	case err = <-reply:
	case <-h.done:
	}
	<-h.done
	return err
}

// CreateGame creates a game upstream, activates it and seeds the reconciler
// with the returned snapshot.
func (h *Hub) CreateGame(ctx context.Context, req simapi.CreateGameRequest) (types.GameSnapshot, error) {
	snap, err := h.api.CreateGame(ctx, req)
	if err != nil {
		h.rec.Post(reconciler.RESTFailed{Op: "create game", Err: err})
		return snap, err
	}
	if snap.GameState == nil || snap.GameState.GameID == "" {
		err := fmt.Errorf("create game: response has no game id")
		h.rec.Post(reconciler.RESTFailed{Op: "create game", Err: err})
		return snap, err
	}
	if err := h.Activate(ctx, snap.GameState.GameID); err != nil {
		return snap, err
	}
	h.rec.Post(reconciler.FromREST{Snapshot: snap})
	return snap, nil
}

func (h *Hub) Step(ctx context.Context) (types.GameSnapshot, error) {
	return h.mutate(ctx, "step", h.api.Step)
}

func (h *Hub) Pause(ctx context.Context) (types.GameSnapshot, error) {
	return h.mutate(ctx, "pause", h.api.Pause)
}

func (h *Hub) Resume(ctx context.Context) (types.GameSnapshot, error) {
	return h.mutate(ctx, "resume", h.api.Resume)
}

func (h *Hub) UpdateSettings(ctx context.Context, s simapi.Settings) (types.GameSnapshot, error) {
	return h.mutate(ctx, "update settings", func(ctx context.Context, id string) (types.GameSnapshot, error) {
		return h.api.UpdateSettings(ctx, id, s)
	})
}

// mutate runs a REST call against the active game. The returned snapshot is
// applied like a full sync; a failure only sets the notice.
func (h *Hub) mutate(ctx context.Context, op string, call func(context.Context, string) (types.GameSnapshot, error)) (types.GameSnapshot, error) {
	r, err := h.active(ctx)
	if err != nil {
		return types.GameSnapshot{}, err
	}
	if r.gameID == "" {
		return types.GameSnapshot{}, ErrNoActiveGame
	}
	snap, err := call(ctx, r.gameID)
	if err != nil {
		h.rec.Post(reconciler.RESTFailed{Op: op, Err: err})
		return snap, err
	}
	h.rec.Post(reconciler.FromREST{Snapshot: snap})
	return snap, nil
}

// PlayCall validates and sends a play call on the active channel.
func (h *Hub) PlayCall(ctx context.Context, call types.PlayCall) error {
	return h.rec.PlayCall(ctx, call)
}

// Send forwards a control message on the active channel. It is dropped when
// no game is active.
func (h *Hub) Send(m types.ClientMessage) {
	r, err := h.active(h.ctx)
	if err != nil || r.mgr == nil {
		h.log.Debug("no active game, dropping message", zap.String("type", string(m.Type())))
		return
	}
	r.mgr.Send(m)
}
