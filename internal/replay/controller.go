// Package replay plays a finite, fully fetched tick sequence into the entity
// engine at a fixed wall-clock cadence.
//
// The controller is an actor: every state change runs on its goroutine, it
// owns at most one step timer, and timer and fetch callbacks carry a
// generation so work scheduled before a Load or Reset is ignored when it lands.
package replay

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/gridiron-viewer/internal/entity"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

var (
	ErrNotLoaded  = errors.New("no tick sequence loaded")
	ErrSuperseded = errors.New("load superseded")
	ErrStopped    = errors.New("replay controller stopped")
)

const DefaultInterval = 80 * time.Millisecond

type State int

const (
	NotStarted State = iota
	Loading
	Ready
	Playing
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Source fetches the complete tick sequence of one play.
type Source interface {
	Ticks(ctx context.Context, gameID, playID string) ([]types.Tick, error)
}

type SourceFunc func(ctx context.Context, gameID, playID string) ([]types.Tick, error)

func (f SourceFunc) Ticks(ctx context.Context, gameID, playID string) ([]types.Tick, error) {
	return f(ctx, gameID, playID)
}

// Sink receives ticks in playback order. *entity.Engine satisfies it.
type Sink interface {
	Apply(types.Tick) entity.Result
}

type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

type Status struct {
	State  State  `json:"state"`
	Index  int    `json:"index"`
	Length int    `json:"length"`
	GameID string `json:"game_id,omitempty"`
	PlayID string `json:"play_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

type msg interface{ isReplayMsg() }

type loadReq struct {
	gameID, playID string
	reply          chan error
}
type startReq struct{ reply chan error }
type resetReq struct{ reply chan error }
type statusReq struct{ reply chan Status }
type fetched struct {
	gen   uint64
	ticks []types.Tick
	err   error
}
type stepFired struct{ gen uint64 }

func (loadReq) isReplayMsg()   {}
func (startReq) isReplayMsg()  {}
func (resetReq) isReplayMsg()  {}
func (statusReq) isReplayMsg() {}
func (fetched) isReplayMsg()   {}
func (stepFired) isReplayMsg() {}

type Controller struct {
	cfg    Config
	src    Source
	sink   Sink
	log    *zap.Logger
	inbox  chan msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// owned by loop
	state        State
	gameID       string
	playID       string
	ticks        []types.Tick
	index        int
	gen          uint64
	timer        *time.Timer
	startPending bool
	waiters      []chan error
	lastErr      string
}

func New(parent context.Context, cfg Config, src Source, sink Sink) *Controller {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	c := &Controller{
		cfg:    cfg,
		src:    src,
		sink:   sink,
		log:    cfg.Logger.Named("replay"),
		inbox:  make(chan msg, 32),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.loop()
	return c
}

// Load replaces the current sequence with the ticks of one play and waits
// for the fetch to finish. On failure nothing is played and the controller
// stays not started.
func (c *Controller) Load(ctx context.Context, gameID, playID string) error {
	return c.call(ctx, func(reply chan error) msg {
		return loadReq{gameID: gameID, playID: playID, reply: reply}
	})
}

// Start begins playback. It is ignored while already playing or once the
// sequence has finished; during a load it starts as soon as the ticks arrive.
func (c *Controller) Start(ctx context.Context) error {
	return c.call(ctx, func(reply chan error) msg { return startReq{reply: reply} })
}

// Reset cancels the pending step, rewinds to the first tick and refetches the
// sequence. It does not wait for the refetch.
func (c *Controller) Reset(ctx context.Context) error {
	return c.call(ctx, func(reply chan error) msg { return resetReq{reply: reply} })
}

func (c *Controller) Status() Status {
	reply := make(chan Status, 1)
	select {
	case c.inbox <- statusReq{reply: reply}:
	case <-c.ctx.Done():
		return Status{State: Stopped, Error: ErrStopped.Error()}
	}
	select {
	case s := <-reply:
		return s
	case <-c.ctx.Done():
		return Status{State: Stopped, Error: ErrStopped.Error()}
	}
}

func (c *Controller) Close() error {
	c.cancel()
	<-c.done
	return nil
}

func (c *Controller) call(ctx context.Context, build func(chan error) msg) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- build(reply):
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrStopped
	}
}

func (c *Controller) post(m msg) {
	select {
	case c.inbox <- m:
	case <-c.ctx.Done():
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.stopTimer()
			c.release(ErrStopped)
			return
		case m := <-c.inbox:
			c.handle(m)
		}
	}
}

func (c *Controller) handle(m msg) {
	switch m := m.(type) {
	case loadReq:
		c.gameID, c.playID = m.gameID, m.playID
		c.startPending = false
		c.fetch()
		c.waiters = append(c.waiters, m.reply)

	case startReq:
		switch c.state {
		case NotStarted:
			m.reply <- ErrNotLoaded
			return
		case Loading:
			c.startPending = true
		case Ready:
			c.play()
		}
		m.reply <- nil

	case resetReq:
		if c.gameID == "" {
			m.reply <- ErrNotLoaded
			return
		}
		c.startPending = false
		c.fetch()
		c.log.Info("replay reset", zap.String("game", c.gameID), zap.String("play", c.playID))
		m.reply <- nil

	case statusReq:
		m.reply <- Status{
			State:  c.state,
			Index:  c.index,
			Length: len(c.ticks),
			GameID: c.gameID,
			PlayID: c.playID,
			Error:  c.lastErr,
		}

	case fetched:
		if m.gen != c.gen || c.state != Loading {
			return
		}
		if m.err != nil {
			c.log.Warn("tick fetch failed",
				zap.String("game", c.gameID),
				zap.String("play", c.playID),
				zap.Error(m.err))
			c.state = NotStarted
			c.ticks = nil
			c.startPending = false
			c.lastErr = m.err.Error()
			c.release(m.err)
			return
		}
		c.ticks = m.ticks
		c.state = Ready
		c.log.Info("ticks loaded", zap.Int("ticks", len(m.ticks)))
		c.release(nil)
		if c.startPending {
			c.startPending = false
			c.play()
		}

	case stepFired:
		if m.gen != c.gen || c.state != Playing || c.timer == nil {
			return
		}
		c.timer = nil
		c.step()
	}
}

// fetch discards the current sequence and starts a new fetch generation.
func (c *Controller) fetch() {
	c.stopTimer()
	c.release(ErrSuperseded)
	c.gen++
	c.state = Loading
	c.ticks = nil
	c.index = 0
	c.lastErr = ""

	gen, gameID, playID := c.gen, c.gameID, c.playID
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.FetchTimeout)
		defer cancel()
		ticks, err := c.src.Ticks(ctx, gameID, playID)
		c.post(fetched{gen: gen, ticks: ticks, err: err})
	}()
}

func (c *Controller) play() {
	c.state = Playing
	c.step()
}

// step applies the tick at index and schedules the next one. After the last
// tick the controller stops on it and schedules nothing.
func (c *Controller) step() {
	if c.index < len(c.ticks) {
		res := c.sink.Apply(c.ticks[c.index])
		if res.Reset != entity.ResetNone {
			c.log.Debug("entities reset", zap.String("reason", string(res.Reset)), zap.Int("index", c.index))
		}
		c.index++
	}
	if c.index >= len(c.ticks) {
		c.state = Stopped
		c.log.Info("replay finished", zap.Int("ticks", len(c.ticks)))
		return
	}
	c.schedule()
}

func (c *Controller) schedule() {
	c.stopTimer()
	gen := c.gen
	c.timer = time.AfterFunc(c.cfg.Interval, func() { c.post(stepFired{gen: gen}) })
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) release(err error) {
	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}
