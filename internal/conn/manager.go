// Package conn owns the lifecycle of the real-time channel to the simulation
// server: one connection at a time, a bounded number of fixed-delay
// reconnects, and fire-and-forget sends that are dropped while offline.
//
// Every transition happens on the manager's own goroutine. Callbacks from the
// dialer, the reader and the retry timer are stamped with a generation and
// ignored once a newer connection (or a Disconnect) has superseded them.
package conn

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

// ErrClosed is returned by Transport.Read when the peer closed normally.
var ErrClosed = errors.New("transport closed")

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// Handler receives everything the channel produces, in arrival order.
type Handler interface {
	HandleMessage(types.ServerMessage)
	HandleOpen()
	HandleError(error)
}

type Config struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	Logger            *zap.Logger
}

type Status struct {
	State          State `json:"state"`
	RetriesUsed    int   `json:"retries_used"`
	RetryScheduled bool  `json:"retry_scheduled"`
	Terminal       bool  `json:"terminal"`
	Dials          int   `json:"dials"`
}

type event interface{ isConnEvent() }

type connectReq struct{}
type disconnectReq struct{ done chan struct{} }
type sendReq struct{ msg types.ClientMessage }
type statusReq struct{ reply chan Status }
type dialed struct {
	gen uint64
	t   Transport
	err error
}
type frame struct {
	gen  uint64
	data []byte
}
type transportErr struct {
	gen uint64
	err error
}
type closed struct {
	gen uint64
	err error
}
type retryFired struct{ gen uint64 }

func (connectReq) isConnEvent()    {}
func (disconnectReq) isConnEvent() {}
func (sendReq) isConnEvent()       {}
func (statusReq) isConnEvent()     {}
func (dialed) isConnEvent()        {}
func (frame) isConnEvent()         {}
func (transportErr) isConnEvent()  {}
func (closed) isConnEvent()        {}
func (retryFired) isConnEvent()    {}

type link struct {
	t      Transport
	out    chan []byte
	cancel context.CancelFunc
}

type Manager struct {
	cfg     Config
	dialer  Dialer
	handler Handler
	log     *zap.Logger
	inbox   chan event
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// owned by loop
	state   State
	gen     uint64
	retries int
	budget  int
	timer   *time.Timer
	link    *link
	dials   int
}

func NewManager(parent context.Context, cfg Config, dialer Dialer, handler Handler) *Manager {
	ctx, cancel := context.WithCancel(parent)

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}

	m := &Manager{
		cfg:     cfg,
		dialer:  dialer,
		handler: handler,
		log:     cfg.Logger.Named("conn").With(zap.String("url", cfg.URL)),
		inbox:   make(chan event, 64),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		budget:  cfg.ReconnectAttempts,
	}
	go m.loop()
	return m
}

// Connect is a no-op while a connection is open or being opened.
func (m *Manager) Connect() { m.post(connectReq{}) }

// Disconnect closes the channel and zeroes the retry budget so nothing
// reconnects afterwards. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	done := make(chan struct{})
	if !m.post(disconnectReq{done: done}) {
		return
	}
	select {
	case <-done:
	case <-m.ctx.Done():
	}
}

// Send drops msg unless the channel is open. It never blocks.
func (m *Manager) Send(msg types.ClientMessage) {
	select {
	case m.inbox <- sendReq{msg: msg}:
	default:
		m.log.Warn("manager inbox full, dropping outbound message", zap.String("type", string(msg.Type())))
	}
}

func (m *Manager) Status() Status {
	reply := make(chan Status, 1)
	if !m.post(statusReq{reply: reply}) {
		return Status{State: Disconnected, Terminal: true}
	}
	select {
	case s := <-reply:
		return s
	case <-m.ctx.Done():
		return Status{State: Disconnected, Terminal: true}
	}
}

// Close stops the manager for good and waits for its loop to exit.
func (m *Manager) Close() error {
	m.cancel()
	<-m.done
	return nil
}

func (m *Manager) post(ev event) bool {
	select {
	case m.inbox <- ev:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			m.stopTimer()
			m.dropLink()
			return
		case ev := <-m.inbox:
			m.handle(ev)
		}
	}
}

func (m *Manager) handle(ev event) {
	switch e := ev.(type) {
	case connectReq:
		m.budget = m.cfg.ReconnectAttempts
		if m.state != Disconnected {
			return
		}
		// a fresh connect after the budget ran out starts a new budget
		if m.timer == nil {
			m.retries = 0
		}
		m.stopTimer()
		m.dial()

	case disconnectReq:
		m.budget = 0
		m.stopTimer()
		m.gen++
		m.dropLink()
		if m.state != Disconnected {
			m.log.Info("disconnected by client")
		}
		m.state = Disconnected
		close(e.done)

	case sendReq:
		m.send(e.msg)

	case statusReq:
		e.reply <- Status{
			State:          m.state,
			RetriesUsed:    m.retries,
			RetryScheduled: m.timer != nil,
			Terminal:       m.state == Disconnected && m.timer == nil && m.dials > 0,
			Dials:          m.dials,
		}

	case dialed:
		if e.gen != m.gen || m.state != Connecting {
			if e.t != nil {
				_ = e.t.Close()
			}
			return
		}
		if e.err != nil {
			m.log.Warn("dial failed", zap.Error(e.err))
			m.handler.HandleError(e.err)
			m.onClosed()
			return
		}
		m.retries = 0
		m.state = Connected
		m.link = m.startLink(e.gen, e.t)
		m.log.Info("connected")
		m.handler.HandleOpen()

	case frame:
		if e.gen != m.gen {
			return
		}
		msg, err := types.ParseServerMessage(e.data)
		if err != nil {
			m.log.Warn("discarding malformed frame", zap.Int("bytes", len(e.data)), zap.Error(err))
			return
		}
		m.handler.HandleMessage(msg)

	case transportErr:
		if e.gen != m.gen {
			return
		}
		m.handler.HandleError(e.err)

	case closed:
		if e.gen != m.gen || m.state != Connected {
			return
		}
		m.log.Info("channel closed", zap.Error(e.err))
		m.dropLink()
		m.onClosed()

	case retryFired:
		if e.gen != m.gen || m.state != Disconnected || m.timer == nil {
			return
		}
		m.timer = nil
		m.dial()
	}
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen
	m.state = Connecting
	m.dials++

	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
		defer cancel()
		t, err := m.dialer.Dial(ctx, m.cfg.URL)
		if !m.post(dialed{gen: gen, t: t, err: err}) && t != nil {
			_ = t.Close()
		}
	}()
}

func (m *Manager) onClosed() {
	m.state = Disconnected
	if m.retries >= m.budget {
		m.log.Warn("reconnect budget exhausted", zap.Int("attempts", m.retries))
		return
	}
	m.retries++
	m.schedule()
	m.log.Info("reconnect scheduled",
		zap.Int("attempt", m.retries),
		zap.Int("budget", m.budget),
		zap.Duration("delay", m.cfg.ReconnectDelay))
}

func (m *Manager) schedule() {
	m.stopTimer()
	gen := m.gen
	m.timer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.post(retryFired{gen: gen})
	})
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) startLink(gen uint64, t Transport) *link {
	ctx, cancel := context.WithCancel(m.ctx)
	l := &link{t: t, out: make(chan []byte, 32), cancel: cancel}

	// Reader
	go func() {
		for {
			data, err := t.Read(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, ErrClosed) {
					m.post(transportErr{gen: gen, err: err})
				}
				m.post(closed{gen: gen, err: err})
				return
			}
			m.post(frame{gen: gen, data: data})
		}
	}()

	// Writer
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case b := <-l.out:
				wctx, wcancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
				if err := t.Write(wctx, b); err != nil {
					m.log.Warn("write failed", zap.Error(err))
				}
				wcancel()
			}
		}
	}()

	return l
}

func (m *Manager) dropLink() {
	if m.link == nil {
		return
	}
	m.link.cancel()
	if err := m.link.t.Close(); err != nil {
		m.log.Debug("close transport", zap.Error(err))
	}
	m.link = nil
}

func (m *Manager) send(msg types.ClientMessage) {
	if m.state != Connected || m.link == nil {
		m.log.Debug("not connected, dropping outbound message", zap.String("type", string(msg.Type())))
		return
	}
	b, err := types.Marshal(msg)
	if err != nil {
		m.log.Warn("encode outbound message", zap.Error(err))
		return
	}
	select {
	case m.link.out <- b:
	default:
		m.log.Warn("outbound queue full, dropping message", zap.String("type", string(msg.Type())))
	}
}
