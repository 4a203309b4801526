package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/gridiron-viewer/internal/conn"
	"github.com/DoyleJ11/gridiron-viewer/internal/reconciler"
	"github.com/DoyleJ11/gridiron-viewer/internal/simapi"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

type idleTransport struct {
	closed chan struct{}
	once   sync.Once
}

func (t *idleTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-t.closed:
		return nil, conn.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *idleTransport) Write(context.Context, []byte) error { return nil }

func (t *idleTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

type recordingDialer struct {
	mu    sync.Mutex
	urls  []string
	conns []*idleTransport
}

func (d *recordingDialer) Dial(ctx context.Context, url string) (conn.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &idleTransport{closed: make(chan struct{})}
	d.urls = append(d.urls, url)
	d.conns = append(d.conns, t)
	return t, nil
}

func (d *recordingDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

type fakeREST struct {
	stepErr error
}

func snap(id string, down int) types.GameSnapshot {
	return types.GameSnapshot{GameState: &types.GameState{GameID: id, Down: down}}
}

func (f *fakeREST) CreateGame(ctx context.Context, req simapi.CreateGameRequest) (types.GameSnapshot, error) {
	return snap("new-game", 1), nil
}

func (f *fakeREST) Step(ctx context.Context, id string) (types.GameSnapshot, error) {
	if f.stepErr != nil {
		return types.GameSnapshot{}, f.stepErr
	}
	return snap(id, 2), nil
}

func (f *fakeREST) Pause(ctx context.Context, id string) (types.GameSnapshot, error) {
	return snap(id, 3), nil
}

func (f *fakeREST) Resume(ctx context.Context, id string) (types.GameSnapshot, error) {
	return snap(id, 4), nil
}

func (f *fakeREST) UpdateSettings(ctx context.Context, id string, s simapi.Settings) (types.GameSnapshot, error) {
	return snap(id, 5), nil
}

func (d *recordingDialer) conn(i int) *idleTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func newTestHub(t *testing.T, api REST) (*Hub, *reconciler.Reconciler, *recordingDialer) {
	t.Helper()
	return newTestHubAttempts(t, api, 1)
}

func newTestHubAttempts(t *testing.T, api REST, attempts int) (*Hub, *reconciler.Reconciler, *recordingDialer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zaptest.NewLogger(t)
	rec := reconciler.New(ctx, reconciler.Config{Logger: logger})
	d := &recordingDialer{}
	h := NewHub(ctx, Config{
		WSURL:  "ws://sim.test/ws/games/{id}",
		Conn:   conn.Config{ReconnectAttempts: attempts, ReconnectDelay: 5 * time.Millisecond},
		Dialer: d,
		Logger: logger,
	}, rec, api)
	t.Cleanup(func() { _ = h.Shutdown() })
	return h, rec, d
}

func state(t *testing.T, rec *reconciler.Reconciler) reconciler.View {
	t.Helper()
	v, ok := rec.State(context.Background())
	require.True(t, ok)
	return v
}

func TestHub_ActivateSameGameOpensOneChannel(t *testing.T) {
	h, _, d := newTestHub(t, &fakeREST{})
	ctx := context.Background()

	require.NoError(t, h.Activate(ctx, "g1"))
	require.NoError(t, h.Activate(ctx, "g1"))

	require.Eventually(t, func() bool {
		a, ok := h.Active(ctx)
		return ok && a.Conn.State == conn.Connected
	}, time.Second, 2*time.Millisecond)

	a, _ := h.Active(ctx)
	assert.Equal(t, "g1", a.GameID)
	assert.Equal(t, []string{"ws://sim.test/ws/games/g1"}, d.dialed())
}

func TestHub_ActivateSameGameAfterCloseReconnects(t *testing.T) {
	h, rec, d := newTestHubAttempts(t, &fakeREST{}, 0)
	ctx := context.Background()

	connected := func(dials int) func() bool {
		return func() bool {
			a, ok := h.Active(ctx)
			return ok && a.Conn.State == conn.Connected && len(d.dialed()) == dials
		}
	}

	require.NoError(t, h.Activate(ctx, "g1"))
	require.Eventually(t, connected(1), time.Second, 2*time.Millisecond)

	rec.HandleMessage(types.StateSync{GameState: &types.GameState{GameID: "g1", Down: 2}})
	require.Eventually(t, func() bool { return state(t, rec).HasState }, time.Second, time.Millisecond)

	require.NoError(t, d.conn(0).Close())
	require.Eventually(t, func() bool {
		a, ok := h.Active(ctx)
		return ok && a.Conn.Terminal
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, h.Activate(ctx, "g1"))
	require.Eventually(t, connected(2), time.Second, 2*time.Millisecond)

	v := state(t, rec)
	assert.True(t, v.HasState)
	assert.Equal(t, "g1", v.State.GameID)
	assert.Equal(t, 2, v.State.Down)
}

func TestHub_SwitchingGamesClearsSession(t *testing.T) {
	h, rec, d := newTestHub(t, &fakeREST{})
	ctx := context.Background()

	require.NoError(t, h.Activate(ctx, "g1"))
	rec.HandleMessage(types.StateSync{GameState: &types.GameState{GameID: "g1", Down: 3}})
	require.Eventually(t, func() bool { return state(t, rec).HasState }, time.Second, time.Millisecond)

	require.NoError(t, h.Activate(ctx, "g2"))

	assert.False(t, state(t, rec).HasState)
	require.Eventually(t, func() bool { return len(d.dialed()) == 2 }, time.Second, time.Millisecond)
	select {
	case <-d.conns[0].closed:
	case <-time.After(time.Second):
		t.Fatalf("old channel left open")
	}
}

func TestHub_CreateGameActivatesAndSeeds(t *testing.T) {
	h, rec, _ := newTestHub(t, &fakeREST{})
	ctx := context.Background()

	got, err := h.CreateGame(ctx, simapi.CreateGameRequest{HomeTeamID: "h", AwayTeamID: "a"})
	require.NoError(t, err)
	assert.Equal(t, "new-game", got.GameState.GameID)

	a, ok := h.Active(ctx)
	require.True(t, ok)
	assert.Equal(t, "new-game", a.GameID)

	require.Eventually(t, func() bool {
		v := state(t, rec)
		return v.HasState && v.State.GameID == "new-game"
	}, time.Second, time.Millisecond)
}

func TestHub_MutationsNeedActiveGame(t *testing.T) {
	h, _, _ := newTestHub(t, &fakeREST{})
	_, err := h.Step(context.Background())
	require.ErrorIs(t, err, ErrNoActiveGame)
}

func TestHub_RESTResultsRouteToReconciler(t *testing.T) {
	api := &fakeREST{}
	h, rec, _ := newTestHub(t, api)
	ctx := context.Background()
	require.NoError(t, h.Activate(ctx, "g1"))

	tests := []struct {
		name string
		call func() (types.GameSnapshot, error)
		down int
	}{
		{"step", func() (types.GameSnapshot, error) { return h.Step(ctx) }, 2},
		{"pause", func() (types.GameSnapshot, error) { return h.Pause(ctx) }, 3},
		{"resume", func() (types.GameSnapshot, error) { return h.Resume(ctx) }, 4},
		{"settings", func() (types.GameSnapshot, error) { return h.UpdateSettings(ctx, simapi.Settings{}) }, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call()
			require.NoError(t, err)
			require.Eventually(t, func() bool {
				v := state(t, rec)
				return v.HasState && v.State.Down == tt.down
			}, time.Second, time.Millisecond)
		})
	}

	api.stepErr = errors.New("server exploded")
	_, err := h.Step(ctx)
	require.Error(t, err)
	require.Eventually(t, func() bool { return state(t, rec).Notice != "" }, time.Second, time.Millisecond)

	v := state(t, rec)
	assert.Contains(t, v.Notice, "server exploded")
	assert.Equal(t, 5, v.State.Down)
}

func TestHub_EndClearsAndForgets(t *testing.T) {
	h, rec, d := newTestHub(t, &fakeREST{})
	ctx := context.Background()

	require.NoError(t, h.Activate(ctx, "g1"))
	rec.HandleMessage(types.StateSync{GameState: &types.GameState{GameID: "g1"}})
	require.NoError(t, h.End(ctx))

	_, ok := h.Active(ctx)
	assert.False(t, ok)
	assert.False(t, state(t, rec).HasState)
	require.Eventually(t, func() bool { return len(d.dialed()) == 1 }, time.Second, time.Millisecond)

	// nothing reconnects after end
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, d.dialed(), 1)
}

func TestGameURL(t *testing.T) {
	assert.Equal(t, "ws://x/ws/games/a%2Fb", GameURL("ws://x/ws/games/{id}", "a/b"))
}
