package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/gridiron-viewer/internal/conn"
	"github.com/DoyleJ11/gridiron-viewer/internal/entity"
	"github.com/DoyleJ11/gridiron-viewer/internal/hub"
	"github.com/DoyleJ11/gridiron-viewer/internal/projection"
	"github.com/DoyleJ11/gridiron-viewer/internal/reconciler"
	"github.com/DoyleJ11/gridiron-viewer/internal/replay"
	"github.com/DoyleJ11/gridiron-viewer/internal/scene"
	"github.com/DoyleJ11/gridiron-viewer/internal/simapi"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

type quietTransport struct {
	closed chan struct{}
	once   sync.Once
}

func (t *quietTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-t.closed:
		return nil, conn.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (t *quietTransport) Write(context.Context, []byte) error { return nil }
func (t *quietTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

type quietDialer struct{}

func (quietDialer) Dial(context.Context, string) (conn.Transport, error) {
	return &quietTransport{closed: make(chan struct{})}, nil
}

type stubREST struct{}

func (stubREST) CreateGame(_ context.Context, req simapi.CreateGameRequest) (types.GameSnapshot, error) {
	return types.GameSnapshot{
		GameState: &types.GameState{GameID: "g9", Down: 1},
		HomeTeam:  types.Team{ID: req.HomeTeamID},
		AwayTeam:  types.Team{ID: req.AwayTeamID},
	}, nil
}
func (stubREST) Step(_ context.Context, id string) (types.GameSnapshot, error) {
	return types.GameSnapshot{GameState: &types.GameState{GameID: id, Down: 2}}, nil
}
func (stubREST) Pause(_ context.Context, id string) (types.GameSnapshot, error) {
	return types.GameSnapshot{GameState: &types.GameState{GameID: id, IsPaused: true}}, nil
}
func (stubREST) Resume(_ context.Context, id string) (types.GameSnapshot, error) {
	return types.GameSnapshot{GameState: &types.GameState{GameID: id}}, nil
}
func (stubREST) UpdateSettings(_ context.Context, id string, _ simapi.Settings) (types.GameSnapshot, error) {
	return types.GameSnapshot{GameState: &types.GameState{GameID: id}}, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := zaptest.NewLogger(t)

	rec := reconciler.New(ctx, reconciler.Config{Logger: logger})
	h := hub.NewHub(ctx, hub.Config{
		WSURL:  "ws://sim.test/ws/games/{id}",
		Conn:   conn.Config{ReconnectAttempts: 1},
		Dialer: quietDialer{},
		Logger: logger,
	}, rec, stubREST{})
	t.Cleanup(func() { _ = h.Shutdown() })

	sc := scene.New()
	eng := entity.New(sc, projection.New(400, 300, 10), logger)
	ticks := []types.Tick{
		{Index: 0, Quarterback: &types.Player{ID: "qb1"}, Ball: &types.Ball{}},
		{Index: 1, Quarterback: &types.Player{ID: "qb1"}, Receivers: []types.Player{{ID: "WR1"}}},
		{Index: 2, Quarterback: &types.Player{ID: "qb1"}, Receivers: []types.Player{{ID: "WR1", Y: 3}}},
	}
	src := replay.SourceFunc(func(context.Context, string, string) ([]types.Tick, error) { return ticks, nil })
	rp := replay.New(ctx, replay.Config{Interval: time.Millisecond, Logger: logger}, src, eng)
	t.Cleanup(func() { _ = rp.Close() })

	srv := httptest.NewServer(SetupRoutes(Deps{
		Hub:        h,
		Reconciler: rec,
		Replay:     rp,
		Scene:      sc,
		Logger:     logger,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func TestRoutes_Healthz(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoutes_GameLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/games/active/step", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPost, "/games", simapi.CreateGameRequest{HomeTeamID: "h", AwayTeamID: "a"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = do(t, srv, http.MethodGet, "/games/active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var active struct {
		GameID string `json:"game_id"`
	}
	require.NoError(t, json.Unmarshal(body, &active))
	assert.Equal(t, "g9", active.GameID)

	resp, _ = do(t, srv, http.MethodPost, "/games/active/step", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		_, body := do(t, srv, http.MethodGet, "/state", nil)
		var v reconciler.View
		return json.Unmarshal(body, &v) == nil && v.HasState && v.State.Down == 2
	}, time.Second, 5*time.Millisecond)

	// no prompt outstanding
	resp, _ = do(t, srv, http.MethodPost, "/play-call", types.PlayCall{PlayType: "run"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodDelete, "/games/active", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodGet, "/games/active", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_RejectsBadBodies(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name, method, path string
		body               any
	}{
		{"unknown field", http.MethodPost, "/games", map[string]any{"nope": 1}},
		{"play call without type", http.MethodPost, "/play-call", map[string]any{"run_type": "inside"}},
		{"replay load without ids", http.MethodPost, "/replay/load", map[string]any{"game_id": "g1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRoutes_ReplayToScene(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, http.MethodPost, "/replay/start", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPost, "/replay/load", map[string]string{"game_id": "g1", "play_id": "p1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var loaded struct {
		Length int `json:"length"`
	}
	require.NoError(t, json.Unmarshal(body, &loaded))
	assert.Equal(t, 3, loaded.Length)

	resp, _ = do(t, srv, http.MethodPost, "/replay/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		_, body := do(t, srv, http.MethodGet, "/replay", nil)
		var st struct {
			State string `json:"state"`
			Index int    `json:"index"`
		}
		return json.Unmarshal(body, &st) == nil && st.State == "stopped" && st.Index == 3
	}, time.Second, 5*time.Millisecond)

	_, body = do(t, srv, http.MethodGet, "/scene", nil)
	var view scene.View
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Sprites, 2)
	assert.Equal(t, entity.Quarterback, view.Sprites[0].Category)
	assert.Equal(t, "WR1", view.Sprites[1].ID)
	assert.Equal(t, 270.0, view.Sprites[1].Position.Y)
	assert.Equal(t, 1, view.Destroyed)
}
