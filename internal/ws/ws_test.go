package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/gridiron-viewer/internal/conn"
	"github.com/DoyleJ11/gridiron-viewer/internal/engine"
	"github.com/DoyleJ11/gridiron-viewer/internal/reconciler"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

// fakeSim plays the simulation server: it sends a garbage frame and a full
// sync on connect, then records everything the client sends.
func fakeSim(t *testing.T) (*httptest.Server, <-chan types.ClientMessage) {
	t.Helper()
	received := make(chan types.ClientMessage, 8)

	r := chi.NewRouter()
	r.Get("/ws/games/{gameID}", func(w http.ResponseWriter, req *http.Request) {
		c, err := websocket.Accept(w, req, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")

		ctx := req.Context()
		_ = c.Write(ctx, websocket.MessageText, []byte("not json"))

		syncFrame, _ := types.Marshal(types.StateSync{
			GameState: &types.GameState{GameID: chi.URLParam(req, "gameID"), Down: 1},
		})
		_ = c.Write(ctx, websocket.MessageText, syncFrame)

		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if m, err := types.ParseClientMessage(data); err == nil {
				received <- m
			}
		}
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, received
}

func TestDialer_ManagerReconcilerEndToEnd(t *testing.T) {
	srv, received := fakeSim(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zaptest.NewLogger(t)
	rec := reconciler.New(ctx, reconciler.Config{Logger: logger})
	mgr := conn.NewManager(ctx, conn.Config{
		URL:               wsURL(srv, "/ws/games/g42"),
		ReconnectAttempts: 1,
		ReconnectDelay:    10 * time.Millisecond,
		Logger:            logger,
	}, Dialer{}, rec)
	defer mgr.Close()

	rec.Inbox() <- reconciler.BindSender{Sender: mgr}
	mgr.Connect()

	select {
	case m := <-received:
		require.Equal(t, types.RequestSync{}, m)
	case <-time.After(2 * time.Second):
		t.Fatalf("server never saw request_sync")
	}

	require.Eventually(t, func() bool {
		v, ok := rec.State(ctx)
		return ok && v.HasState && v.State.GameID == "g42"
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, conn.Connected, mgr.Status().State)
}

type fakeCommander struct {
	mu    sync.Mutex
	calls []types.PlayCall
	sent  chan types.ClientMessage
}

func (f *fakeCommander) PlayCall(ctx context.Context, call types.PlayCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return engine.ErrNotAwaitingInput
}

func (f *fakeCommander) Send(m types.ClientMessage) { f.sent <- m }

func TestSnapshotHandler_StreamsAndForwards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zaptest.NewLogger(t)
	rec := reconciler.New(ctx, reconciler.Config{Logger: logger})
	cmd := &fakeCommander{sent: make(chan types.ClientMessage, 4)}

	srv := httptest.NewServer(SnapshotHandler(rec, cmd, logger))
	defer srv.Close()

	c, _, err := websocket.Dial(ctx, wsURL(srv, "/"), nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	readFrame := func() map[string]json.RawMessage {
		rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
		defer rcancel()
		_, data, err := c.Read(rctx)
		require.NoError(t, err)
		var f map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	}

	first := readFrame()
	require.JSONEq(t, `"snapshot"`, string(first["type"]))

	rec.HandleMessage(types.StateSync{GameState: &types.GameState{GameID: "g1", Down: 2}})
	second := readFrame()
	var snap reconciler.Snapshot
	require.NoError(t, json.Unmarshal(second["data"], &snap))
	require.True(t, snap.HasState)
	require.Equal(t, 2, snap.State.Down)

	pause, _ := types.Marshal(types.Pause{})
	require.NoError(t, c.Write(ctx, websocket.MessageText, pause))
	select {
	case m := <-cmd.sent:
		require.Equal(t, types.Pause{}, m)
	case <-time.After(2 * time.Second):
		t.Fatalf("pause not forwarded")
	}

	call, _ := types.Marshal(types.PlayCall{PlayType: engine.PlayRun})
	require.NoError(t, c.Write(ctx, websocket.MessageText, call))
	errFrame := readFrame()
	require.JSONEq(t, `"error"`, string(errFrame["type"]))
}

func TestSnapshotHandler_ReconcilerStoppedClosesClient(t *testing.T) {
	logger := zaptest.NewLogger(t)
	recCtx, stop := context.WithCancel(context.Background())
	rec := reconciler.New(recCtx, reconciler.Config{Logger: logger})
	stop()
	<-rec.Done()

	cmd := &fakeCommander{sent: make(chan types.ClientMessage, 4)}
	handler := SnapshotHandler(rec, cmd, logger)
	returned := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(returned)
		handler(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, wsURL(srv, "/"), nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusTryAgainLater, websocket.CloseStatus(err))

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not return after the reconciler stopped")
	}
}
