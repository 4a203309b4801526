package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/gridiron-viewer/internal/reconciler"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

// Commander is what a presentational client may ask of the live session.
type Commander interface {
	PlayCall(ctx context.Context, call types.PlayCall) error
	Send(types.ClientMessage)
}

type snapshotFrame struct {
	Type string              `json:"type"`
	Data reconciler.Snapshot `json:"data"`
}

// SnapshotHandler streams reconciler snapshots to one websocket client and
// forwards the client's control messages to cmd.
func SnapshotHandler(rec *reconciler.Reconciler, cmd Commander, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		// Same-origin only; the viewer UI is served from this host.
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan reconciler.Snapshot, 8)
		clientID := uuid.NewString()

		rec.Post(reconciler.Subscribe{ClientID: clientID, Outbox: out})
		defer rec.Post(reconciler.Unsubscribe{ClientID: clientID})

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case <-rec.Done():
					conn.Close(websocket.StatusTryAgainLater, "snapshot stream ended")
					return
				case snap, ok := <-out:
					if !ok {
						// Dropped as a slow reader, or the reconciler stopped.
						conn.Close(websocket.StatusTryAgainLater, "snapshot stream ended")
						return
					}
					payload, err := json.Marshal(snapshotFrame{Type: "snapshot", Data: snap})
					if err != nil {
						log.Warn("marshal snapshot", zap.Error(err))
						continue
					}
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}

			msg, err := types.ParseClientMessage(data)
			if err != nil {
				writeError(r.Context(), conn, err)
				continue
			}

			if call, ok := msg.(types.PlayCall); ok {
				if err := cmd.PlayCall(r.Context(), call); err != nil {
					writeError(r.Context(), conn, err)
				}
				continue
			}
			cmd.Send(msg)
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, err error) {
	code := "bad_request"
	if errors.Is(err, types.ErrUnknownMessage) {
		code = "unknown_type"
	}
	payload, mErr := types.Marshal(types.ServerError{Message: err.Error(), Code: code})
	if mErr != nil {
		return
	}
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
