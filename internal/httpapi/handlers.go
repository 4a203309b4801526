package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/gridiron-viewer/internal/engine"
	"github.com/DoyleJ11/gridiron-viewer/internal/hub"
	"github.com/DoyleJ11/gridiron-viewer/internal/reconciler"
	"github.com/DoyleJ11/gridiron-viewer/internal/replay"
	"github.com/DoyleJ11/gridiron-viewer/internal/simapi"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

const maxBody = 1 << 16

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var apiErr *simapi.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.IsNotFound() {
			return http.StatusNotFound
		}
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	case errors.Is(err, hub.ErrNoActiveGame),
		errors.Is(err, replay.ErrNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotAwaitingInput):
		return http.StatusConflict
	case errors.Is(err, engine.ErrIllegalPlayCall):
		return http.StatusUnprocessableEntity
	case errors.Is(err, reconciler.ErrNoSender),
		errors.Is(err, hub.ErrHubStopped),
		errors.Is(err, replay.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func GetState(rec *reconciler.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := rec.State(r.Context())
		if !ok {
			writeError(w, http.StatusServiceUnavailable, errors.New("reconciler stopped"))
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func GetPlayLog(rec *reconciler.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := rec.State(r.Context())
		if !ok {
			writeError(w, http.StatusServiceUnavailable, errors.New("reconciler stopped"))
			return
		}
		log := v.PlayLog
		if log == nil {
			log = []engine.PlayLogEntry{}
		}
		writeJSON(w, http.StatusOK, log)
	}
}

func CreateGame(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req simapi.CreateGameRequest
		if !decode(w, r, &req) {
			return
		}
		snap, err := h.CreateGame(r.Context(), req)
		if err != nil {
			logger.Warn("create game failed", zap.Error(err))
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, snap)
	}
}

func ActivateGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Activate(r.Context(), chi.URLParam(r, "gameID")); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		a, _ := h.Active(r.Context())
		writeJSON(w, http.StatusOK, a)
	}
}

func GetActive(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok := h.Active(r.Context())
		if !ok {
			writeError(w, http.StatusNotFound, hub.ErrNoActiveGame)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func EndGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.End(r.Context()); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GameAction wraps a REST mutation of the active game.
func GameAction(call func(ctx context.Context) (types.GameSnapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := call(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func UpdateSettings(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s simapi.Settings
		if !decode(w, r, &s) {
			return
		}
		GameAction(func(ctx context.Context) (types.GameSnapshot, error) {
			return h.UpdateSettings(ctx, s)
		})(w, r)
	}
}

func PlayCall(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var call types.PlayCall
		if !decode(w, r, &call) {
			return
		}
		if call.PlayType == "" {
			writeError(w, http.StatusBadRequest, errors.New("play_type is required"))
			return
		}
		if err := h.PlayCall(r.Context(), call); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

type loadRequest struct {
	GameID string `json:"game_id"`
	PlayID string `json:"play_id"`
}

func LoadReplay(c *replay.Controller, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loadRequest
		if !decode(w, r, &req) {
			return
		}
		if req.GameID == "" || req.PlayID == "" {
			writeError(w, http.StatusBadRequest, errors.New("game_id and play_id are required"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := c.Load(ctx, req.GameID, req.PlayID); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, c.Status())
	}
}

// ReplayAction wraps Start and Reset.
func ReplayAction(c *replay.Controller, call func(*replay.Controller, context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := call(c, r.Context()); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, c.Status())
	}
}

func ReplayStatus(c *replay.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Status())
	}
}
