package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/gridiron-viewer/internal/hub"
	"github.com/DoyleJ11/gridiron-viewer/internal/reconciler"
	"github.com/DoyleJ11/gridiron-viewer/internal/replay"
	"github.com/DoyleJ11/gridiron-viewer/internal/scene"
	"github.com/DoyleJ11/gridiron-viewer/internal/ws"
)

type Deps struct {
	Hub        *hub.Hub
	Reconciler *reconciler.Reconciler
	Replay     *replay.Controller
	Scene      *scene.Scene
	Logger     *zap.Logger

	// LoadTimeout bounds a replay load request. Defaults to 30s.
	LoadTimeout time.Duration
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.LoadTimeout <= 0 {
		d.LoadTimeout = 30 * time.Second
	}
	log := d.Logger.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)

	// Live session
	r.Get("/state", GetState(d.Reconciler))
	r.Get("/state/plays", GetPlayLog(d.Reconciler))
	r.Get("/ws", ws.SnapshotHandler(d.Reconciler, d.Hub, d.Logger))
	r.Post("/play-call", PlayCall(d.Hub))

	r.Route("/games", func(r chi.Router) {
		r.Post("/", CreateGame(d.Hub, log))
		r.Post("/{gameID}/activate", ActivateGame(d.Hub))
		r.Get("/active", GetActive(d.Hub))
		r.Delete("/active", EndGame(d.Hub))
		r.Post("/active/step", GameAction(d.Hub.Step))
		r.Post("/active/pause", GameAction(d.Hub.Pause))
		r.Post("/active/resume", GameAction(d.Hub.Resume))
		r.Patch("/active/settings", UpdateSettings(d.Hub))
	})

	// Replay
	r.Route("/replay", func(r chi.Router) {
		r.Get("/", ReplayStatus(d.Replay))
		r.Post("/load", LoadReplay(d.Replay, d.LoadTimeout))
		r.Post("/start", ReplayAction(d.Replay, (*replay.Controller).Start))
		r.Post("/reset", ReplayAction(d.Replay, (*replay.Controller).Reset))
	})
	r.Get("/scene", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Scene.Snapshot())
	})

	return r
}
