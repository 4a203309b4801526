package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/gridiron-viewer/internal/config"
	"github.com/DoyleJ11/gridiron-viewer/internal/conn"
	"github.com/DoyleJ11/gridiron-viewer/internal/entity"
	"github.com/DoyleJ11/gridiron-viewer/internal/httpapi"
	"github.com/DoyleJ11/gridiron-viewer/internal/hub"
	"github.com/DoyleJ11/gridiron-viewer/internal/projection"
	"github.com/DoyleJ11/gridiron-viewer/internal/reconciler"
	"github.com/DoyleJ11/gridiron-viewer/internal/replay"
	"github.com/DoyleJ11/gridiron-viewer/internal/scene"
	"github.com/DoyleJ11/gridiron-viewer/internal/simapi"
	"github.com/DoyleJ11/gridiron-viewer/internal/store"
	"github.com/DoyleJ11/gridiron-viewer/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.LogDev {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := simapi.NewClient(simapi.Config{BaseURL: cfg.SimBaseURL, Logger: logger})
	rec := reconciler.New(ctx, reconciler.Config{Logger: logger})
	h := hub.NewHub(ctx, hub.Config{
		WSURL: cfg.SimWSURL,
		Conn: conn.Config{
			ReconnectAttempts: cfg.ReconnectAttempts,
			ReconnectDelay:    cfg.ReconnectDelay,
			DialTimeout:       cfg.DialTimeout,
			Logger:            logger,
		},
		Dialer: ws.Dialer{},
		Logger: logger,
	}, rec, api)

	var src replay.Source = api
	var archive *store.Store
	if cfg.DatabaseURL != "" {
		archive, err = store.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return multierr.Append(err, h.Shutdown())
		}
		src = replay.CachedSource{Archive: archive, Upstream: api, Logger: logger}
		logger.Info("tick archive enabled")
	}

	sc := scene.New()
	eng := entity.New(sc, projection.New(cfg.FieldOriginX, cfg.FieldOriginY, cfg.FieldScale), logger)
	rp := replay.New(ctx, replay.Config{Interval: cfg.ReplayInterval, Logger: logger}, src, eng)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:        h,
			Reconciler: rec,
			Replay:     rp,
			Scene:      sc,
			Logger:     logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("sim", cfg.SimBaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := multierr.Combine(
			srv.Shutdown(shutdownCtx),
			h.Shutdown(),
			rp.Close(),
		)
		rec.Post(reconciler.Shutdown{})
		if archive != nil {
			err = multierr.Append(err, archive.Close())
		}
		return err
	})
	return g.Wait()
}
