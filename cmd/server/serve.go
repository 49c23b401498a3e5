package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"hls-live/internal/api"
	"hls-live/internal/ingest"
	"hls-live/internal/platform/config"
	"hls-live/internal/platform/logger"
	"hls-live/internal/platform/metrics"
	"hls-live/internal/stream"
	"hls-live/internal/transcoder"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, hook and HLS servers",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	log := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.StreamKey)
	slog.SetDefault(log)

	if err := os.MkdirAll(filepath.Join(cfg.HLSPath, "live"), 0o755); err != nil {
		return fmt.Errorf("create HLS directory: %w", err)
	}

	met := metrics.New()
	ctrl := newController(cfg, log, met)

	info := api.Info{
		Name:       appName,
		Version:    version,
		StreamKey:  cfg.StreamKey,
		PublicHost: cfg.PublicHost,
		RTMPPort:   cfg.RTMPPort,
		HTTPPort:   cfg.HTTPPort,
		APIPort:    cfg.Port,
	}
	middlewares := []func(http.Handler) http.Handler{
		logger.RequestLogger(log),
		metrics.RequestMiddleware(met),
	}
	router := api.NewRouter(api.NewHandler(ctrl, info, log), api.RouterOptions{
		CORSOrigin:  cfg.CORSOrigin,
		RateLimit:   cfg.RateLimit,
		Middlewares: middlewares,
	})
	router.Get(metrics.Path, met.Handler(func() {
		snap := ctrl.Snapshot()
		met.SetLive(snap.IsLive)
		met.SetViewers(snap.Viewers)
		met.SetActiveSessions(len(snap.Sessions))
	}).ServeHTTP)
	router.Mount("/hooks", ingest.NewHookHandler(ctrl, log, met).Routes())

	apiSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	mediaSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           logger.RequestLogger(log)(api.NewMediaRouter(cfg.HLSPath)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{apiSrv, mediaSrv} {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	log.Info("server starting",
		slog.String("version", version),
		slog.Int("api_port", cfg.Port),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("rtmp_url", info.RTMPURL()),
		slog.String("hls_path", cfg.HLSPath),
		slog.Bool("kick_enabled", cfg.IngestAPIURL != ""),
	)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := errors.Join(apiSrv.Shutdown(sctx), mediaSrv.Shutdown(sctx))
		if cerr := ctrl.Shutdown(sctx); cerr != nil {
			err = errors.Join(err, fmt.Errorf("stop transcoder: %w", cerr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", slog.String("error", err.Error()))
		return err
	}
	log.Info("server stopped")
	return nil
}

func newController(cfg config.Config, log *slog.Logger, met *metrics.Metrics) *stream.Controller {
	var kicker stream.Kicker
	if cfg.IngestAPIURL != "" {
		kicker = ingest.NewHTTPKicker(cfg.IngestAPIURL, cfg.IngestAPIToken, nil,
			log.With(slog.String("component", "kicker")))
	}

	spawner := transcoder.NewSpawner(cfg.FFmpegPath, cfg.FFmpegKillTimeout,
		log.With(slog.String("component", "transcoder")))

	return stream.New(stream.Config{
		StreamKey:      cfg.StreamKey,
		IngestHost:     cfg.RTMPHost,
		IngestPort:     cfg.RTMPPort,
		OutputRoot:     cfg.HLSPath,
		SegmentSeconds: cfg.SegmentSeconds,
		ListSize:       cfg.ListSize,
		AudioBitrate:   cfg.AudioBitrate,
	}, stream.SpawnerLauncher(spawner), kicker, log, met)
}
