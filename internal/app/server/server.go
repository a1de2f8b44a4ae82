package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/skyatlas/hipscache/internal/asset"
	"github.com/skyatlas/hipscache/internal/core/config"
	"github.com/skyatlas/hipscache/internal/engine"
	"github.com/skyatlas/hipscache/internal/executor"
	"github.com/skyatlas/hipscache/internal/health"
	"github.com/skyatlas/hipscache/internal/logger"
	imw "github.com/skyatlas/hipscache/internal/middleware"
	"github.com/skyatlas/hipscache/internal/survey"
	"github.com/skyatlas/hipscache/internal/tile"
	"github.com/skyatlas/hipscache/internal/worker"
)

// Run wires the fetcher, worker pool, engine and executor together,
// then serves HTTP until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, zl *zerolog.Logger) error {
	slogger := logger.NewSlog(zl)

	// shared http client for upstream tile servers
	httpTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	httpClient := &http.Client{Transport: httpTransport, Timeout: cfg.FetchTimeout}

	fetcher := asset.NewHTTP(slogger, cfg.FetchDoneSize, cfg.FetchDoneTTL,
		asset.WithClient(httpClient),
		asset.WithUserAgent(cfg.UserAgent))
	pool := worker.NewPool(cfg.Workers)
	eng := engine.New(slogger, fetcher,
		engine.WithCacheBudget(cfg.CacheBudget),
		engine.WithPool(pool),
		engine.WithUploader(tile.MemUploader{}))

	exec := executor.New(slogger, eng, cfg.FrameInterval)
	for _, u := range cfg.SurveyURLs {
		var opts []survey.Option
		if label := cfg.SurveyLabels[u]; label != "" {
			opts = append(opts, survey.WithLabel(label))
		}
		s := survey.New(slogger, u, 0, opts...)
		id := exec.AddSurvey(s)
		zl.Info().Str("id", id).Str("url", u).Msg("survey registered")
	}

	r := chi.NewRouter()
	r.Use(imw.Recover(zl))
	r.Use(imw.Logging(zl))
	r.Use(imw.Metrics())
	r.Use(imw.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(exec.Ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/surveys", listSurveys(exec))
	r.Get("/tiles/{survey}/{order}/{pix}", serveTile(zl, exec))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	execErr := make(chan error, 1)
	go func() { execErr <- exec.Run(ctx) }()

	errCh := make(chan error, 1)
	go func() {
		zl.Info().Str("addr", cfg.Addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-execErr
		return nil
	case err := <-errCh:
		return err
	}
}
