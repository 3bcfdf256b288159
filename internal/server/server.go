// Package server exposes the Clarity HTTP API: credential minting,
// transcript logging, local interview history, summaries and a websocket
// event feed. It also hosts the intermediary logging service handler.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

// Deps wires the API. Nil Minter, Sink, Store or Summaries make the
// corresponding routes answer with a configuration error.
type Deps struct {
	Minter    CredentialMinter
	Sink      transcript.Sink
	SinkName  string
	Store     InterviewStore
	Summaries SummaryRequester
	Hub       *Hub
	Warnings  func() []string

	Service string
	Version string
	Metrics bool
}

func Handler(d Deps) http.Handler {
	if d.Hub == nil {
		d.Hub = NewHub()
	}
	if d.SinkName == "" {
		d.SinkName = "none"
	}

	mux := http.NewServeMux()
	registerWSRoute(mux, d.Hub)
	registerAPIRoutes(mux, d)
	mux.Handle("GET /healthz", observability.HealthCheckHandler(d.Service, d.Version))
	if d.Metrics {
		mux.Handle("GET /metrics", observability.MetricsHandler())
	}

	return observability.AccessLog(mux)
}

// Serve runs h on addr until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	log := observability.Component("server")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
