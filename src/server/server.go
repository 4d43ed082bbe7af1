package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

// FeedStatus exposes per-market subscription counts for the health payload.
type FeedStatus interface {
	SubscribedCount() int
}

// StartServer runs the health endpoint until ctx is cancelled, then shuts the
// listener down gracefully. Blocks for the server's lifetime.
func StartServer(ctx context.Context, port string, spot, futures FeedStatus) {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("\"/\" write error")
		}
	})

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]interface{}{
			"status": "ok",
			"subscriptions": map[string]int{
				"spot":    spot.SubscribedCount(),
				"futures": futures.SubscribedCount(),
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.WithError(err).Error("\"/healthcheck\" write error")
		}
	})

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down health server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
