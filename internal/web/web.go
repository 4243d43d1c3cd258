// Package web serves the HTTP observability surface: prometheus metrics
// and a health check. It is independent of the game protocol listener.
package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Start launches the HTTP listener on the given port. A port of 0 disables
// the listener entirely.
func Start(logger *logrus.Logger, port int) {
	if port == 0 {
		return
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Infof("serving metrics on %s/metrics", addr)

	go func() {
		if err := http.ListenAndServe(addr, r); err != nil {
			logger.Warnf("metrics server stopped: %s", err)
		}
	}()
}
