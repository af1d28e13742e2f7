package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authapi "parley/cmd/internal/auth/api"
	"parley/cmd/internal/chat"
	"parley/cmd/internal/profile"
	"parley/cmd/internal/realtime"
)

type routes struct {
	auth    *authapi.Handler
	chat    *chat.Handler
	profile *profile.Handler
	ws      *realtime.Gateway
	metrics prometheus.Gatherer
	checks  []readinessCheck
}

func registerHTTP(mux *http.ServeMux, log Logger, rt routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, c := range rt.checks {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := c.ping(ctx)
			cancel()
			if err != nil {
				log.Info("readyz.not_ready", "dependency", c.name, "err", err)
				http.Error(w, c.name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(rt.metrics, promhttp.HandlerOpts{}))
	}

	rt.auth.Register(mux)
	rt.chat.Register(mux)
	rt.profile.Register(mux)
	mux.Handle("GET /ws", rt.ws)
}
