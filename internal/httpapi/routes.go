package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Routes assembles the HTTP surface: draft lifecycle endpoints plus the
// websocket upgrade handler supplied by the transport layer.
func Routes(api *API, wsHandler http.HandlerFunc, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/healthz", Healthz)
		r.Get("/heroes", api.ListHeroes)

		r.Route("/drafts", func(r chi.Router) {
			r.Post("/", api.CreateDraft)
			r.Get("/{id}", api.GetDraft)
			r.Post("/{id}/stop", api.StopDraft)
		})
	})

	// Websocket upgrades skip the timeout middleware; connections are
	// long-lived.
	r.Get("/ws", wsHandler)

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
