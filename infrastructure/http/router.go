package http

import (
	"chat-relay/auth"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the REST routes, the subscription socket, health and metrics.
func NewRouter(log *slog.Logger, h *Handler, socket *SocketHandler,
	tokens *auth.TokenManager, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	// The socket authenticates inside the session so that failures reach the client as close frames
	r.Get("/ws/rooms/{roomID}", socket.ServeHTTP)

	r.Group(func(pr chi.Router) {
		pr.Use(tokens.Middleware)
		pr.Use(middleware.Timeout(30 * time.Second))

		pr.Get("/me", h.Me)
		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", h.GetOrCreateRoom)
			rm.Get("/", h.Rooms)
			rm.Route("/{roomID}", func(rr chi.Router) {
				rr.Get("/messages", h.RoomMessages)
				rr.Post("/messages", h.StoreMessage)
				rr.Get("/search", h.Search)
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
