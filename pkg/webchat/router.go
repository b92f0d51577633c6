package webchat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterOptions configures the HTTP surface of the service.
type RouterOptions struct {
	Rooms       *RoomManager
	DefaultRoom string
	// Models serves GET /api/models; the route is omitted when nil.
	Models http.Handler
	Logger zerolog.Logger
}

// NewRouter mounts /ws, /api/models, /healthz and /metrics.
func NewRouter(opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestMetrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(opts.Logger))
	r.Use(chimw.Recoverer)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	r.Get("/ws", NewWSHTTPHandler(opts.Rooms, upgrader, opts.DefaultRoom))

	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		if opts.Models != nil {
			r.Method(http.MethodGet, "/api/models", opts.Models)
		}
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}
