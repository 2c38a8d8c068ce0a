package handlers

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds the parameters of the HTTP routing layer.
type RouterConfig struct {
	// StaticFS is served under /static/.
	StaticFS fs.FS
	// AllowedOrigins enables CORS for the listed origins. Empty disables CORS handling.
	AllowedOrigins []string
}

// Routes builds the HTTP handler serving the web interface and its JSON endpoints.
func (m Main) Routes(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(m.logger))
	r.Use(middleware.Recoverer)

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "HX-Request", "HX-Target", "HX-Current-URL"},
			MaxAge:         300,
		}))
	}

	if cfg.StaticFS != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(cfg.StaticFS))))
	}

	r.Get("/", m.HandleHome)
	r.Get("/healthz", m.HandleHealth)

	r.Post("/chats", m.HandleChats)
	r.Get("/messages/{messageID}", m.HandleMessage)
	r.Post("/sessions/new", m.HandleNewSession)
	r.Post("/templates/{index}", m.HandleTemplate)
	r.Get("/sse/messages", m.HandleSSE)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", m.HandleSession)
		r.Get("/diagnostics", m.HandleDiagnostics)
	})

	return r
}

// requestLogger logs every request with its status, duration and chi request id.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("Request",
				slog.String("requestID", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
