package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"namlong/internal/auth"
	"namlong/internal/blob"
	"namlong/internal/config"
	"namlong/internal/db"
	"namlong/internal/ws"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Database    *db.DB
	Sessions    *db.SessionRepository
	Transcripts *db.TranscriptRepository
	Attachments *db.AttachmentRepository
	Blobs       *blob.Service
	JWT         *auth.JWTService
	Hub         *ws.Hub
}

type Server struct {
	router *chi.Mux
	config *config.Config
	hub    *ws.Hub
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	sessionHandler := NewSessionHandler(deps.Sessions, deps.Transcripts, deps.JWT, cfg.Location())
	uploadHandler := NewUploadHandler(deps.Attachments, deps.Blobs, cfg.Server.BaseURL, uploadRequestLimit(cfg))
	mediaHandler := NewMediaHandler(deps.Attachments, deps.Blobs)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.JWT, deps.Sessions, cfg.Server.AllowedOrigins)
	healthHandler := NewHealthHandler(deps.Database, deps.Hub)

	sessionMiddleware := NewSessionMiddleware(deps.JWT, deps.Sessions)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/chat/sessions", func(r chi.Router) {
			r.With(maxBodySizeMiddleware(16<<10), rateLimit(20, time.Minute)).Post("/", sessionHandler.Create)
			r.With(sessionMiddleware.RequireSession).Get("/me/transcript", sessionHandler.Transcript)
		})

		r.Route("/uploads", func(r chi.Router) {
			r.Use(sessionMiddleware.RequireSession)
			r.Use(rateLimit(30, time.Minute))
			r.Post("/chat", uploadHandler.UploadChatImages)
		})
	})

	r.Route("/media/{blobID}", func(r chi.Router) {
		r.Get("/", mediaHandler.GetBlob)
		r.Get("/preview", mediaHandler.GetBlobPreview)
	})

	r.With(rateLimit(10, time.Minute)).Get("/ws", wsHandler.ServeWS)

	return &Server{
		router: r,
		config: cfg,
		hub:    deps.Hub,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

// uploadRequestLimit leaves room for a full selection plus multipart framing.
func uploadRequestLimit(cfg *config.Config) int64 {
	return cfg.Storage.UploadMaxBytes.Int64()*4 + 1<<20
}

func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin != "" {
				if !isOriginAllowed(origin, allowedOrigins) {
					forbidden(w, "Origin not allowed")
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"component", "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
