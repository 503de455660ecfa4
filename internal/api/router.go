package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"plantstation/internal/auth"
	"plantstation/internal/config"
	"plantstation/internal/db"
	"plantstation/internal/ws"
)

type Server struct {
	router *chi.Mux
	config *config.Config
	hub    *ws.Hub
}

func NewServer(
	cfg *config.Config,
	database *db.DB,
	mailer Mailer,
	hub *ws.Hub,
) (*Server, error) {
	userRepo := db.NewUserRepository(database)
	deviceRepo := db.NewDeviceRepository(database)
	configRepo := db.NewDeviceConfigRepository(database)
	readingRepo := db.NewSensorReadingRepository(database)
	refreshTokenRepo := db.NewRefreshTokenRepository(database)

	tokenService := auth.NewTokenService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	authHandler := NewAuthHandler(
		userRepo,
		refreshTokenRepo,
		tokenService,
		mailer,
		cfg.Auth.ActivationTokenTTL,
		cfg.Auth.ResetTokenTTL,
	)
	userHandler := NewUserHandler(userRepo)
	deviceHandler := NewDeviceHandler(deviceRepo, configRepo, readingRepo)
	deviceAPIHandler := NewDeviceAPIHandler(deviceRepo, configRepo, readingRepo, hub)
	streamHandler := NewStreamHandler(hub, tokenService, deviceRepo)
	healthHandler := NewHealthHandler(database)

	authMiddleware := NewAuthMiddleware(tokenService)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(maxBodySizeMiddleware(1 << 20)) // 1 MB

		r.Route("/auth", func(r chi.Router) {
			r.With(rateLimit(5, time.Minute)).Post("/register", authHandler.Register)
			r.Get("/activate", authHandler.Activate)
			r.With(rateLimit(10, time.Minute)).Post("/login", authHandler.Login)
			r.With(rateLimit(30, time.Minute)).Post("/refresh", authHandler.Refresh)
			r.With(rateLimit(5, time.Minute)).Post("/password-reset/request", authHandler.RequestPasswordReset)
			r.With(rateLimit(5, time.Minute)).Post("/password-reset/confirm", authHandler.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/me", userHandler.GetMe)
			r.Patch("/me", userHandler.UpdateMe)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/", deviceHandler.List)
			r.Post("/", deviceHandler.Create)
			r.Get("/{deviceID}/settings", deviceHandler.GetSettings)
			r.Put("/{deviceID}/settings", deviceHandler.UpdateSettings)
			r.Get("/{deviceID}/readings", deviceHandler.ListReadings)
		})

		// Device-facing endpoints; no session auth, firmware wire format.
		r.Get("/settings", deviceAPIHandler.GetSettings)
		r.With(rateLimit(120, time.Minute)).Post("/readings", deviceAPIHandler.CreateReading)
		r.Get("/readings", deviceAPIHandler.GetReading)
	})

	r.With(rateLimit(10, time.Minute)).Get("/ws/readings", streamHandler.ServeWS)

	return &Server{
		router: r,
		config: cfg,
		hub:    hub,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
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
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
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
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
