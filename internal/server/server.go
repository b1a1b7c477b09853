package server

import (
	"net/http"
	"strings"

	"inkshelf/internal/app"
	"inkshelf/internal/util"
	"inkshelf/pkg/domain"
)

const (
	globalLimitMessage = "Too many requests from this IP, please try again later."
	authLimitMessage   = "Too many login attempts, please try again later."
)

// Limiter is the per-key request quota check.
type Limiter interface {
	Allow(key string) bool
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                  *app.App
	GlobalLimiter        Limiter
	AuthLimiter          Limiter
	ClientOrigin         string
	TrustedProxies       *util.TrustedProxies
	MaxUploadBytes       int64
	MaxProfileImageBytes int64
}

// Server exposes the HTTP API.
type Server struct {
	app                  *app.App
	globalLimiter        Limiter
	authLimiter          Limiter
	clientOrigin         string
	trustedProxies       *util.TrustedProxies
	maxUploadBytes       int64
	maxProfileImageBytes int64
	mux                  *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	maxProfileImageBytes := cfg.MaxProfileImageBytes
	if maxProfileImageBytes <= 0 {
		maxProfileImageBytes = 5 * 1024 * 1024
	}
	s := &Server{
		app:                  cfg.App,
		globalLimiter:        cfg.GlobalLimiter,
		authLimiter:          cfg.AuthLimiter,
		clientOrigin:         cfg.ClientOrigin,
		trustedProxies:       cfg.TrustedProxies,
		maxUploadBytes:       maxUploadBytes,
		maxProfileImageBytes: maxProfileImageBytes,
		mux:                  http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = s.withGlobalLimit(h)
	h = util.WithCORS(s.clientOrigin, h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog(s.trustedProxies, h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.Handle("/api/auth/register", s.withAuthLimit(http.HandlerFunc(s.handleRegister)))
	s.mux.Handle("/api/auth/login", s.withAuthLimit(http.HandlerFunc(s.handleLogin)))
	s.mux.Handle("/api/auth/profile", s.requireAuth(s.handleProfile))
	s.mux.Handle("/api/auth/change-password", s.requireAuth(s.handleChangePassword))
	s.mux.Handle("/api/auth/upload-profile-image", s.requireAuth(s.handleUploadProfileImage))
	s.mux.Handle("/api/auth/profile-image", s.requireAuth(s.handleDeleteProfileImage))

	// books
	s.mux.Handle("/api/books", s.optionalAuth(s.handleBooks))
	s.mux.Handle("/api/books/stats", s.requireRole(s.handleStats, domain.RoleAdmin, domain.RoleSuperAdmin))
	s.mux.Handle("/api/books/", s.optionalAuth(s.handleBookByID))

	// feedback
	s.mux.HandleFunc("/api/feedback", s.handleFeedback)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) clientKey(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

func (s *Server) withGlobalLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.globalLimiter != nil && !s.globalLimiter.Allow(s.clientKey(r)) {
			writeFail(w, http.StatusTooManyRequests, globalLimitMessage, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuthLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authLimiter != nil && !s.authLimiter.Allow(s.clientKey(r)) {
			writeFail(w, http.StatusTooManyRequests, authLimitMessage, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type adminHandler func(http.ResponseWriter, *http.Request, domain.Admin)

// optionalAuthHandler receives nil when the caller is anonymous.
type optionalAuthHandler func(http.ResponseWriter, *http.Request, *domain.Admin)

func (s *Server) requireAuth(next adminHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := bearerToken(r)
		if !ok {
			writeFail(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		admin, ok := s.app.Authenticate(bearer)
		if !ok {
			writeFail(w, http.StatusUnauthorized, "Invalid or expired token", nil)
			return
		}
		next(w, r, admin)
	})
}

// optionalAuth never rejects; an invalid token just means anonymous.
func (s *Server) optionalAuth(next optionalAuthHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer, ok := bearerToken(r); ok {
			if admin, authed := s.app.Authenticate(bearer); authed {
				next(w, r, &admin)
				return
			}
		}
		next(w, r, nil)
	})
}

func (s *Server) requireRole(next adminHandler, roles ...domain.AdminRole) http.Handler {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request, admin domain.Admin) {
		for _, role := range roles {
			if admin.Role == role {
				next(w, r, admin)
				return
			}
		}
		writeFail(w, http.StatusForbidden, "Insufficient permissions", nil)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if bearer == "" {
		return "", false
	}
	return bearer, true
}
