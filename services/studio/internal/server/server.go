package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chapterquiz/internal/ratelimit"
	"chapterquiz/internal/util"
	"chapterquiz/pkg/domain"
	"chapterquiz/pkg/render"
	"chapterquiz/services/studio/internal/app"
)

const (
	serviceName           = "studio"
	defaultMaxUploadBytes = 20 << 20
	maxJSONBodyBytes      = 1 << 20
)

// Config wires required dependencies for the HTTP server. Limiters are
// optional; a nil limiter disables limiting for that route.
type Config struct {
	App            *app.App
	SignupLimiter  ratelimit.Limiter
	LoginLimiter   ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
	MaxUploadBytes int64
}

// Server exposes the studio HTTP API.
type Server struct {
	app            *app.App
	signupLimiter  ratelimit.Limiter
	loginLimiter   ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	maxUploadBytes int64
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		signupLimiter:  cfg.SignupLimiter,
		loginLimiter:   cfg.LoginLimiter,
		trustedProxies: cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		maxUploadBytes: maxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(serviceName, util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.Handle("GET /api/me", s.authenticated(s.handleMe))

	// chapters
	s.mux.Handle("POST /api/chapters", s.authenticated(s.handleCreateChapter))
	s.mux.Handle("GET /api/chapters", s.authenticated(s.handleListChapters))
	s.mux.Handle("GET /api/chapters/{id}", s.authenticated(s.handleGetChapter))
	s.mux.Handle("POST /api/chapters/{id}/quiz", s.authenticated(s.handleQuiz))
	s.mux.Handle("POST /api/chapters/{id}/cheat-sheet", s.authenticated(s.handleCheatSheet))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": s.app.GenerationEnabled(),
	})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
			return
		}
		identity, err := s.app.IdentityFromToken(r.Context(), token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Debug("token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", identity.ID))
		next(w, r.WithContext(ctx), identity)
	})
}

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string          `json:"token"`
	User  domain.Identity `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter) {
		s.audit(r, "signup", "rate_limited")
		return
	}
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	identity, token, err := s.app.SignUp(r.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		s.audit(r, "signup", "failure", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "signup", "success", "user_id", identity.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: identity})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter) {
		s.audit(r, "login", "rate_limited")
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	identity, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "login", "failure")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "login", "success", "user_id", identity.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: identity})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(r.Context(), token); err != nil {
		s.audit(r, "logout", "failure", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, identity domain.Identity) {
	writeJSON(w, http.StatusOK, identity)
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	chapters, err := s.app.ListChapters(r.Context(), identity)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	items := make([]chapterItem, 0, len(chapters))
	for _, c := range chapters {
		items = append(items, newChapterItem(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
	id, ok := chapterID(w, r)
	if !ok {
		return
	}
	chapter, err := s.app.GetChapter(r.Context(), identity, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chapterDetail{
		Chapter:      chapter,
		DisplayTitle: render.DisplayTitle(chapter.Title),
		DisplayISBN:  render.DisplayISBN(chapter.ISBN),
	})
}

type chapterDetail struct {
	domain.Chapter
	DisplayTitle string `json:"displayTitle"`
	DisplayISBN  string `json:"displayIsbn"`
}

func chapterID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		// Malformed ids look the same as ids owned by someone else.
		writeError(w, http.StatusNotFound, codeNotFound, app.ErrChapterNotFound.Error())
		return 0, false
	}
	return id, true
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retry := int(decision.RetryAfter.Round(time.Second) / time.Second)
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests, try again later")
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
		return false
	}
	return true
}

// decodeOptionalJSON accepts an empty body as "all defaults".
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body")
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("write response failed", "err", err)
	}
}

// requestContextDone reports a caller that went away mid-request.
func requestContextDone(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}
