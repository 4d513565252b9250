package web

import (
	"embed"
	"encoding/json"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vbonduro/folio/internal/auth"
	"github.com/vbonduro/folio/internal/content"
	"github.com/vbonduro/folio/internal/crop"
	"github.com/vbonduro/folio/internal/service"
)

type Options struct {
	// PublicURL is the canonical address of the site, used for share links
	// and to decide whether session cookies are Secure.
	PublicURL string
	// DefaultProfileImage is where /profile-image redirects when no image
	// has been uploaded.
	DefaultProfileImage string
}

type Server struct {
	service   *service.PortfolioService
	content   *content.Source
	auth      *auth.Authenticator
	crops     *crop.Sessions
	templates embed.FS
	static    fs.FS
	opts      Options
	mux       *http.ServeMux
	tmplFuncs template.FuncMap
	logger    *slog.Logger
}

// NewServer wires the HTTP routes. authn may be nil, in which case every
// admin route is refused.
func NewServer(svc *service.PortfolioService, src *content.Source, authn *auth.Authenticator, tmpl embed.FS, static fs.FS, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		service:   svc,
		content:   src,
		auth:      authn,
		crops:     crop.NewSessions(),
		templates: tmpl,
		static:    static,
		opts:      opts,
		mux:       http.NewServeMux(),
		logger:    logger,
		tmplFuncs: template.FuncMap{
			"year": func() int { return time.Now().Year() },
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handlePortfolio)
	s.mux.HandleFunc("GET /partials/profile", s.handleProfilePartial)
	s.mux.HandleFunc("GET /profile-image", s.handleProfileImage)
	s.mux.HandleFunc("GET /resume", s.handleDownloadResume)
	s.mux.HandleFunc("GET /api/display", s.handleDisplay)
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(s.static)))

	s.mux.HandleFunc("POST /admin/login", s.handleLogin)
	s.mux.HandleFunc("POST /admin/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/session", s.handleSession)

	s.mux.Handle("GET /admin/photo", s.requireAdmin(s.handlePhotoStatus))
	s.mux.Handle("POST /admin/photo", s.requireAdmin(s.handleSelectPhoto))
	s.mux.Handle("PUT /admin/photo/selection", s.requireAdmin(s.handleAdjustSelection))
	s.mux.Handle("GET /admin/photo/preview", s.requireAdmin(s.handlePreview))
	s.mux.Handle("POST /admin/photo/confirm", s.requireAdmin(s.handleConfirmPhoto))
	s.mux.Handle("DELETE /admin/photo", s.requireAdmin(s.handleCancelPhoto))
	s.mux.Handle("POST /admin/resume", s.requireAdmin(s.handleUploadResume))
}

// securityHeaders sets the security response headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com https://cdnjs.cloudflare.com; "+
				"font-src https://fonts.gstatic.com https://cdnjs.cloudflare.com; "+
				"img-src 'self' data: https:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// requireAdmin rejects requests without a valid admin session.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.IsAdmin(r) {
			writeError(w, http.StatusUnauthorized, "Admin login required.")
			return
		}
		next(w, r)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// HTTPServer returns an *http.Server for addr with the timeouts used in
// production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, "base", data)
}

// renderPartial parses and executes a single named partial template.
// The file must contain exactly one {{define "name"}}...{{end}} block.
func (s *Server) renderPartial(w http.ResponseWriter, file string, data any) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, file)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// ParseFS registers both the file-basename template and any {{define}} blocks.
	basename := file
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		basename = file[idx+1:]
	}
	for _, t := range tmpl.Templates() {
		if n := t.Name(); n != "" && n != basename {
			return t.Execute(w, data)
		}
	}
	return tmpl.ExecuteTemplate(w, basename, data)
}

type noticeResponse struct {
	Notice string `json:"notice,omitempty"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotice(w http.ResponseWriter, notice string) {
	writeJSON(w, http.StatusOK, noticeResponse{Notice: notice})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, noticeResponse{Error: msg})
}

func (s *Server) secureCookies() bool {
	return strings.HasPrefix(s.opts.PublicURL, "https://")
}
