package web

import (
	"net/http"
	"time"

	"github.com/vbonduro/folio/internal/auth"
)

const maxLoginFormSize = 4 << 10

type sessionResponse struct {
	Admin   bool       `json:"admin"`
	Expires *time.Time `json:"expires,omitempty"`
	Notice  string     `json:"notice,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "Admin access is not configured.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginFormSize)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid login request.")
		return
	}
	if !s.auth.Verify(r.PostFormValue("secret")) {
		s.logger.Warn("admin login rejected", "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Invalid password!")
		return
	}

	token, expires := s.auth.Issue()
	http.SetCookie(w, s.auth.SessionCookie(token, expires, s.secureCookies()))
	s.logger.Info("admin login", "remote_addr", r.RemoteAddr, "expires", expires)
	w.Header().Set("HX-Trigger", "profileChanged")
	writeJSON(w, http.StatusOK, sessionResponse{Admin: true, Expires: &expires, Notice: "Admin mode enabled."})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.auth.SessionID(r); ok {
		s.crops.Drop(id)
	}
	http.SetCookie(w, auth.ClearCookie(s.secureCookies()))
	w.Header().Set("HX-Trigger", "profileChanged")
	writeJSON(w, http.StatusOK, sessionResponse{Admin: false, Notice: "Signed out."})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{Admin: s.auth.IsAdmin(r)})
}
