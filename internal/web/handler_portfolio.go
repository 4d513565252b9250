package web

import (
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vbonduro/folio/internal/content"
	"github.com/vbonduro/folio/internal/dataurl"
	"github.com/vbonduro/folio/internal/domain"
)

type profileView struct {
	IsAdmin        bool
	ImageURL       string
	LastUpdated    string
	HasResume      bool
	ResumeFileName string
}

type pageData struct {
	Portfolio  *content.Portfolio
	ShareLinks []content.ShareLink
	Profile    profileView
}

func (s *Server) profile(r *http.Request) profileView {
	v := profileView{
		IsAdmin:  s.auth.IsAdmin(r),
		ImageURL: s.opts.DefaultProfileImage,
	}
	if img := s.service.Current(domain.KindProfileImage); img != nil {
		// The version parameter changes with every upload so browsers refetch.
		v.ImageURL = "/profile-image?v=" + strconv.FormatInt(img.Timestamp.UnixMilli(), 10)
		v.LastUpdated = img.Timestamp.UTC().Format(time.RFC1123)
	}
	if res := s.service.Current(domain.KindResume); res != nil {
		v.HasResume = true
		v.ResumeFileName = res.FileName
	}
	return v
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	p := s.content.Get()
	data := pageData{
		Portfolio:  p,
		ShareLinks: p.ShareLinks(s.opts.PublicURL),
		Profile:    s.profile(r),
	}
	if err := s.renderPage(w, data,
		"base.html", "pages/portfolio.html", "partials/profile.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleProfilePartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if err := s.renderPartial(w, "partials/profile.html", s.profile(r)); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

func (s *Server) handleProfileImage(w http.ResponseWriter, r *http.Request) {
	rec := s.service.Current(domain.KindProfileImage)
	if rec == nil {
		http.Redirect(w, r, s.opts.DefaultProfileImage, http.StatusFound)
		return
	}
	mimeType, data, err := dataurl.Decode(rec.Data)
	if err != nil {
		s.logger.Error("decode profile image failed", "error", err)
		http.Redirect(w, r, s.opts.DefaultProfileImage, http.StatusFound)
		return
	}
	// Mirrored records are not trusted to carry an image type.
	if !strings.HasPrefix(mimeType, "image/") {
		s.logger.Warn("stored profile image has non-image type", "mime", mimeType)
		http.Redirect(w, r, s.opts.DefaultProfileImage, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write profile image failed", "error", err)
	}
}

func (s *Server) handleDownloadResume(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.service.Resume()
	if err != nil {
		s.logger.Error("load resume failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load the resume. Please try again.")
		return
	}
	if data == nil {
		writeError(w, http.StatusNotFound, "No resume available for download.")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write resume failed", "error", err)
	}
}

type displayedRecord struct {
	Timestamp int64  `json:"timestamp"`
	UpdatedBy string `json:"updatedBy,omitempty"`
	FileName  string `json:"fileName,omitempty"`
}

type displayResponse struct {
	ProfileImage *displayedRecord `json:"profileImage"`
	Resume       *displayedRecord `json:"resume"`
}

func toDisplayed(rec *domain.Record) *displayedRecord {
	if rec == nil {
		return nil
	}
	return &displayedRecord{
		Timestamp: rec.Timestamp.UnixMilli(),
		UpdatedBy: rec.UpdatedBy,
		FileName:  rec.FileName,
	}
}

func (s *Server) handleDisplay(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, displayResponse{
		ProfileImage: toDisplayed(s.service.Current(domain.KindProfileImage)),
		Resume:       toDisplayed(s.service.Current(domain.KindResume)),
	})
}
