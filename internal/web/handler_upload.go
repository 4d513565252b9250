package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/vbonduro/folio/internal/crop"
	"github.com/vbonduro/folio/internal/domain"
	"github.com/vbonduro/folio/internal/service"
)

// multipartOverhead is the allowance for form boundaries and extra fields on
// top of the file size limit.
const multipartOverhead = 1 << 20

const (
	noticePhotoSaved   = "Profile picture updated successfully! The new image will be visible to all visitors."
	noticeResumeSaved  = "Resume uploaded successfully! The new resume will be available to all visitors."
	noticeInvalidImage = "Please select a valid image file."
	noticeImageTooBig  = "File size must be less than 5MB."
	noticeInvalidPDF   = "Please select a valid PDF file."
	noticePDFTooBig    = "File size must be less than 10MB."
	noticeReadFailed   = "Error reading the selected file. Please try again."
	noticeBadDimension = "Image dimensions are out of range."
)

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8). The WHATWG sniffing algorithm (and therefore the stdlib) has no
// WebP signature.
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// sniffImageMIME returns the MIME type of data. Unsupported formats come
// back as whatever the stdlib sniffer reports.
func sniffImageMIME(data []byte) string {
	if isWebP(data) {
		return "image/webp"
	}
	return http.DetectContentType(data)
}

// formUpload describes the multipart file in field as a domain.Upload. The
// declared Content-Type is used when present; otherwise the first bytes are
// sniffed.
func (s *Server) formUpload(r *http.Request, field string, sniff func([]byte) string) (domain.Upload, error) {
	f, fh, err := r.FormFile(field)
	if err != nil {
		return domain.Upload{}, err
	}
	defer closeWithLog(f, "upload file", s.logger)

	up := domain.Upload{
		Name:     fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Open:     func() (io.ReadCloser, error) { return fh.Open() },
	}
	if up.MIMEType == "" || up.MIMEType == "application/octet-stream" {
		up.MIMEType, err = sniffHead(f, sniff)
		if err != nil {
			return domain.Upload{}, fmt.Errorf("%w: %w", domain.ErrRead, err)
		}
	}
	return up, nil
}

func sniffHead(f multipart.File, sniff func([]byte) string) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return sniff(head[:n]), nil
}

// parseUploadForm bounds the request body and parses the multipart form. It
// reports whether the handler should continue.
func parseUploadForm(w http.ResponseWriter, r *http.Request, limit int64, tooLarge string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLarge)
			return false
		}
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return false
	}
	return true
}

// uploadStatus maps upload errors to a status code and the notice shown to
// the admin.
func uploadStatus(err error, invalidType, tooLarge string) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidFileType):
		return http.StatusUnsupportedMediaType, invalidType
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, tooLarge
	case errors.Is(err, domain.ErrRead):
		return http.StatusBadRequest, noticeReadFailed
	case errors.Is(err, domain.ErrCropEncode):
		return http.StatusUnprocessableEntity, "Failed to save the profile picture: Failed to generate cropped image. Please try again."
	case errors.Is(err, crop.ErrDimensions):
		return http.StatusBadRequest, noticeBadDimension
	case errors.Is(err, crop.ErrWrongState):
		return http.StatusConflict, "Select an image to crop first."
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

func (s *Server) cropSession(r *http.Request) *crop.Session {
	id, expires, _ := s.auth.Session(r)
	return s.crops.Get(id, expires)
}

func (s *Server) handlePhotoStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cropSession(r).Status())
}

func (s *Server) handleSelectPhoto(w http.ResponseWriter, r *http.Request) {
	if !parseUploadForm(w, r, crop.MaxFileSize, noticeImageTooBig) {
		return
	}
	up, err := s.formUpload(r, "image", sniffImageMIME)
	if err != nil {
		if errors.Is(err, domain.ErrRead) {
			writeError(w, http.StatusBadRequest, noticeReadFailed)
			return
		}
		writeError(w, http.StatusBadRequest, "image file required")
		return
	}

	sess := s.cropSession(r)
	if err := sess.SelectFile(up); err != nil {
		status, msg := uploadStatus(err, noticeInvalidImage, noticeImageTooBig)
		s.logger.Warn("photo selection rejected", "file_name", up.Name, "mime", up.MIMEType, "size", up.Size, "error", err)
		writeError(w, status, msg)
		return
	}

	dw, _ := strconv.ParseFloat(r.FormValue("display_width"), 64)
	dh, _ := strconv.ParseFloat(r.FormValue("display_height"), 64)
	if _, err := sess.ImageLoaded(dw, dh); err != nil {
		sess.Cancel()
		status, msg := uploadStatus(err, noticeInvalidImage, noticeImageTooBig)
		s.logger.Warn("photo display size rejected", "display_width", dw, "display_height", dh, "error", err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handleAdjustSelection(w http.ResponseWriter, r *http.Request) {
	var sel crop.Selection
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid selection")
		return
	}
	sess := s.cropSession(r)
	if _, err := sess.Adjust(sel); err != nil {
		status, msg := uploadStatus(err, noticeInvalidImage, noticeImageTooBig)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	ratio := 1.0
	if v := r.URL.Query().Get("ratio"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || !(parsed > 0 && parsed <= 4) {
			writeError(w, http.StatusBadRequest, "invalid ratio")
			return
		}
		ratio = parsed
	}

	img, err := s.cropSession(r).Preview(ratio)
	if err != nil {
		status, msg := uploadStatus(err, noticeInvalidImage, noticeImageTooBig)
		writeError(w, status, msg)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		s.logger.Error("write preview failed", "error", err)
	}
}

func (s *Server) handleConfirmPhoto(w http.ResponseWriter, r *http.Request) {
	sess := s.cropSession(r)
	result, err := sess.Confirm()
	if err != nil {
		status, msg := uploadStatus(err, noticeInvalidImage, noticeImageTooBig)
		s.logger.Warn("crop confirm failed", "error", err)
		writeError(w, status, msg)
		return
	}

	_, err = s.service.SaveProfileImage(r.Context(), result.DataURL)
	sess.Finish(err)
	if err != nil {
		writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to save the profile picture: %s. Please try again.", err))
		return
	}
	s.logger.Info("profile image updated", "width", result.Width, "height", result.Height)
	w.Header().Set("HX-Trigger", "profileChanged")
	writeNotice(w, noticePhotoSaved)
}

func (s *Server) handleCancelPhoto(w http.ResponseWriter, r *http.Request) {
	s.cropSession(r).Cancel()
	w.WriteHeader(http.StatusNoContent)
}

type resumeResponse struct {
	Notice   string `json:"notice"`
	FileName string `json:"fileName"`
	Pages    int    `json:"pages,omitempty"`
}

func (s *Server) handleUploadResume(w http.ResponseWriter, r *http.Request) {
	if !parseUploadForm(w, r, service.MaxResumeSize, noticePDFTooBig) {
		return
	}
	up, err := s.formUpload(r, "resume", http.DetectContentType)
	if err != nil {
		if errors.Is(err, domain.ErrRead) {
			writeError(w, http.StatusBadRequest, noticeReadFailed)
			return
		}
		writeError(w, http.StatusBadRequest, "resume file required")
		return
	}

	res, err := s.service.UploadResume(r.Context(), up)
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			writeError(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to save the resume: %s. Please try again.", err))
			return
		}
		status, msg := uploadStatus(err, noticeInvalidPDF, noticePDFTooBig)
		s.logger.Warn("resume upload rejected", "file_name", up.Name, "mime", up.MIMEType, "size", up.Size, "error", err)
		writeError(w, status, msg)
		return
	}
	w.Header().Set("HX-Trigger", "profileChanged")
	writeJSON(w, http.StatusOK, resumeResponse{
		Notice:   noticeResumeSaved,
		FileName: res.Record.FileName,
		Pages:    res.Pages,
	})
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
