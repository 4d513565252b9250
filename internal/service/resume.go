package service

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/vbonduro/folio/internal/dataurl"
	"github.com/vbonduro/folio/internal/domain"
)

const (
	ResumeMIMEType    = "application/pdf"
	MaxResumeSize     = 10 << 20
	defaultResumeName = "resume.pdf"
)

// ResumeUpload is the outcome of a successful resume upload.
type ResumeUpload struct {
	Record *domain.Record
	Pages  int
}

// UploadResume validates, reads and stores a PDF resume. Type and size are
// checked before the file is opened.
func (s *PortfolioService) UploadResume(ctx context.Context, f domain.Upload) (*ResumeUpload, error) {
	if f.MIMEType != ResumeMIMEType {
		return nil, fmt.Errorf("%w: %q is not a PDF", domain.ErrInvalidFileType, f.MIMEType)
	}
	if f.Size > MaxResumeSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrFileTooLarge, f.Size, MaxResumeSize)
	}

	data, err := readUpload(f, MaxResumeSize)
	if err != nil {
		return nil, err
	}

	pages, err := countPages(data)
	if err != nil {
		s.logger.Warn("resume is not a readable PDF", "file_name", f.Name, "error", err)
	}

	name := f.Name
	if name == "" {
		name = defaultResumeName
	}
	rec := s.newRecord(domain.KindResume, dataurl.Encode(ResumeMIMEType, data), name)
	if err := s.persist(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("resume uploaded", "file_name", name, "bytes", len(data), "pages", pages)
	return &ResumeUpload{Record: rec, Pages: pages}, nil
}

// Resume returns the shown resume decoded for download, or nil when none has
// been uploaded.
func (s *PortfolioService) Resume() (fileName string, data []byte, err error) {
	rec := s.Current(domain.KindResume)
	if rec == nil {
		return "", nil, nil
	}
	_, data, err = dataurl.Decode(rec.Data)
	if err != nil {
		return "", nil, fmt.Errorf("stored resume is corrupt: %w", err)
	}
	fileName = rec.FileName
	if fileName == "" {
		fileName = defaultResumeName
	}
	return fileName, data, nil
}

func readUpload(f domain.Upload, limit int64) ([]byte, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("%w: no file content", domain.ErrRead)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRead, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRead, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", domain.ErrFileTooLarge, limit)
	}
	return data, nil
}

// countPages parses data as a PDF. The parser panics on some malformed
// inputs, so a panic is reported as an error.
func countPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to read pdf: %w", err)
	}
	return r.NumPage(), nil
}
