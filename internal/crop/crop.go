// Package crop implements the admin's profile photo crop: a file is selected,
// previewed, cropped to a square and encoded as a JPEG data URL.
//
// A Session moves through Idle → FileSelected → Previewing → Cropping →
// Saving → Idle. Selections are expressed in displayed-image coordinates;
// rasterization maps them onto the image's natural resolution.
package crop

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"math"
	"strings"
	"sync"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/vbonduro/folio/internal/dataurl"
	"github.com/vbonduro/folio/internal/domain"
)

const (
	MaxFileSize = 5 << 20
	JPEGQuality = 95

	// MaxPixels bounds the decoded image. Dimensions are checked from the
	// header before any pixel data is decoded.
	MaxPixels = 40_000_000

	// MaxDisplaySide bounds either side of the displayed image, and so the
	// selection and the encoded crop.
	MaxDisplaySide = 2048

	// maxPreviewSide bounds either side of a rendered preview.
	maxPreviewSide = 4096

	// initialFraction is the share of the shorter displayed side covered by
	// the default selection.
	initialFraction = 0.9
)

var (
	ErrWrongState = errors.New("crop: operation not allowed in current state")
	ErrDimensions = errors.New("crop: image dimensions out of range")
)

type State int

const (
	Idle State = iota
	FileSelected
	Previewing
	Cropping
	Saving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FileSelected:
		return "file_selected"
	case Previewing:
		return "previewing"
	case Cropping:
		return "cropping"
	case Saving:
		return "saving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Selection is a rectangle in displayed-image pixels.
type Selection struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// InitialSelection returns the centered square covering 90% of the shorter
// side of a w×h display.
func InitialSelection(w, h float64) Selection {
	side := initialFraction * math.Min(w, h)
	return Selection{
		X:      (w - side) / 2,
		Y:      (h - side) / 2,
		Width:  side,
		Height: side,
	}
}

// Result is an encoded crop ready to persist.
type Result struct {
	DataURL string
	Width   int
	Height  int
}

// Status is a point-in-time view of a session.
type Status struct {
	State         State     `json:"state"`
	FileName      string    `json:"fileName,omitempty"`
	NaturalWidth  int       `json:"naturalWidth,omitempty"`
	NaturalHeight int       `json:"naturalHeight,omitempty"`
	DisplayWidth  float64   `json:"displayWidth,omitempty"`
	DisplayHeight float64   `json:"displayHeight,omitempty"`
	Selection     Selection `json:"selection"`
}

type Session struct {
	mu       sync.Mutex
	state    State
	fileName string
	source   string
	img      image.Image
	displayW float64
	displayH float64
	sel      Selection
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:         s.state,
		FileName:      s.fileName,
		DisplayWidth:  s.displayW,
		DisplayHeight: s.displayH,
		Selection:     s.sel,
	}
	if s.img != nil {
		st.NaturalWidth = s.img.Bounds().Dx()
		st.NaturalHeight = s.img.Bounds().Dy()
	}
	return st
}

// Source returns the selected file as a data URL, or "" before a file has
// been read.
func (s *Session) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// SelectFile validates f, reads it and decodes it. Validation failures leave
// the session untouched; a read or decode failure returns it to Idle.
func (s *Session) SelectFile(f domain.Upload) error {
	if !strings.HasPrefix(f.MIMEType, "image/") {
		return fmt.Errorf("%w: %q is not an image", domain.ErrInvalidFileType, f.MIMEType)
	}
	if f.Size > MaxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrFileTooLarge, f.Size, MaxFileSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.state = FileSelected
	s.fileName = f.Name

	data, err := readAll(f)
	if err != nil {
		s.reset()
		return err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		s.reset()
		return fmt.Errorf("%w: decode image header: %w", domain.ErrRead, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		s.reset()
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDimensions, cfg.Width, cfg.Height, MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.reset()
		return fmt.Errorf("%w: decode image: %w", domain.ErrRead, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		s.reset()
		return fmt.Errorf("%w: image has no pixels", domain.ErrRead)
	}

	s.img = img
	s.source = dataurl.Encode(f.MIMEType, data)
	s.state = Previewing
	return nil
}

func readAll(f domain.Upload) ([]byte, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("%w: no file content", domain.ErrRead)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRead, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRead, err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", domain.ErrFileTooLarge, MaxFileSize)
	}
	return data, nil
}

// ImageLoaded records the size the image is displayed at and proposes the
// initial selection. Non-positive sizes mean the image is shown at natural
// size, scaled down to fit MaxDisplaySide. Sizes that are not finite or
// exceed MaxDisplaySide are rejected and leave the session in Previewing.
func (s *Session) ImageLoaded(displayW, displayH float64) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Previewing {
		return Selection{}, fmt.Errorf("%w: image loaded while %s", ErrWrongState, s.state)
	}
	if !finite(displayW) || !finite(displayH) {
		return Selection{}, fmt.Errorf("%w: display size %vx%v", ErrDimensions, displayW, displayH)
	}
	if displayW <= 0 || displayH <= 0 {
		b := s.img.Bounds()
		displayW, displayH = float64(b.Dx()), float64(b.Dy())
		if scale := MaxDisplaySide / math.Max(displayW, displayH); scale < 1 {
			displayW, displayH = displayW*scale, displayH*scale
		}
	}
	if displayW > MaxDisplaySide || displayH > MaxDisplaySide {
		return Selection{}, fmt.Errorf("%w: display size %vx%v exceeds %d", ErrDimensions, displayW, displayH, MaxDisplaySide)
	}

	s.displayW, s.displayH = displayW, displayH
	s.sel = InitialSelection(displayW, displayH)
	s.state = Cropping
	return s.sel, nil
}

// Adjust replaces the selection. The result is square and lies inside the
// displayed image.
func (s *Session) Adjust(sel Selection) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Cropping {
		return Selection{}, fmt.Errorf("%w: adjust while %s", ErrWrongState, s.state)
	}

	side := math.Max(0, math.Min(sel.Width, sel.Height))
	side = math.Min(side, math.Min(s.displayW, s.displayH))

	s.sel = Selection{
		X:      clamp(sel.X, 0, s.displayW-side),
		Y:      clamp(sel.Y, 0, s.displayH-side),
		Width:  side,
		Height: side,
	}
	return s.sel, nil
}

// Preview rasterizes the selection at pixelRatio device pixels per display
// pixel, masked to a circle.
func (s *Session) Preview(pixelRatio float64) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Cropping {
		return nil, fmt.Errorf("%w: preview while %s", ErrWrongState, s.state)
	}
	if !finite(pixelRatio) || pixelRatio <= 0 {
		pixelRatio = 1
	}

	w := int(math.Round(math.Min(s.sel.Width*pixelRatio, maxPreviewSide)))
	h := int(math.Round(math.Min(s.sel.Height*pixelRatio, maxPreviewSide)))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty selection", domain.ErrCropEncode)
	}

	square := s.rasterize(w, h)
	out := image.NewRGBA(square.Bounds())
	draw.DrawMask(out, out.Bounds(), square, image.Point{}, &circle{w: w, h: h}, image.Point{}, draw.Over)
	return out, nil
}

// Confirm encodes the selection at the selection's pixel size and moves the
// session to Saving. On failure the session stays in Cropping.
func (s *Session) Confirm() (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Cropping {
		return nil, fmt.Errorf("%w: confirm while %s", ErrWrongState, s.state)
	}

	w := int(math.Round(s.sel.Width))
	h := int(math.Round(s.sel.Height))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty selection", domain.ErrCropEncode)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, s.rasterize(w, h), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCropEncode, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: encoder produced no data", domain.ErrCropEncode)
	}

	s.state = Saving
	return &Result{
		DataURL: dataurl.Encode("image/jpeg", buf.Bytes()),
		Width:   w,
		Height:  h,
	}, nil
}

// Finish ends a save. A nil err returns the session to Idle; otherwise it
// goes back to Cropping so the admin can retry.
func (s *Session) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Saving {
		return
	}
	if err != nil {
		s.state = Cropping
		return
	}
	s.reset()
}

// Cancel discards the file and selection from any state.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) reset() {
	s.state = Idle
	s.fileName = ""
	s.source = ""
	s.img = nil
	s.displayW, s.displayH = 0, 0
	s.sel = Selection{}
}

// rasterize draws the selection's natural-resolution region onto a w×h
// surface. Callers hold mu.
func (s *Session) rasterize(w, h int) *image.RGBA {
	src := s.naturalRect()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if src.Dx() == w && src.Dy() == h {
		draw.Draw(dst, dst.Bounds(), s.img, src.Min, draw.Src)
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), s.img, src, xdraw.Src, nil)
	return dst
}

// naturalRect maps the selection from display to natural coordinates.
func (s *Session) naturalRect() image.Rectangle {
	b := s.img.Bounds()
	scaleX := float64(b.Dx()) / s.displayW
	scaleY := float64(b.Dy()) / s.displayH

	r := image.Rect(
		int(math.Round(s.sel.X*scaleX)),
		int(math.Round(s.sel.Y*scaleY)),
		int(math.Round((s.sel.X+s.sel.Width)*scaleX)),
		int(math.Round((s.sel.Y+s.sel.Height)*scaleY)),
	).Add(b.Min)
	return r.Intersect(b)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Min(math.Max(v, lo), hi)
}
