package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vbonduro/folio/internal/auth"
	"github.com/vbonduro/folio/internal/content"
	"github.com/vbonduro/folio/internal/db"
	"github.com/vbonduro/folio/internal/domain"
	"github.com/vbonduro/folio/internal/kvstore/local"
	"github.com/vbonduro/folio/internal/localstore"
	"github.com/vbonduro/folio/internal/service"
	"github.com/vbonduro/folio/internal/store"
	"github.com/vbonduro/folio/internal/web"
	"github.com/vbonduro/folio/internal/web/static"
	"github.com/vbonduro/folio/internal/web/templates"
)

const adminSecret = "hunter2"

// memMirror is a simple in-memory implementation of mirror.Mirror.
type memMirror struct {
	mu      sync.Mutex
	records map[domain.Kind]domain.Record
}

func (m *memMirror) Save(_ context.Context, rec *domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Kind] = *rec
	return nil
}

func (m *memMirror) Load(_ context.Context, kind domain.Kind) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[kind]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	svc    *service.PortfolioService
	mirror *memMirror
}

// newTestServer sets up a real web.Server backed by in-memory SQLite, a temp
// flat store and an in-memory mirror.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.OpenForTesting()
	require.NoError(t, err)
	flat, err := local.NewFileStore(t.TempDir())
	require.NoError(t, err)

	mirror := &memMirror{records: make(map[domain.Kind]domain.Record)}
	svc := service.NewPortfolioService(
		localstore.New(store.NewRecordStore(database), flat, slog.Default()),
		mirror,
		slog.Default(),
	)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminSecret), bcrypt.MinCost)
	require.NoError(t, err)
	authn, err := auth.New(string(hash), []byte("test-session-key"), 0)
	require.NoError(t, err)

	src, err := content.NewSource("", slog.Default())
	require.NoError(t, err)

	srv := httptest.NewServer(web.NewServer(svc, src, authn, templates.FS, static.FS, web.Options{
		PublicURL:           "http://portfolio.test",
		DefaultProfileImage: "/static/profile-default.svg",
	}, slog.Default()))
	t.Cleanup(func() {
		srv.Close()
		_ = database.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{srv: srv, client: client, svc: svc, mirror: mirror}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) login(t *testing.T, secret string) *http.Response {
	t.Helper()
	form := url.Values{"secret": {secret}}
	return e.do(t, http.MethodPost, "/admin/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decodeNotice(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// buildMultipartBody creates a multipart/form-data body with a single file
// part. An empty mimeType leaves the part without a Content-Type header.
func buildMultipartBody(t *testing.T, field, fileName, mimeType string, data []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range extra {
		require.NoError(t, w.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+fileName+`"`)
	if mimeType != "" {
		h.Set("Content-Type", mimeType)
	}
	fw, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIntegration_PortfolioPage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)

	resp := env.do(t, http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	body := readBody(t, resp)
	assert.Contains(t, body, "Sridhanush Varma")
	assert.Contains(t, body, "Technical Skills")
	assert.Contains(t, body, `src="/static/profile-default.svg"`)
	assert.Contains(t, body, "facebook.com/sharer")
	assert.NotContains(t, body, `id="photo-input"`)
	assert.NotContains(t, body, `id="resume-input"`)
	assert.NotContains(t, body, `href="/resume"`)
}

func TestIntegration_ProfilePartialPolls(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)

	resp := env.do(t, http.MethodGet, "/partials/profile", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "every 300s")
	assert.NotContains(t, body, "<html")
}

func TestIntegration_ProfileImageDefaultRedirect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)

	resp := env.do(t, http.MethodGet, "/profile-image", nil, "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/static/profile-default.svg", resp.Header.Get("Location"))

	resp = env.do(t, http.MethodGet, "/static/profile-default.svg", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntegration_AdminLogin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)

	resp := env.login(t, "wrong")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid password!", decodeNotice(t, resp)["error"])

	resp = env.do(t, http.MethodGet, "/api/session", nil, "")
	assert.Equal(t, false, decodeNotice(t, resp)["admin"])
	resp = env.do(t, http.MethodGet, "/partials/profile", nil, "")
	assert.NotContains(t, readBody(t, resp), `id="photo-input"`)

	resp = env.login(t, adminSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/session", nil, "")
	assert.Equal(t, true, decodeNotice(t, resp)["admin"])

	resp = env.do(t, http.MethodGet, "/", nil, "")
	body := readBody(t, resp)
	assert.Contains(t, body, `id="photo-input"`)
	assert.Contains(t, body, `id="resume-input"`)

	resp = env.do(t, http.MethodPost, "/admin/logout", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/session", nil, "")
	assert.Equal(t, false, decodeNotice(t, resp)["admin"])
}

func TestIntegration_AdminRoutesRequireLogin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/admin/photo"},
		{http.MethodPost, "/admin/photo"},
		{http.MethodPut, "/admin/photo/selection"},
		{http.MethodGet, "/admin/photo/preview"},
		{http.MethodPost, "/admin/photo/confirm"},
		{http.MethodDelete, "/admin/photo"},
		{http.MethodPost, "/admin/resume"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			resp := env.do(t, rt.method, rt.path, nil, "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
	assert.Nil(t, env.svc.Current(domain.KindResume))
}

func TestIntegration_PhotoCropFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)
	require.Equal(t, http.StatusOK, env.login(t, adminSecret).StatusCode)

	// No file selected yet.
	resp := env.do(t, http.MethodPost, "/admin/photo/confirm", nil, "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	body, ct := buildMultipartBody(t, "image", "me.png", "", testPNG(t, 1200, 800), nil)
	resp = env.do(t, http.MethodPost, "/admin/photo", body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode, readBody(t, resp))

	var status struct {
		State     string `json:"state"`
		Selection struct {
			X, Y, Width, Height float64
		} `json:"selection"`
	}
	resp = env.do(t, http.MethodGet, "/admin/photo", nil, "")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "cropping", status.State)
	assert.InDelta(t, 720, status.Selection.Width, 0.001)
	assert.InDelta(t, 240, status.Selection.X, 0.001)
	assert.InDelta(t, 40, status.Selection.Y, 0.001)

	sel := strings.NewReader(`{"x":100,"y":100,"width":400,"height":400}`)
	resp = env.do(t, http.MethodPut, "/admin/photo/selection", sel, "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/admin/photo/preview?ratio=2", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	preview, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 800, 800), preview.Bounds())

	resp = env.do(t, http.MethodPost, "/admin/photo/confirm", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "profileChanged", resp.Header.Get("HX-Trigger"))
	assert.Contains(t, decodeNotice(t, resp)["notice"], "Profile picture updated successfully!")

	resp = env.do(t, http.MethodGet, "/profile-image", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	saved, err := jpeg.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 400), saved.Bounds())

	_, ok := env.mirror.records[domain.KindProfileImage]
	assert.True(t, ok, "image mirrored")

	resp = env.do(t, http.MethodGet, "/api/display", nil, "")
	display := decodeNotice(t, resp)
	assert.NotNil(t, display["profileImage"])
	assert.Nil(t, display["resume"])

	// The session is idle again after a successful save.
	resp = env.do(t, http.MethodGet, "/admin/photo", nil, "")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "idle", status.State)
}

func TestIntegration_PhotoDisplaySize(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)
	require.Equal(t, http.StatusOK, env.login(t, adminSecret).StatusCode)

	body, ct := buildMultipartBody(t, "image", "me.png", "image/png", testPNG(t, 1200, 800),
		map[string]string{"display_width": "600", "display_height": "400"})
	resp := env.do(t, http.MethodPost, "/admin/photo", body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Selection struct{ Width float64 } `json:"selection"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.InDelta(t, 360, status.Selection.Width, 0.001)

	resp = env.do(t, http.MethodDelete, "/admin/photo", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, env.svc.Current(domain.KindProfileImage))
}

func TestIntegration_PhotoDisplaySizeOutOfRange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)
	require.Equal(t, http.StatusOK, env.login(t, adminSecret).StatusCode)

	for _, size := range []string{"1e9", "NaN", "+Inf"} {
		t.Run(size, func(t *testing.T) {
			body, ct := buildMultipartBody(t, "image", "me.png", "image/png", testPNG(t, 10, 10),
				map[string]string{"display_width": size, "display_height": size})
			resp := env.do(t, http.MethodPost, "/admin/photo", body, ct)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "Image dimensions are out of range.", decodeNotice(t, resp)["error"])

			resp = env.do(t, http.MethodPost, "/admin/photo/confirm", nil, "")
			assert.Equal(t, http.StatusConflict, resp.StatusCode)
		})
	}
}

func TestIntegration_ProfileImageNonImageType(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)

	_, err := env.svc.SaveProfileImage(context.Background(), "data:text/html;base64,PHNjcmlwdD4=")
	require.NoError(t, err)

	resp := env.do(t, http.MethodGet, "/profile-image", nil, "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/static/profile-default.svg", resp.Header.Get("Location"))
}

func TestIntegration_PhotoRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)
	require.Equal(t, http.StatusOK, env.login(t, adminSecret).StatusCode)

	tests := []struct {
		name       string
		mimeType   string
		data       []byte
		wantStatus int
		wantError  string
	}{
		{"declared text", "text/plain", []byte("hello"), http.StatusUnsupportedMediaType, "Please select a valid image file."},
		{"sniffed pdf", "", []byte("%PDF-1.4 not an image"), http.StatusUnsupportedMediaType, "Please select a valid image file."},
		{"corrupt image", "image/png", []byte("not really a png"), http.StatusBadRequest, "Error reading the selected file. Please try again."},
		{"too large", "image/png", make([]byte, 5<<20+1), http.StatusRequestEntityTooLarge, "File size must be less than 5MB."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := buildMultipartBody(t, "image", "file", tt.mimeType, tt.data, nil)
			resp := env.do(t, http.MethodPost, "/admin/photo", body, ct)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantError, decodeNotice(t, resp)["error"])
		})
	}
	assert.Nil(t, env.svc.Current(domain.KindProfileImage))
}

func TestIntegration_ResumeUploadAndDownload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)

	resp := env.do(t, http.MethodGet, "/resume", nil, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "No resume available for download.", decodeNotice(t, resp)["error"])

	require.Equal(t, http.StatusOK, env.login(t, adminSecret).StatusCode)

	pdf := []byte("%PDF-1.4\n% minimal resume body\n")
	body, ct := buildMultipartBody(t, "resume", "Jane Doe CV.pdf", "", pdf, nil)
	resp = env.do(t, http.MethodPost, "/admin/resume", body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	notice := decodeNotice(t, resp)
	assert.Equal(t, "Resume uploaded successfully! The new resume will be available to all visitors.", notice["notice"])
	assert.Equal(t, "Jane Doe CV.pdf", notice["fileName"])

	resp = env.do(t, http.MethodGet, "/resume", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Jane Doe CV.pdf"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, string(pdf), readBody(t, resp))

	resp = env.do(t, http.MethodGet, "/partials/profile", nil, "")
	assert.Contains(t, readBody(t, resp), `href="/resume"`)
}

func TestIntegration_ResumeRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := newTestServer(t)
	require.Equal(t, http.StatusOK, env.login(t, adminSecret).StatusCode)

	tests := []struct {
		name       string
		mimeType   string
		size       int
		wantStatus int
		wantError  string
	}{
		{"word document", "application/msword", 10, http.StatusUnsupportedMediaType, "Please select a valid PDF file."},
		{"just over limit", "application/pdf", 10<<20 + 1, http.StatusRequestEntityTooLarge, "File size must be less than 10MB."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := buildMultipartBody(t, "resume", "cv", tt.mimeType, make([]byte, tt.size), nil)
			resp := env.do(t, http.MethodPost, "/admin/resume", body, ct)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantError, decodeNotice(t, resp)["error"])
		})
	}
	assert.Nil(t, env.svc.Current(domain.KindResume))
}
