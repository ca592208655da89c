package authorflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	a := New(Config{
		AdminPassword: "secret-password",
		SessionSecret: "0123456789abcdef0123456789abcdef",
		StaticDir:     t.TempDir(),
		Import:        ImportConfig{AnalysisYear: 2025, Timezone: "UTC"},
	}, ViewFuncs{}, WithLogger(quietLogger()), WithClock(func() time.Time { return at(14, 8) }))
	a.Store = setupTestStore(t)
	if err := a.setup(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return a
}

// ownerContext builds a context as requireOwner leaves it for author-1.
func ownerContext(a *App, req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := a.Echo.NewContext(req, rec)
	c.Set(ownerKey, "author-1")
	return c, rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRoutesRequireLogin(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posts/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("api without session: expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login/" {
		t.Errorf("page without session: expected redirect to /login/, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authorflow_import_duration_seconds") {
		t.Errorf("expected import histogram in metrics output")
	}
}

func TestSaveAndListPosts(t *testing.T) {
	a := newTestApp(t)

	c, rec := ownerContext(a, jsonRequest(http.MethodPost, "/api/posts/",
		`{"piattaforma":"Instagram","data":"2025-07-14T09:00:00Z","descrizione":"Cover reveal","performance":{"views":999}}`))
	if err := a.handleSavePost(c); err != nil {
		t.Fatalf("handleSavePost returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var saved Post
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if saved.ID == "" || saved.Owner != "author-1" || saved.Performance != nil {
		t.Errorf("unexpected saved post: %+v", saved)
	}

	c, rec = ownerContext(a, httptest.NewRequest(http.MethodGet, "/api/posts/", nil))
	if err := a.handleListPosts(c); err != nil {
		t.Fatalf("handleListPosts returned error: %v", err)
	}
	var posts []Post
	if err := json.Unmarshal(rec.Body.Bytes(), &posts); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(posts) != 1 || posts[0].Description != "Cover reveal" {
		t.Errorf("unexpected posts: %+v", posts)
	}
}

func TestSavePostValidation(t *testing.T) {
	a := newTestApp(t)

	for name, body := range map[string]string{
		"missing platform": `{"data":"2025-07-14T09:00:00Z"}`,
		"missing date":     `{"piattaforma":"Instagram"}`,
		"malformed":        `{"piattaforma":`,
	} {
		c, _ := ownerContext(a, jsonRequest(http.MethodPost, "/api/posts/", body))
		if code := httpCode(t, a.handleSavePost(c)); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, code)
		}
	}
}

func TestSavePostOfAnotherOwner(t *testing.T) {
	a := newTestApp(t)
	p, err := a.Store.SavePost(t.Context(), Post{Owner: "author-2", Platform: "Instagram", ScheduledAt: at(14, 9)})
	if err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}

	c, _ := ownerContext(a, jsonRequest(http.MethodPost, "/api/posts/",
		`{"id":"`+p.ID+`","piattaforma":"Instagram","data":"2025-07-14T09:00:00Z"}`))
	if code := httpCode(t, a.handleSavePost(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestDeletePostHandler(t *testing.T) {
	a := newTestApp(t)
	p, _ := a.Store.SavePost(t.Context(), Post{Owner: "author-1", Platform: "Instagram", ScheduledAt: at(14, 9)})

	c, rec := ownerContext(a, httptest.NewRequest(http.MethodDelete, "/api/posts/"+p.ID+"/", nil))
	c.SetParamNames("id")
	c.SetParamValues(p.ID)
	if err := a.handleDeletePost(c); err != nil {
		t.Fatalf("handleDeletePost returned error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c, _ = ownerContext(a, httptest.NewRequest(http.MethodDelete, "/api/posts/"+p.ID+"/", nil))
	c.SetParamNames("id")
	c.SetParamValues(p.ID)
	if code := httpCode(t, a.handleDeletePost(c)); code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", code)
	}
}

func TestDueSoonHandler(t *testing.T) {
	a := newTestApp(t)
	for _, p := range []Post{
		{ID: "soon", Owner: "author-1", Platform: "Instagram", ScheduledAt: at(14, 12)},
		{ID: "week", Owner: "author-1", Platform: "Instagram", ScheduledAt: at(18, 12)},
	} {
		if _, err := a.Store.SavePost(t.Context(), p); err != nil {
			t.Fatalf("SavePost failed: %v", err)
		}
	}

	c, rec := ownerContext(a, httptest.NewRequest(http.MethodGet, "/api/posts/due/", nil))
	if err := a.handleDueSoon(c); err != nil {
		t.Fatalf("handleDueSoon returned error: %v", err)
	}
	var posts []Post
	_ = json.Unmarshal(rec.Body.Bytes(), &posts)
	if len(posts) != 1 || posts[0].ID != "soon" {
		t.Errorf("default window: unexpected posts %+v", posts)
	}

	c, rec = ownerContext(a, httptest.NewRequest(http.MethodGet, "/api/posts/due/?within=168h", nil))
	if err := a.handleDueSoon(c); err != nil {
		t.Fatalf("handleDueSoon returned error: %v", err)
	}
	posts = nil
	_ = json.Unmarshal(rec.Body.Bytes(), &posts)
	if len(posts) != 2 {
		t.Errorf("week window: expected 2 posts, got %d", len(posts))
	}

	c, _ = ownerContext(a, httptest.NewRequest(http.MethodGet, "/api/posts/due/?within=soon", nil))
	if code := httpCode(t, a.handleDueSoon(c)); code != http.StatusBadRequest {
		t.Errorf("bad window: expected 400, got %d", code)
	}
}

func multipartRequest(t *testing.T, target string, fields map[string]string, field string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, data := range files {
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestImportHandler(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.Store.SavePost(t.Context(), Post{ID: "p1", Owner: "author-1", Platform: "Instagram", ScheduledAt: at(14, 9)}); err != nil {
		t.Fatalf("SavePost failed: %v", err)
	}

	req := multipartRequest(t, "/api/import/", map[string]string{"strategy": "update_only"}, "files", map[string][]byte{
		"Instagram.csv": []byte("Orario di pubblicazione,Copertura,Mi piace,Commenti\n2025-07-14,500,20,3\n"),
	})
	c, rec := ownerContext(a, req)
	if err := a.handleImport(c); err != nil {
		t.Fatalf("handleImport returned error: %v", err)
	}
	var report ImportReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Updated != 1 || report.Created != 0 || report.NothingApplied {
		t.Errorf("unexpected report: %+v", report)
	}

	got, _ := a.Store.GetPost(t.Context(), "p1")
	if got.Performance == nil || got.Performance.Views != 500 {
		t.Errorf("performance not applied: %+v", got.Performance)
	}
}

func TestImportHandlerRejectsBadInput(t *testing.T) {
	a := newTestApp(t)

	req := multipartRequest(t, "/api/import/", map[string]string{"strategy": "merge"}, "files", map[string][]byte{
		"tiktok.csv": []byte("Date,Video Views\n14 luglio,10\n"),
	})
	c, _ := ownerContext(a, req)
	if code := httpCode(t, a.handleImport(c)); code != http.StatusBadRequest {
		t.Errorf("unknown strategy: expected 400, got %d", code)
	}

	req = multipartRequest(t, "/api/import/", nil, "files", nil)
	c, _ = ownerContext(a, req)
	if code := httpCode(t, a.handleImport(c)); code != http.StatusBadRequest {
		t.Errorf("no files: expected 400, got %d", code)
	}

	req = multipartRequest(t, "/api/import/", nil, "files", map[string][]byte{"empty.csv": []byte("\n")})
	c, _ = ownerContext(a, req)
	if code := httpCode(t, a.handleImport(c)); code != http.StatusBadRequest {
		t.Errorf("headerless csv: expected 400, got %d", code)
	}
}

func TestPostImageUpload(t *testing.T) {
	a := newTestApp(t)
	p, _ := a.Store.SavePost(t.Context(), Post{Owner: "author-1", Platform: "Instagram", ScheduledAt: at(14, 9)})

	var src bytes.Buffer
	if err := png.Encode(&src, image.NewRGBA(image.Rect(0, 0, 2160, 1080))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	req := multipartRequest(t, "/api/posts/"+p.ID+"/image/", nil, "image", map[string][]byte{"Cover Art.png": src.Bytes()})
	c, rec := ownerContext(a, req)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)
	if err := a.handlePostImage(c); err != nil {
		t.Fatalf("handlePostImage returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	got, _ := a.Store.GetPost(t.Context(), p.ID)
	wantPath := "/public/uploads/" + p.ID + "-cover-art.jpg"
	if got.Image != wantPath {
		t.Fatalf("Image = %q, want %q", got.Image, wantPath)
	}
	f, err := os.Open(filepath.Join(a.Config.StaticDir, uploadsSubdir, filepath.Base(wantPath)))
	if err != nil {
		t.Fatalf("open uploaded file: %v", err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if cfg.Width != maxImageWidth || cfg.Height != 540 {
		t.Errorf("resized to %dx%d, want %dx540", cfg.Width, cfg.Height, maxImageWidth)
	}
}

func TestPostImageOfAnotherOwner(t *testing.T) {
	a := newTestApp(t)
	p, _ := a.Store.SavePost(t.Context(), Post{Owner: "author-2", Platform: "Instagram", ScheduledAt: at(14, 9)})

	req := multipartRequest(t, "/api/posts/"+p.ID+"/image/", nil, "image", map[string][]byte{"x.png": []byte("not an image")})
	c, _ := ownerContext(a, req)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)
	if code := httpCode(t, a.handlePostImage(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestErrorHandlerAnswersJSONForAPI(t *testing.T) {
	a := newTestApp(t)
	rec := httptest.NewRecorder()
	c := a.Echo.NewContext(httptest.NewRequest(http.MethodGet, "/api/posts/", nil), rec)

	a.httpErrorHandler(errors.New("boom"), c)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("expected JSON error body, got %q", rec.Body.String())
	}
}
