package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"homesite/internal/history"
	"homesite/internal/visits"
)

func TestSitePages(t *testing.T) {
	env := setupTestServer(t, nil)

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/", http.StatusOK, "welcome home"},
		{"/about", http.StatusOK, "about me"},
		{"/about.html", http.StatusOK, "about me"},
		{"/missing", http.StatusNotFound, "No such page"},
		{"/..%2Fsecret", http.StatusNotFound, "No such page"},
		{"/blog", http.StatusOK, "[Hello|/blog/hello.html]"},
		{"/blog/hello", http.StatusOK, "hello world"},
		{"/blog/hello.html", http.StatusOK, "hello world"},
		{"/blog/nope", http.StatusNotFound, "No such article"},
		{"/gallery", http.StatusOK, `<img src="/static/gallery/cat.jpg">`},
		{"/robots.txt", http.StatusOK, "User-agent: *"},
		{"/secrets.txt", http.StatusNotFound, "This, I do not have :/"},
		{"/static/style.css", http.StatusOK, "body{}"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := env.get(tt.path)
			if rr.Code != tt.wantCode {
				t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.wantCode, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("GET %s: expected body to contain %q, got %q", tt.path, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestStaticDirectoriesNotListed(t *testing.T) {
	env := setupTestServer(t, nil)

	for _, path := range []string{"/static/", "/static/gallery/", "/static/gallery"} {
		rr := env.get(path)
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected status 404, got %d", path, rr.Code)
		}
		if strings.Contains(rr.Body.String(), "cat.jpg") {
			t.Errorf("GET %s: directory listed: %s", path, rr.Body.String())
		}
	}

	if rr := env.get("/static/gallery/cat.jpg"); rr.Code != http.StatusOK {
		t.Errorf("Expected gallery image to be served, got %d", rr.Code)
	}
}

func TestTextFileContentType(t *testing.T) {
	env := setupTestServer(t, nil)

	rr := env.get("/robots.txt")
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Expected text/plain, got %q", ct)
	}
}

func TestReloadPicksUpNewPage(t *testing.T) {
	env := setupTestServer(t, nil)

	if rr := env.get("/new"); rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before reload, got %d", rr.Code)
	}

	writeFiles(t, filepath.Join(env.root, "templates"), map[string]string{
		"new.html": `{{template "base" .}}{{define "title"}}New{{end}}{{define "content"}}fresh{{end}}`,
	})
	if rr := env.deliver([]byte(`{"workflow_run":null}`)); rr.Code != http.StatusOK {
		t.Fatalf("Update failed: %d %s", rr.Code, rr.Body.String())
	}

	if rr := env.get("/new"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "fresh") {
		t.Errorf("Expected new page after reload, got %d %q", rr.Code, rr.Body.String())
	}
}

func uploadRequest(t *testing.T, token, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/gallery", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestHandleGalleryUpload(t *testing.T) {
	env := setupTestServer(t, nil)

	rr := env.do(uploadRequest(t, testGalleryToken, "file", "sunset.jpg", []byte("pixels")))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var img struct {
		Path string `json:"path"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &img); err != nil {
		t.Fatal(err)
	}
	if img.Name != "sunset.jpg" || img.Path != "/static/gallery/sunset.jpg" {
		t.Errorf("Unexpected image %+v", img)
	}

	content, err := os.ReadFile(filepath.Join(env.galleryDir, "sunset.jpg"))
	if err != nil || string(content) != "pixels" {
		t.Errorf("Expected stored image, got %q (%v)", content, err)
	}

	if rr := env.get("/gallery"); !strings.Contains(rr.Body.String(), "/static/gallery/sunset.jpg") {
		t.Error("Expected uploaded image in gallery")
	}
}

func TestHandleGalleryUpload_NameCollision(t *testing.T) {
	env := setupTestServer(t, nil)

	rr := env.do(uploadRequest(t, testGalleryToken, "file", "cat.jpg", []byte("another cat")))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var img struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &img)
	if img.Name == "cat.jpg" || !strings.HasPrefix(img.Name, "cat") || !strings.HasSuffix(img.Name, ".jpg") {
		t.Errorf("Expected renamed upload, got %q", img.Name)
	}

	original, _ := os.ReadFile(filepath.Join(env.galleryDir, "cat.jpg"))
	if string(original) != "meow" {
		t.Error("Existing image was overwritten")
	}
}

func TestHandleGalleryUpload_Rejections(t *testing.T) {
	env := setupTestServer(t, nil)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
	}{
		{"no token", uploadRequest(t, "", "file", "a.jpg", []byte("x")), http.StatusUnauthorized},
		{"wrong token", uploadRequest(t, "not-the-token", "file", "a.jpg", []byte("x")), http.StatusUnauthorized},
		{"api token", uploadRequest(t, testAPIToken, "file", "a.jpg", []byte("x")), http.StatusUnauthorized},
		{"missing field", uploadRequest(t, testGalleryToken, "", "", nil), http.StatusBadRequest},
		{"wrong field", uploadRequest(t, testGalleryToken, "image", "a.jpg", []byte("x")), http.StatusBadRequest},
		{"empty file", uploadRequest(t, testGalleryToken, "file", "a.jpg", nil), http.StatusBadRequest},
		{"hidden name", uploadRequest(t, testGalleryToken, "file", ".htaccess", []byte("x")), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(tt.req)
			if rr.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
		})
	}

	if images := env.server.Site.Images(); len(images) != 1 {
		t.Errorf("Rejected uploads must not be stored, gallery has %v", images)
	}
}

func TestHandleGalleryUpload_TooLarge(t *testing.T) {
	env := setupTestServer(t, nil)
	env.server.Config.MaxUploadBytes = 1024

	rr := env.do(uploadRequest(t, testGalleryToken, "file", "big.jpg", bytes.Repeat([]byte("x"), 4096)))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", rr.Code)
	}
}

func TestVisitsCountedOnSitePages(t *testing.T) {
	env := setupTestServer(t, nil)
	env.withDatabase(t)

	env.get("/")
	env.get("/")
	env.get("/blog")
	env.get("/health")

	req := httptest.NewRequest(http.MethodGet, "/api/visits", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	rr := env.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var body struct {
		Visits []visits.PathCount `json:"visits"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	want := []visits.PathCount{{Path: "/", VisitCount: 2}, {Path: "/blog", VisitCount: 1}}
	if len(body.Visits) != len(want) {
		t.Fatalf("Expected %v, got %v", want, body.Visits)
	}
	for i := range want {
		if body.Visits[i] != want[i] {
			t.Errorf("Visit %d: expected %v, got %v", i, want[i], body.Visits[i])
		}
	}
}

func TestHandleRecentVisits(t *testing.T) {
	env := setupTestServer(t, nil)
	env.withDatabase(t)

	env.get("/")
	env.get("/blog")
	env.get("/about")

	req := httptest.NewRequest(http.MethodGet, "/api/visits/recent?limit=2", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIToken)
	rr := env.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var body struct {
		Visits []visits.Visit `json:"visits"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Visits) != 2 {
		t.Fatalf("Expected 2 visits, got %v", body.Visits)
	}
	if body.Visits[0].Path != "/about" || body.Visits[1].Path != "/blog" {
		t.Errorf("Expected newest first, got %v", body.Visits)
	}
}

func TestVisitFailureDoesNotAffectResponse(t *testing.T) {
	env := setupTestServer(t, nil)
	db := env.withDatabase(t)
	db.Close()

	rr := env.get("/")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected page to render despite visit failure, got %d", rr.Code)
	}
}

func TestHandleUpdates(t *testing.T) {
	env := setupTestServer(t, nil)
	env.withDatabase(t)

	for i := 0; i < 3; i++ {
		if _, err := env.server.History.RecordUpdate(t.Context(), &history.UpdateRecord{
			Source:    "delivery",
			Status:    history.StatusReloaded,
			StartedAt: time.Now(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query     string
		wantCode  int
		wantCount int
	}{
		{"", http.StatusOK, 3},
		{"?limit=2", http.StatusOK, 2},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/updates"+tt.query, nil)
			req.Header.Set("Authorization", "Bearer "+testAPIToken)
			rr := env.do(req)
			if rr.Code != tt.wantCode {
				t.Fatalf("Expected status %d, got %d", tt.wantCode, rr.Code)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Updates []history.UpdateRecord `json:"updates"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if len(body.Updates) != tt.wantCount {
				t.Errorf("Expected %d updates, got %d", tt.wantCount, len(body.Updates))
			}
		})
	}
}

func TestAPI_WithoutDatabase(t *testing.T) {
	env := setupTestServer(t, nil)

	for _, path := range []string{"/api/visits", "/api/visits/recent", "/api/updates"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+testAPIToken)
		if rr := env.do(req); rr.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s: expected status 503, got %d", path, rr.Code)
		}
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	env := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/visits", nil)
	req.Header.Set("Authorization", "Bearer "+testGalleryToken)
	rr := env.do(req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Error("Expected WWW-Authenticate header")
	}
}
