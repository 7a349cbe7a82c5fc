package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"homesite/internal/security"
	"homesite/internal/site"
)

// Bounds of the limit parameter of the list endpoints.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type blogIndexData struct {
	BlogEntries []site.BlogEntry
}

type galleryData struct {
	Images []site.Image
}

// HandleIndex renders the front page.
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "index.html", nil, "No such page")
}

// HandlePage renders a top level page, or serves a .txt file from the
// static directory.
func (s *Server) HandlePage(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")

	if name, ok := strings.CutSuffix(page, ".txt"); ok {
		s.serveText(w, name)
		return
	}

	name := strings.TrimSuffix(page, ".html")
	if err := security.ValidatePageName(name); err != nil {
		http.Error(w, "No such page", http.StatusNotFound)
		return
	}
	s.render(w, name+".html", nil, "No such page")
}

// HandleBlogIndex renders the list of articles.
func (s *Server) HandleBlogIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "blogindex.html", blogIndexData{BlogEntries: s.Site.BlogEntries()}, "No such page")
}

// HandleArticle renders a single article.
func (s *Server) HandleArticle(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(chi.URLParam(r, "article"), ".html")
	if err := security.ValidatePageName(name); err != nil {
		http.Error(w, "No such article", http.StatusNotFound)
		return
	}
	s.render(w, "blog/"+name+".html", nil, "No such article")
}

// HandleGallery renders the gallery in a fresh random order.
func (s *Server) HandleGallery(w http.ResponseWriter, r *http.Request) {
	s.render(w, "gallery.html", galleryData{Images: s.Site.ShuffledImages()}, "No such page")
}

// HandleGalleryUpload stores the multipart field "file" in the gallery.
func (s *Server) HandleGalleryUpload(w http.ResponseWriter, r *http.Request) {
	if !HasCapability(r.Context(), CapabilityGalleryUpload) {
		s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	if r.ContentLength > s.Config.MaxUploadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "File too large"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "File too large"})
			return
		}
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing file"})
		return
	}
	defer file.Close()

	if header.Size == 0 {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Empty file"})
		return
	}
	if _, err := security.SanitizeUploadName(header.Filename); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid file name: " + err.Error()})
		return
	}

	img, err := s.Site.AddImage(header.Filename, file)
	if err != nil {
		s.Logger.Error("Failed to store gallery image", "name", header.Filename, "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to store image"})
		return
	}

	s.Logger.Info("Gallery image uploaded", "name", img.Name, "size_bytes", header.Size)
	s.respondJSON(w, http.StatusCreated, img)
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":       "ok",
		"blog_entries": len(s.Site.BlogEntries()),
		"images":       len(s.Site.Images()),
	}
	status := http.StatusOK

	if s.Database != nil {
		if err := s.Database.Ping(r.Context()); err != nil {
			s.Logger.Error("Database health check failed", "error", err)
			response["status"] = "degraded"
			response["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			response["database"] = "ok"
		}
	}

	if s.History != nil {
		latest, err := s.History.GetLatestUpdate(r.Context())
		if err != nil {
			s.Logger.Error("Failed to get latest update", "error", err)
		} else if latest != nil {
			response["last_update"] = latest
		}
	}

	s.respondJSON(w, status, response)
}

// HandleVisits returns the visit count of every path.
func (s *Server) HandleVisits(w http.ResponseWriter, r *http.Request) {
	if s.Visits == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Visit counter not available"})
		return
	}

	counts, err := s.Visits.VisitsPerPath(r.Context())
	if err != nil {
		s.Logger.Error("Failed to count visits", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch visits"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"visits": counts})
}

// HandleRecentVisits returns the latest visits, newest first.
func (s *Server) HandleRecentVisits(w http.ResponseWriter, r *http.Request) {
	if s.Visits == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Visit counter not available"})
		return
	}

	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}

	recent, err := s.Visits.RecentVisits(r.Context(), limit)
	if err != nil {
		s.Logger.Error("Failed to get recent visits", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch visits"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"visits": recent})
}

// HandleUpdates returns the most recent update attempts.
func (s *Server) HandleUpdates(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not available"})
		return
	}

	limit, ok := s.limitParam(w, r)
	if !ok {
		return
	}

	recent, err := s.History.GetUpdateHistory(r.Context(), limit)
	if err != nil {
		s.Logger.Error("Failed to get update history", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch update history"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{"updates": recent})
}

// limitParam reads the optional limit query parameter, capped at
// MaxListLimit. It writes a 400 and returns false when the value is invalid.
func (s *Server) limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		return 0, false
	}
	return min(n, MaxListLimit), true
}

// render writes page, or notFound with a 404 if the page does not exist.
func (s *Server) render(w http.ResponseWriter, page string, data any, notFound string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := s.Site.Render(w, page, data)
	if err == nil {
		return
	}
	if errors.Is(err, site.ErrPageNotFound) {
		http.Error(w, notFound, http.StatusNotFound)
		return
	}
	s.Logger.Error("Failed to render page", "page", page, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *Server) serveText(w http.ResponseWriter, name string) {
	const missing = "This, I do not have :/"
	if s.Config.StaticDir == "" || security.ValidatePageName(name) != nil {
		http.Error(w, missing, http.StatusNotFound)
		return
	}

	content, err := os.ReadFile(filepath.Join(s.Config.StaticDir, name+".txt"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.Logger.Error("Failed to read text file", "name", name, "error", err)
		}
		http.Error(w, missing, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(content)
}
