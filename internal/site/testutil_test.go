package site

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

const testLayout = `{{define "base"}}<html><title>{{template "title" .}}</title><body>{{template "content" .}}</body></html>{{end}}`

// writeFiles creates files (relative path -> content) under dir.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// hasPage reports whether the cache has a template for page.
func hasPage(c *Cache, page string) bool {
	return !errors.Is(c.Render(io.Discard, page, nil), ErrPageNotFound)
}

func article(title, date, description string) string {
	return `{{template "base" .}}
{{define "title"}}` + title + `{{end}}
{{define "date"}}` + date + `{{end}}
{{define "description"}}` + description + `{{end}}
{{define "content"}}<p>` + title + `</p>{{end}}`
}

// newTestSite lays out a minimal site and returns its template and gallery
// directories.
func newTestSite(t *testing.T) (templateDir, galleryDir string) {
	t.Helper()
	root := t.TempDir()
	templateDir = filepath.Join(root, "templates")
	galleryDir = filepath.Join(root, "static", "gallery")

	writeFiles(t, templateDir, map[string]string{
		"layouts/base.html": testLayout,
		"index.html":        `{{template "base" .}}{{define "title"}}Home{{end}}{{define "content"}}welcome{{end}}`,
		"blogindex.html":    `{{template "base" .}}{{define "title"}}Blog{{end}}{{define "content"}}{{range .BlogEntries}}[{{.Title}}|{{.Path}}]{{end}}{{end}}`,
		"gallery.html":      `{{template "base" .}}{{define "title"}}Gallery{{end}}{{define "content"}}{{len .Images}}{{end}}`,
		"blog/first.html":   article("First", "2024-01-05", "the first one"),
		"blog/second.html":  article("Second", "2025-02-10", "the second one"),
	})
	writeFiles(t, galleryDir, map[string]string{
		"cat.jpg":   "meow",
		"dog.png":   "woof",
		".DS_Store": "junk",
	})
	return templateDir, galleryDir
}
