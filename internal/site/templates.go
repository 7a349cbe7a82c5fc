package site

import (
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path/filepath"
	"strings"
)

// LayoutDir is the template subdirectory holding shared layouts. Every page
// is parsed together with all layouts.
const LayoutDir = "layouts"

// ErrPageNotFound is returned when no template exists for a page.
var ErrPageNotFound = errors.New("page not found")

// loadTemplates parses every page under dir. Pages are keyed by their slash
// separated path relative to dir, for example "index.html" or
// "blog/hello.html".
func loadTemplates(dir string) (map[string]*template.Template, error) {
	layouts, err := filepath.Glob(filepath.Join(dir, LayoutDir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}

	pages := make(map[string]*template.Template)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == LayoutDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".html") {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)

		files := append(append([]string{}, layouts...), path)
		tmpl, err := template.New(d.Name()).ParseFiles(files...)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", key, err)
		}
		pages[key] = tmpl
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return pages, nil
}
