package site

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"

	"homesite/internal/security"
)

// maxNameAttempts bounds the search for a free gallery file name.
const maxNameAttempts = 64

// Options configures a Cache.
type Options struct {
	// TemplateDir holds page templates; TemplateDir/blog holds articles.
	TemplateDir string

	// GalleryDir holds gallery images on disk.
	GalleryDir string

	// GalleryURL is the URL prefix gallery images are served under.
	GalleryURL string
}

// Cache holds the parsed templates, blog index and gallery listing.
type Cache struct {
	opts Options

	mu       sync.RWMutex
	pages    map[string]*template.Template
	blog     []BlogEntry
	images   []Image
	reserved map[string]bool
}

// New creates a cache and performs the initial load. Unlike later reloads,
// the initial load must succeed.
func New(opts Options) (*Cache, error) {
	if opts.GalleryURL == "" {
		opts.GalleryURL = "/static/gallery"
	}
	c := &Cache{
		opts:     opts,
		pages:    map[string]*template.Template{},
		reserved: map[string]bool{},
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	if err := c.ReloadGallery(); err != nil {
		return nil, err
	}
	return c, nil
}

// BlogDir is the directory blog articles are read from.
func (c *Cache) BlogDir() string {
	return filepath.Join(c.opts.TemplateDir, "blog")
}

// ReloadTemplates re-parses every page template. On failure the previously
// loaded templates stay in use.
func (c *Cache) ReloadTemplates() error {
	pages, err := loadTemplates(c.opts.TemplateDir)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.pages = pages
	c.mu.Unlock()
	return nil
}

// ReloadBlogEntries rebuilds the blog index. On failure the previous index
// stays in use.
func (c *Cache) ReloadBlogEntries() error {
	entries, err := loadBlogEntries(c.BlogDir())
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.blog = entries
	c.mu.Unlock()
	return nil
}

// Reload reloads templates and blog entries. Both are attempted even if one
// fails.
func (c *Cache) Reload() error {
	return errors.Join(c.ReloadTemplates(), c.ReloadBlogEntries())
}

// ReloadGallery rescans the gallery directory.
func (c *Cache) ReloadGallery() error {
	images, err := loadImages(c.opts.GalleryDir, c.opts.GalleryURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.images = images
	c.mu.Unlock()
	return nil
}

// Render executes the template for page into w. The output is buffered so
// nothing is written when execution fails. Returns ErrPageNotFound if the
// page does not exist.
func (c *Cache) Render(w io.Writer, page string, data any) error {
	c.mu.RLock()
	tmpl, ok := c.pages[page]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", page, ErrPageNotFound)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// BlogEntries returns the blog index, newest first.
func (c *Cache) BlogEntries() []BlogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]BlogEntry(nil), c.blog...)
}

// Images returns the gallery listing in stored order.
func (c *Cache) Images() []Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Image(nil), c.images...)
}

// ShuffledImages returns the gallery listing in random order. The shared
// listing is left untouched.
func (c *Cache) ShuffledImages() []Image {
	images := c.Images()
	rand.Shuffle(len(images), func(i, j int) {
		images[i], images[j] = images[j], images[i]
	})
	return images
}

// AddImage stores content in the gallery under name. If the name is taken, a
// random alphanumeric character is inserted before the extension until it
// is free. Returns the stored image.
func (c *Cache) AddImage(name string, content io.Reader) (Image, error) {
	name, err := security.SanitizeUploadName(name)
	if err != nil {
		return Image{}, err
	}
	if err := os.MkdirAll(c.opts.GalleryDir, security.PermDirectory); err != nil {
		return Image{}, fmt.Errorf("failed to create gallery directory: %w", err)
	}

	var file *os.File
	for attempt := 0; ; attempt++ {
		if attempt == maxNameAttempts {
			return Image{}, fmt.Errorf("no free file name for %s", name)
		}
		if !c.reserve(name) {
			name = insertRandomChar(name)
			continue
		}

		file, err = security.CreateExclusiveFile(filepath.Join(c.opts.GalleryDir, name), security.PermPublicFile)
		if errors.Is(err, os.ErrExist) {
			c.release(name)
			name = insertRandomChar(name)
			continue
		}
		if err != nil {
			c.release(name)
			return Image{}, fmt.Errorf("failed to create image file: %w", err)
		}
		break
	}

	path := file.Name()
	_, err = io.Copy(file, content)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		c.release(name)
		return Image{}, fmt.Errorf("failed to write image: %w", err)
	}

	img := newImage(c.opts.GalleryURL, name)
	c.mu.Lock()
	c.images = append(c.images, img)
	delete(c.reserved, name)
	c.mu.Unlock()
	return img, nil
}

// reserve claims name if neither a listed image nor a concurrent upload
// uses it.
func (c *Cache) reserve(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved[name] {
		return false
	}
	for _, img := range c.images {
		if img.Name == name {
			return false
		}
	}
	c.reserved[name] = true
	return true
}

func (c *Cache) release(name string) {
	c.mu.Lock()
	delete(c.reserved, name)
	c.mu.Unlock()
}
