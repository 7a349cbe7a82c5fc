package site

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// BlogDateLayout is the layout of the date block in blog templates.
const BlogDateLayout = "2006-01-02"

var (
	titlePattern       = metadataPattern("title")
	datePattern        = metadataPattern("date")
	descriptionPattern = metadataPattern("description")
)

func metadataPattern(block string) *regexp.Regexp {
	return regexp.MustCompile(`\{\{-?\s*define\s+"` + block + `"\s*-?\}\}(.*?)\{\{-?\s*end\s*-?\}\}`)
}

// BlogEntry is one article in the blog index.
type BlogEntry struct {
	Title       string
	Description string
	Date        string
	Path        string
}

// parseBlogEntry extracts the title, date and description blocks from a blog
// template.
func parseBlogEntry(content string) BlogEntry {
	match := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(content); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}
	return BlogEntry{
		Title:       match(titlePattern),
		Date:        match(datePattern),
		Description: match(descriptionPattern),
	}
}

// loadBlogEntries reads every .html file in dir and returns the entries
// newest first.
func loadBlogEntries(dir string) ([]BlogEntry, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to list blog directory: %w", err)
	}

	type dated struct {
		entry BlogEntry
		date  time.Time
	}
	entries := make([]dated, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read blog entry: %w", err)
		}

		entry := parseBlogEntry(string(content))
		entry.Path = "/blog/" + filepath.Base(file)

		date, err := time.Parse(BlogDateLayout, entry.Date)
		if err != nil {
			return nil, fmt.Errorf("blog entry %s has invalid date %q", filepath.Base(file), entry.Date)
		}
		entries = append(entries, dated{entry: entry, date: date})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].date.Equal(entries[j].date) {
			return entries[i].date.After(entries[j].date)
		}
		return entries[i].entry.Path < entries[j].entry.Path
	})

	result := make([]BlogEntry, len(entries))
	for i, d := range entries {
		result[i] = d.entry
	}
	return result, nil
}
