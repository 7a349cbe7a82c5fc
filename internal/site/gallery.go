package site

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path"
	"sort"
	"strings"
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Image is a gallery picture.
type Image struct {
	// Path is the URL the image is served from.
	Path string `json:"path"`
	Name string `json:"name"`
}

func newImage(urlPrefix, name string) Image {
	return Image{Path: path.Join(urlPrefix, name), Name: name}
}

// loadImages lists the regular, non hidden files in dir, sorted by name.
func loadImages(dir, urlPrefix string) ([]Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read gallery directory: %w", err)
	}

	images := make([]Image, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		images = append(images, newImage(urlPrefix, entry.Name()))
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, nil
}

// insertRandomChar adds one random alphanumeric character before the
// extension of name: "cat.jpg" becomes "catX.jpg", "README" becomes
// "READMEX".
func insertRandomChar(name string) string {
	c := alphanumeric[rand.IntN(len(alphanumeric))]
	ext := path.Ext(name)
	if ext == "." {
		ext = ""
	}
	return strings.TrimSuffix(name, ext) + string(c) + ext
}
