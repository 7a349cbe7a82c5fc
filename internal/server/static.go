package server

import (
	"net/http"
	"os"
)

// fileOnlyFS serves regular files and reports directories as missing, so
// the static file server never lists a directory.
type fileOnlyFS struct {
	fs http.FileSystem
}

func (f fileOnlyFS) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

func staticHandler(dir string) http.Handler {
	return http.StripPrefix("/static/", http.FileServer(fileOnlyFS{fs: http.Dir(dir)}))
}
