package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Dirs are the directory handles the host provides at startup.
type Dirs struct {
	// ExternalMedia lists app-specific external media directories; only the
	// first one is considered.
	ExternalMedia []string
	// AppName is the subdirectory created under the external media directory.
	AppName string
	// Files is the app-internal storage directory used as fallback.
	Files string
}

// ResolveOutputLocation returns the directory captured images are written to:
// <ExternalMedia[0]>/<AppName>, created if absent, or Files when that
// directory is unavailable. It never fails.
func ResolveOutputLocation(d Dirs) string {
	if len(d.ExternalMedia) > 0 && d.ExternalMedia[0] != "" {
		mediaDir := filepath.Join(d.ExternalMedia[0], d.AppName)
		if err := os.MkdirAll(mediaDir, 0o755); err != nil {
			debug.Verbose("storage: cannot create %s: %v", mediaDir, err)
		}
		if isDir(mediaDir) {
			return mediaDir
		}
	}

	// The fallback is best effort too; the camera reports write failures.
	if err := os.MkdirAll(d.Files, 0o755); err != nil {
		debug.Verbose("storage: cannot create %s: %v", d.Files, err)
	}
	return d.Files
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// ListCaptures returns the image files in dir in natural order
// (IMG_2.jpg before IMG_10.jpg). A missing directory yields no files.
func ListCaptures(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	natsort.Sort(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}
