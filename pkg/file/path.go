package file

import (
	"os"
	"path/filepath"
	"strings"
)

// WithSuffix inserts suffix between the base name and the extension:
// "/w/video.webm" + "_converted" + ".mp4" -> "/w/video_converted.mp4".
func WithSuffix(path, suffix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + suffix + ext
}

// NonEmpty reports whether path is a regular file with at least one byte.
func NonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// SafeName replaces characters that are not portable in file names.
func SafeName(name string) string {
	return strings.NewReplacer(
		":", "-",
		"/", "-",
		"\\", "-",
		" ", "_",
	).Replace(name)
}
