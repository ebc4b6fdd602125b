package file

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FindRecentAfter lists regular files under dir modified after startTime,
// largest first.
func FindRecentAfter(dir string, startTime time.Time) ([]string, error) {
	type candidate struct {
		path string
		size int64
	}
	var found []candidate

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && info.ModTime().After(startTime) {
			found = append(found, candidate{path: path, size: info.Size()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].size > found[j].size
	})
	ret := make([]string, 0, len(found))
	for _, c := range found {
		ret = append(ret, c.path)
	}
	return ret, nil
}
