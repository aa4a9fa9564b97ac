package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// File describes one on-disk replay recording.
type File struct {
	ChartID   int32
	Timestamp int64
	Path      string
	Size      int64
}

// List returns every replay file belonging to userID, grouped implicitly by
// ChartID (callers group by that field as needed for the HTTP response).
func List(base string, userID int32) ([]File, error) {
	root := filepath.Join(base, "record", fmt.Sprint(userID))
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replay: list charts: %w", err)
	}

	var files []File
	for _, chartEntry := range entries {
		if !chartEntry.IsDir() {
			continue
		}
		chartID, err := strconv.ParseInt(chartEntry.Name(), 10, 32)
		if err != nil {
			continue
		}
		chartDir := filepath.Join(root, chartEntry.Name())
		recEntries, err := os.ReadDir(chartDir)
		if err != nil {
			continue
		}
		for _, rec := range recEntries {
			if rec.IsDir() || !strings.HasSuffix(rec.Name(), ".phirarec") {
				continue
			}
			ts, ok := parseTimestamp(rec.Name())
			if !ok {
				continue
			}
			info, err := rec.Info()
			if err != nil {
				continue
			}
			files = append(files, File{
				ChartID: int32(chartID), Timestamp: ts,
				Path: filepath.Join(chartDir, rec.Name()), Size: info.Size(),
			})
		}
	}
	return files, nil
}

// Path resolves the expected path for a single replay without requiring it
// to exist on disk, used by download/delete handlers to validate input
// before touching the filesystem.
func Path(base string, userID, chartID int32, timestamp int64) string {
	return filepath.Join(base, "record", fmt.Sprint(userID), fmt.Sprint(chartID), fmt.Sprintf("%d.phirarec", timestamp))
}

// Delete removes one replay file.
func Delete(base string, userID, chartID int32, timestamp int64) error {
	return os.Remove(Path(base, userID, chartID, timestamp))
}
