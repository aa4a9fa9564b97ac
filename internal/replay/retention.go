package replay

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Retention is how long a replay file is kept before the daily sweep
// deletes it.
const Retention = 4 * 24 * time.Hour

// SweepInterval is how often the retention sweep runs.
const SweepInterval = 24 * time.Hour

// RunRetentionSweep blocks, running Sweep once per SweepInterval, until ctx
// is canceled. It is meant to be launched as its own goroutine from main.
func RunRetentionSweep(ctx context.Context, base string, log *slog.Logger) {
	t := time.NewTicker(SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := Sweep(base, time.Now()); err != nil {
				log.Error("replay retention sweep failed", "err", err)
			}
		}
	}
}

// Sweep deletes replay files under <base>/record whose filename-encoded
// timestamp is older than now-Retention, then removes any directory left
// empty by that deletion.
func Sweep(base string, now time.Time) error {
	root := filepath.Join(base, "record")
	cutoff := now.Add(-Retention).UnixMilli()

	var chartDirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".phirarec") {
			return nil
		}
		ts, ok := parseTimestamp(d.Name())
		if ok && ts < cutoff {
			if rmErr := os.Remove(path); rmErr == nil {
				chartDirs = append(chartDirs, filepath.Dir(path))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, dir := range chartDirs {
		removeIfEmpty(dir)
		removeIfEmpty(filepath.Dir(dir))
	}
	return nil
}

func parseTimestamp(name string) (int64, bool) {
	base := strings.TrimSuffix(name, ".phirarec")
	ts, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 0 {
		return
	}
	os.Remove(dir)
}
