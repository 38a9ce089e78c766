package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "memora-"
	fileSuffix = ".db"
	timeLayout = "20060102-150405.000000"
)

func snapshotName(t time.Time) string {
	return filePrefix + t.UTC().Format(timeLayout) + fileSuffix
}

// parseSnapshotName returns the timestamp encoded in a snapshot file name.
func parseSnapshotName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	ts, err := time.Parse(timeLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// List returns the snapshots in dir, newest first. Files that are not
// snapshots are ignored.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseSnapshotName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Timestamp: ts,
			Size:      info.Size(),
		})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// expired picks the snapshots the policy drops. snapshots must be sorted
// newest first.
func expired(snapshots []Info, policy RetentionPolicy, now time.Time) []string {
	var drop []string
	kept := map[int]int{}
	limits := [...]int{policy.Hourly, policy.Daily, policy.Weekly, policy.Monthly}

	for _, s := range snapshots {
		tier := -1
		switch age := now.Sub(s.Timestamp); {
		case age < 24*time.Hour:
			tier = 0
		case age < 7*24*time.Hour:
			tier = 1
		case age < 30*24*time.Hour:
			tier = 2
		case age < 365*24*time.Hour:
			tier = 3
		}
		if tier < 0 || kept[tier] >= limits[tier] {
			drop = append(drop, s.Path)
			continue
		}
		kept[tier]++
	}
	return drop
}

// applyRetention removes expired snapshots from dir and reports how many
// were removed.
func applyRetention(dir string, policy RetentionPolicy, now time.Time) (int, error) {
	snapshots, err := List(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	var lastErr error
	for _, path := range expired(snapshots, policy, now) {
		if err := os.Remove(path); err != nil {
			lastErr = err
			continue
		}
		removed++
	}
	if lastErr != nil {
		return removed, fmt.Errorf("failed to delete some snapshots: %w", lastErr)
	}
	return removed, nil
}
