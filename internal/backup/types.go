// Package backup takes periodic, verified snapshots of the SQLite store and
// prunes them with a tiered retention policy.
package backup

import (
	"time"
)

// Config holds snapshot service configuration.
type Config struct {
	// DBPath is the SQLite database file to snapshot.
	DBPath string

	// Dir is where snapshots are written.
	Dir string

	// Interval between snapshots (default: 1 hour).
	Interval time.Duration

	// Retention bounds how many snapshots survive per age tier.
	Retention RetentionPolicy

	// Verify runs an integrity check on each snapshot.
	Verify bool
}

// RetentionPolicy defines how many snapshots to keep at each tier:
//   - Hourly: less than 24 hours old
//   - Daily: 1 to 7 days old
//   - Weekly: 7 to 30 days old
//   - Monthly: 30 to 365 days old
//
// Older snapshots are always removed.
type RetentionPolicy struct {
	Hourly  int `yaml:"hourly"`
	Daily   int `yaml:"daily"`
	Weekly  int `yaml:"weekly"`
	Monthly int `yaml:"monthly"`
}

// DefaultRetention keeps a day of hourlies, a week of dailies, a month of
// weeklies and a year of monthlies.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{Hourly: 24, Daily: 7, Weekly: 4, Monthly: 12}
}

// Info describes one snapshot file.
type Info struct {
	Path      string
	Timestamp time.Time // taken from the file name
	Size      int64
}

// Result reports one snapshot run.
type Result struct {
	Path     string
	Duration time.Duration
	Size     int64
	Verified bool
	Pruned   int
}
