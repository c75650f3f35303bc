// Package replay feeds recorded or generated attempt logs through the
// service, either in process or against a running server.
package replay

import "time"

// Config holds configuration for one replay run.
type Config struct {
	Source    string        // Path to an .xlsx, .csv or .json attempt log; empty generates attempts
	SheetName string        // Sheet to read from spreadsheets
	BaseURL   string        // Service URL; empty replays in process
	Workers   int           // Users replayed concurrently
	Timeout   time.Duration // HTTP request timeout
	Output    string        // Optional file for the final snapshots
	Verbose   bool          // Log every attempt

	// SessionGap splits a learner's attempts into sessions; zero uses
	// DefaultSessionGap.
	SessionGap time.Duration

	// Generation settings, used when Source is empty.
	Users       int
	PerUser     int
	Seed        uint64
	GeneratedAt time.Time
}

// Stats holds replay statistics.
type Stats struct {
	Loaded     int
	RowErrors  []string
	Users      int
	Submitted  int
	Processed  int
	Duplicates int
	Failed     int
	Sessions   int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
