package matchservice

import "time"

// Timing rules for the per-match task lifecycle, relative to kickoff T.
const (
	// ThreadCreateLead is how far before kickoff the discussion thread opens.
	ThreadCreateLead = 48 * time.Hour
	// LiveReportingLead is how far before kickoff live reporting starts.
	LiveReportingLead = 5 * time.Minute
	// PostMatchGrace is how long after kickoff the match still counts as live.
	PostMatchGrace = 3 * time.Hour
	// TaskExpiryCutoff is how far past its scheduled time a SCHEDULED row is
	// treated as abandoned and forced to EXPIRED.
	TaskExpiryCutoff = 6 * time.Hour
)

// summaryTimeLayout renders ETAs in task-status summaries.
const summaryTimeLayout = "2006-01-02 15:04:05 UTC"
