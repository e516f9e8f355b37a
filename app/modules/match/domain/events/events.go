package matchevents

import "time"

// Topics carried over the event bus between the scheduler and the bot.
const (
	// Commands published by this service.
	MatchThreadCreate  = "match.thread.create"
	LiveReportingStart = "match.livereporting.start"

	// Confirmations published by the bot.
	MatchThreadCreated     = "match.thread.created"
	LiveReportingStopped   = "match.livereporting.stopped"
	LiveReportingCompleted = "match.livereporting.completed"
)

// MatchThreadCreatePayload asks the bot to open a match-day thread.
type MatchThreadCreatePayload struct {
	MatchID     int64     `json:"match_id"`
	Opponent    string    `json:"opponent"`
	DateTime    time.Time `json:"date_time"`
	Competition string    `json:"competition,omitempty"`
	Venue       string    `json:"venue,omitempty"`
	IsHomeGame  bool      `json:"is_home_game"`
}

// MatchThreadCreatedPayload confirms a thread exists for the match.
type MatchThreadCreatedPayload struct {
	MatchID  int64  `json:"match_id"`
	ThreadID string `json:"thread_id"`
}

// LiveReportingStartPayload asks the bot to begin live reporting.
type LiveReportingStartPayload struct {
	MatchID  int64  `json:"match_id"`
	ThreadID string `json:"thread_id,omitempty"`
}

// LiveReportingStoppedPayload reports that live reporting ended early.
type LiveReportingStoppedPayload struct {
	MatchID int64  `json:"match_id"`
	Reason  string `json:"reason,omitempty"`
}

// LiveReportingCompletedPayload reports that live reporting ran to completion.
type LiveReportingCompletedPayload struct {
	MatchID int64 `json:"match_id"`
}
