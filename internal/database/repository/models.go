package repository

import "time"

// Session is one backend connection attempt, from dial to stop.
type Session struct {
	ID          string
	URL         string
	Chain       string
	NodeVersion string
	StartedAt   time.Time
	FinishedAt  *time.Time
	BlocksSeen  int64
	LastBlock   *int64
	StopReason  *string
}

// Finished reports whether the session has been closed out.
func (s Session) Finished() bool { return s.FinishedAt != nil }
