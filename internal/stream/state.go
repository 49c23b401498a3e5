package stream

import (
	"time"

	"hls-live/internal/media"
	"hls-live/internal/session"
	"hls-live/internal/transcoder"
)

// State is the controller's view of what is live. IsLive and StartTime are
// derived from the sessions in the publishing state; the rest is fed by the
// transcoder and the play hooks.
type State struct {
	IsLive bool
	// IsPaused is kept for API compatibility. Nothing sets it.
	IsPaused  bool
	StartTime *time.Time
	Viewers   int
	Stats     media.Stats
	Output    transcoder.PlaylistInfo
}

// Status is the summary the REST layer reports for /api/stream/status.
type Status struct {
	IsLive    bool       `json:"isLive"`
	IsPaused  bool       `json:"isPaused"`
	StartTime *time.Time `json:"startTime"`
	Viewers   int        `json:"viewers"`
}

// Label is "live", "paused" or "offline".
func (s Status) Label() string {
	switch {
	case s.IsLive:
		return "live"
	case s.IsPaused:
		return "paused"
	default:
		return "offline"
	}
}

// Uptime is the time since the stream went live, or zero while offline.
func (s Status) Uptime(now time.Time) time.Duration {
	if s.StartTime == nil {
		return 0
	}
	return now.Sub(*s.StartTime)
}

// Snapshot is a consistent copy of everything the controller tracks.
type Snapshot struct {
	Status
	Stats             media.Stats             `json:"stats"`
	Output            transcoder.PlaylistInfo `json:"output"`
	Sessions          []session.Session       `json:"sessions"`
	TranscoderRunning bool                    `json:"transcoderRunning"`
}

// StopResult reports what Stop did.
type StopResult struct {
	StoppedAt    time.Time    `json:"stoppedAt"`
	Sessions     []session.ID `json:"sessions"`
	KickFailures int          `json:"kickFailures"`
}

func (s *State) status() Status {
	st := Status{IsLive: s.IsLive, IsPaused: s.IsPaused, Viewers: s.Viewers}
	if s.StartTime != nil {
		t := *s.StartTime
		st.StartTime = &t
	}
	return st
}
