package session

import (
	"path"
	"strings"
	"time"
)

// ID is the opaque session identifier assigned by the ingest transport.
type ID string

// State is the lifecycle position of one publish session.
type State string

const (
	StateIdle        State = "idle"
	StateAuthorizing State = "authorizing"
	StatePublishing  State = "publishing"
	StateEnded       State = "ended"
)

// CanTransition reports whether a session may move from s to next.
// Idle -> Authorizing -> Publishing -> Ended, with Idle -> Publishing allowed
// for transports that skip the pre-publish hook, and any state -> Ended.
func (s State) CanTransition(next State) bool {
	switch next {
	case StateAuthorizing:
		return s == StateIdle
	case StatePublishing:
		return s == StateIdle || s == StateAuthorizing
	case StateEnded:
		return s != StateEnded
	default:
		return false
	}
}

// Event is what the ingest transport reports for every lifecycle callback.
type Event struct {
	SessionID ID                `json:"id"`
	Path      string            `json:"path"`
	Args      map[string]string `json:"args,omitempty"`
}

// StreamKey returns the trailing path segment, which publishers present as credential.
// "/live/mykey" -> "mykey".
func (e Event) StreamKey() string {
	return StreamKeyFromPath(e.Path)
}

// StreamKeyFromPath returns the last segment of an ingest path.
func StreamKeyFromPath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// Session is the registry entry for one publish connection.
type Session struct {
	ID        ID                `json:"id"`
	Path      string            `json:"path"`
	StreamKey string            `json:"-"`
	StartTime time.Time         `json:"startTime"`
	Args      map[string]string `json:"args,omitempty"`
	State     State             `json:"state"`
}
