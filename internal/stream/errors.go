package stream

import (
	"errors"

	"hls-live/internal/session"
)

var (
	// ErrUnauthorized is returned when a publisher presents the wrong stream key.
	ErrUnauthorized = errors.New("invalid stream key")

	// ErrNoActiveSession is returned by Stop when nothing is publishing.
	ErrNoActiveSession = errors.New("no active session")

	// ErrOffline is returned by Stats while the stream is not live.
	ErrOffline = errors.New("stream is offline")

	// ErrInvalidTransition is returned when a hook arrives out of order for its session.
	ErrInvalidTransition = session.ErrInvalidTransition
)
