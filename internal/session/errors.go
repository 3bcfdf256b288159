package session

import "errors"

var (
	// ErrSessionActive is returned by Start when a session already exists.
	ErrSessionActive = errors.New("interview session already started")

	// ErrConnectTimeout is returned by Start when the transport did not open
	// within the connect timeout.
	ErrConnectTimeout = errors.New("timed out connecting to realtime session")

	// ErrStopped is returned by Start when Stop ran while it was connecting.
	ErrStopped = errors.New("interview session stopped while connecting")

	ErrNotActive = errors.New("interview session is not active")
	ErrNotPaused = errors.New("interview session is not paused")
)
