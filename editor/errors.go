package editor

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned for an unknown or closed session ID.
var ErrSessionNotFound = errors.New("editor: session not found")

// ErrTooManySessions is returned by Hub.Open when max_sessions is reached.
var ErrTooManySessions = errors.New("editor: too many sessions")

// ErrUnsupportedFormat is returned by Export for an unknown format name.
var ErrUnsupportedFormat = errors.New("editor: unsupported export format")

// ImportFormatError is returned when imported content cannot be read as an
// HTML document.
type ImportFormatError struct {
	Name   string
	Reason string
}

func (e *ImportFormatError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("editor: import %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("editor: import: %s", e.Reason)
}
