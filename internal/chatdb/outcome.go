package chatdb

import "errors"

var (
	ErrTransactionFailure = errors.New("storage transaction failed")
	ErrParseFailure       = errors.New("stored data could not be parsed")
)

// Path names the storage path that served an operation.
type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
	PathFailed   Path = "failed"
)

// Outcome is returned by every public ChatDB operation in place of an error.
// Err holds the primary path error when Path is PathFallback, and the primary
// and fallback errors when Path is PathFailed.
type Outcome struct {
	Path Path
	Err  error
}

func (o Outcome) Degraded() bool {
	return o.Path != PathPrimary
}
