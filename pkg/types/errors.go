package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidChunkID        = errors.New("invalid chunk ID")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrMissingFileInfo       = errors.New("file info is required")
	ErrEmptyContent          = errors.New("content cannot be empty")
)

// Service errors shared by the remote strategies
var (
	// ErrNotConfigured means credentials or endpoints for a remote service are missing
	ErrNotConfigured = errors.New("service not configured")
	// ErrServiceUnavailable wraps timeouts, non-2xx responses and connection failures
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrStaleSnapshot means a persisted snapshot was built with another embedding scheme
	ErrStaleSnapshot = errors.New("snapshot built with a different embedding scheme")
	// ErrAuthentication means a remote service rejected the configured credentials
	ErrAuthentication = errors.New("authentication failed")
)
