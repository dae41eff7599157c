package release

import (
	"errors"
	"fmt"
)

// Error kinds returned by the core.
var (
	ErrInvalidSource      = errors.New("invalid source url")
	ErrAlreadyTracked     = errors.New("source already tracked")
	ErrNotFound           = errors.New("source not found")
	ErrUnreachable        = errors.New("upstream unreachable")
	ErrUpstreamRejected   = errors.New("upstream rejected request")
	ErrMalformedUpstream  = errors.New("malformed upstream response")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// UpstreamError is returned when upstream answers with a non-success status.
// It matches ErrUpstreamRejected with errors.Is.
type UpstreamError struct {
	URL        string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream rejected %s: HTTP %d", e.URL, e.StatusCode)
}

// Is lets errors.Is(err, ErrUpstreamRejected) match.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamRejected
}

// Unreachable wraps a transport failure so it matches ErrUnreachable
// while keeping the underlying cause inspectable.
func Unreachable(url string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnreachable, url, err)
}

// StatusCode extracts the upstream HTTP status from err, or 0 if err is not an UpstreamError.
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}
