package scanning

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFileLocked is returned when a file is held open exclusively by another process.
	ErrFileLocked = errors.New("file is locked")

	// ErrRemoteNotFound signals the API has no record of the requested resource.
	ErrRemoteNotFound = errors.New("remote resource not found")

	// ErrUploadRejected is returned when an upload response carries no analysis ID.
	ErrUploadRejected = errors.New("upload failed, no analysis ID returned")

	// ErrSizeLimitExceeded is returned for files larger than the configured maximum.
	ErrSizeLimitExceeded = errors.New("file exceeds size limit")

	// ErrPollTimeout is returned when an analysis does not complete in time.
	ErrPollTimeout = errors.New("analysis timed out")

	// ErrAnalysisLost is returned when the API forgets an analysis mid-poll.
	ErrAnalysisLost = errors.New("analysis not found while polling")

	// ErrDeserialization is returned when a response body cannot be decoded.
	ErrDeserialization = errors.New("failed to decode response")
)

// APIError is a non-success response from the reputation API.
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: status %d (%s): %s", e.Op, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, msg)
}

// NotFound reports whether the API answered 404.
func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// Retriable reports whether the call may succeed if repeated: throttling or a
// server-side fault.
func (e *APIError) Retriable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// Is lets errors.Is(err, ErrRemoteNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrRemoteNotFound && e.NotFound()
}

// IsRetriable reports whether err wraps a retriable APIError.
func IsRetriable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retriable()
}
