// Package datalake provides an HTTP client for the Azure Data Lake Store
// WebHDFS REST API with automatic retry and error classification.
package datalake

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for status code and remote exception classification.
// Use errors.Is(err, datalake.ErrNotFound) to check.
var (
	ErrBadRequest    = errors.New("datalake: bad request")
	ErrUnauthorized  = errors.New("datalake: unauthorized")
	ErrForbidden     = errors.New("datalake: forbidden")
	ErrNotFound      = errors.New("datalake: not found")
	ErrAlreadyExists = errors.New("datalake: already exists")
	ErrConflict      = errors.New("datalake: conflict")
	ErrThrottled     = errors.New("datalake: throttled")
	ErrServerError   = errors.New("datalake: server error")
)

// RemoteError wraps a sentinel error with the HTTP status code, the
// server request id, and the WebHDFS RemoteException details.
type RemoteError struct {
	StatusCode int
	RequestID  string
	Exception  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if e.Exception != "" {
		msg = e.Exception + ": " + e.Message
	}

	if e.RequestID != "" {
		return fmt.Sprintf("datalake: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, msg)
	}

	return fmt.Sprintf("datalake: HTTP %d: %s", e.StatusCode, msg)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// remoteExceptionBody mirrors the WebHDFS error payload.
type remoteExceptionBody struct {
	RemoteException struct {
		Exception     string `json:"exception"`
		Message       string `json:"message"`
		JavaClassName string `json:"javaClassName"`
	} `json:"RemoteException"`
}

// newRemoteError builds a RemoteError from a non-2xx response body. Bodies
// that are not a RemoteException are kept verbatim as the message.
func newRemoteError(status int, requestID string, body []byte) *RemoteError {
	re := &RemoteError{
		StatusCode: status,
		RequestID:  requestID,
		Message:    string(body),
	}

	var parsed remoteExceptionBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.RemoteException.Exception != "" {
		re.Exception = parsed.RemoteException.Exception
		re.Message = parsed.RemoteException.Message
	}

	re.Err = classifyException(re.Exception)
	if re.Err == nil {
		re.Err = classifyStatus(status)
	}

	return re
}

// classifyException maps a WebHDFS exception name to a sentinel error.
func classifyException(name string) error {
	switch name {
	case "FileNotFoundException":
		return ErrNotFound
	case "FileAlreadyExistsException":
		return ErrAlreadyExists
	case "AccessControlException", "SecurityException":
		return ErrForbidden
	case "BadOffsetException", "IllegalArgumentException":
		return ErrBadRequest
	case "ConcurrentWriteException":
		return ErrConflict
	case "ThrottledException":
		return ErrThrottled
	default:
		return nil
	}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
