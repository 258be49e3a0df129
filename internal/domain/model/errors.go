package model

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors of the credential vault. Typed errors below report a match
// against the matching sentinel through errors.Is.
var (
	// ErrConfiguration means a required secret or setting is missing at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation means caller input was rejected before any side effect.
	ErrValidation = errors.New("validation error")

	// ErrNotFound means no active credential exists for the (app, workspace) pair.
	ErrNotFound = errors.New("credentials not found")

	// ErrStorage means the backing database rejected an operation.
	ErrStorage = errors.New("storage error")

	// ErrDecryption is the parent of every ciphertext failure.
	ErrDecryption = errors.New("decryption failed")

	// ErrIntegrity means the authentication tag did not match: the blob was
	// tampered with or the master key changed.
	ErrIntegrity = fmt.Errorf("%w: integrity check failed", ErrDecryption)

	// ErrMalformedCiphertext means the blob could not be decoded or split.
	ErrMalformedCiphertext = fmt.Errorf("%w: malformed ciphertext", ErrDecryption)
)

// ValidationError reports which input field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps a database failure with the store operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

// Unwrap returns the driver error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is matches ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// DecryptionFailureError is returned by the credential store when a stored
// token exists but cannot be decrypted with the current master key.
type DecryptionFailureError struct {
	AppName     string
	WorkspaceID string
	Err         error
}

func (e *DecryptionFailureError) Error() string {
	return fmt.Sprintf("decrypt credentials for app %q in workspace %q: %v", e.AppName, e.WorkspaceID, e.Err)
}

// Unwrap returns the underlying ErrIntegrity or ErrMalformedCiphertext.
func (e *DecryptionFailureError) Unwrap() error { return e.Err }

// NetworkError is a transport failure reaching the remote API: timeout,
// DNS, refused or reset connection. Callers may retry with backoff.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("notion request %s %s failed: %v", e.Method, e.Path, e.Err)
}

// Unwrap returns the transport error.
func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable is always true for transport failures.
func (e *NetworkError) Retryable() bool { return true }

// Timeout reports whether the failure was a deadline expiry.
func (e *NetworkError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// InvalidResponseError means the remote answered with a body that is not a
// JSON object, regardless of HTTP status.
type InvalidResponseError struct {
	StatusCode int
	Err        error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid JSON response from Notion API (status %d): %v", e.StatusCode, e.Err)
}

// Unwrap returns the decode error.
func (e *InvalidResponseError) Unwrap() error { return e.Err }

// Retryable is true: unparseable bodies are treated as transient upstream faults.
func (e *InvalidResponseError) Retryable() bool { return true }

// RemoteErrorKind classifies a RemoteAPIError by HTTP status.
type RemoteErrorKind string

const (
	RemoteInvalidRequest RemoteErrorKind = "invalid_request"
	RemoteUnauthorized   RemoteErrorKind = "unauthorized"
	RemoteForbidden      RemoteErrorKind = "forbidden"
	RemoteNotFound       RemoteErrorKind = "not_found"
	RemoteConflict       RemoteErrorKind = "conflict"
	RemoteRateLimited    RemoteErrorKind = "rate_limited"
	RemoteServerError    RemoteErrorKind = "server_error"
	RemoteUnknown        RemoteErrorKind = "unknown"
)

// RemoteAPIError is a semantic rejection by the Notion API (HTTP status >= 400).
// Message and Code are copied from the error body. RetryAfter is the
// upstream Retry-After header, zero when absent or unparseable.
type RemoteAPIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *RemoteAPIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notion api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("notion api error %d: %s", e.StatusCode, e.Message)
}

// Kind maps the HTTP status to an error class.
func (e *RemoteAPIError) Kind() RemoteErrorKind {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return RemoteInvalidRequest
	case http.StatusUnauthorized:
		return RemoteUnauthorized
	case http.StatusForbidden:
		return RemoteForbidden
	case http.StatusNotFound:
		return RemoteNotFound
	case http.StatusConflict:
		return RemoteConflict
	case http.StatusTooManyRequests:
		return RemoteRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return RemoteServerError
	default:
		if e.StatusCode >= 500 {
			return RemoteServerError
		}
		return RemoteUnknown
	}
}

// Retryable is true for rate limiting and server errors.
func (e *RemoteAPIError) Retryable() bool {
	k := e.Kind()
	return k == RemoteRateLimited || k == RemoteServerError
}

// IsAuth is true for 401 and 403: the caller should refresh the credential
// rather than retry.
func (e *RemoteAPIError) IsAuth() bool {
	k := e.Kind()
	return k == RemoteUnauthorized || k == RemoteForbidden
}

// UserMessage returns a message suitable for end users.
func (e *RemoteAPIError) UserMessage() string {
	switch e.Kind() {
	case RemoteInvalidRequest:
		return "Invalid request to Notion API. Please check your request parameters."
	case RemoteUnauthorized:
		return "Notion API key is invalid or expired. Please update your credentials."
	case RemoteForbidden:
		return "You do not have permission to access this Notion resource."
	case RemoteNotFound:
		return "The requested Notion resource was not found."
	case RemoteConflict:
		return "Conflict with existing data. The resource may have been modified."
	case RemoteRateLimited:
		return "Notion API rate limit exceeded. Please try again in a few moments."
	case RemoteServerError:
		return "Notion API server error. Please try again later."
	default:
		return "An error occurred while communicating with Notion API."
	}
}

// IsRetryable reports whether any error in err's chain is marked retryable.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

// IsAuthError reports whether err carries a 401/403 remote rejection.
func IsAuthError(err error) bool {
	var apiErr *RemoteAPIError
	return errors.As(err, &apiErr) && apiErr.IsAuth()
}
