package mgmt

import (
	"errors"
	"fmt"

	"github.com/fjacquet/cpmgmt/internal/models"
)

// Sentinel errors returned by the client. Match them with errors.Is.
var (
	// ErrTransport wraps network, TLS and DNS failures from the transport.
	ErrTransport = errors.New("transport failure")

	// ErrHeaderConstruction is returned when a request header value contains
	// characters that cannot be sent on the wire.
	ErrHeaderConstruction = errors.New("invalid request header")

	// ErrMalformedResponse is returned when the response body is not a JSON object.
	ErrMalformedResponse = errors.New("malformed response body")

	// ErrMissingField is the target of every MissingFieldError.
	ErrMissingField = errors.New("missing expected field")

	// ErrRedaction is returned when a login payload has no password to redact.
	ErrRedaction = errors.New("failed to locate the password to redact in the login payload")

	// ErrAuditLogNotConfigured is returned by Flush when no log file is set.
	ErrAuditLogNotConfigured = errors.New("audit log file is not set")

	// ErrDomain is the target of every DomainError.
	ErrDomain = errors.New("unsuccessful response from the management server")

	// ErrClientClosed is returned by a transport after Close.
	ErrClientClosed = errors.New("client is closed")
)

// MissingFieldError reports a required field absent from an otherwise
// well-formed response.
type MissingFieldError struct {
	Field    string
	Response *models.Response
}

func (e *MissingFieldError) Error() string {
	if e.Response != nil && e.Response.URL != "" {
		return fmt.Sprintf("%s: %q (url=%s, status=%d)", ErrMissingField, e.Field, e.Response.URL, e.Response.StatusCode)
	}
	return fmt.Sprintf("%s: %q", ErrMissingField, e.Field)
}

// Unwrap lets errors.Is match ErrMissingField.
func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

// DomainError reports a non-success response, including embedded task
// failures. It carries the server's code and message for the caller.
type DomainError struct {
	Command    string
	StatusCode int
	Code       string
	Message    string
	Response   *models.Response
}

func newDomainError(command string, res *models.Response) *DomainError {
	e := &DomainError{Command: command, Response: res}
	if res != nil {
		e.StatusCode = res.StatusCode
		e.Code = res.Code()
		e.Message = res.Message()
		if e.Message == "" && res.HasFailedTask() {
			e.Message = "task did not succeed"
		}
	}
	return e
}

func (e *DomainError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s returned status %d: %s (%s)", ErrDomain, e.Command, e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s returned status %d: %s", ErrDomain, e.Command, e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match ErrDomain.
func (e *DomainError) Unwrap() error {
	return ErrDomain
}

// AsDomainError extracts a *DomainError from err's chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// AsMissingFieldError extracts a *MissingFieldError from err's chain.
func AsMissingFieldError(err error) (*MissingFieldError, bool) {
	var mf *MissingFieldError
	if errors.As(err, &mf) {
		return mf, true
	}
	return nil, false
}
