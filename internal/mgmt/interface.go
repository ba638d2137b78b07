// Package mgmt provides interfaces for the management API client.
// These interfaces let the dispatcher run against a mock transport in unit
// tests and let front-ends depend on the session operations only.
package mgmt

import (
	"context"
	"net/http"

	"github.com/fjacquet/cpmgmt/internal/models"
)

// Request is one HTTP POST issued by the dispatcher.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// RawResponse is the undecoded answer to a Request.
type RawResponse struct {
	StatusCode int
	URL        string
	Headers    http.Header
	Body       []byte
}

// Transport executes a single request against the management server.
//
// Implementations must:
//   - Apply the TLS, proxy and timeout settings they were built with
//   - Return an error only for failures below HTTP (network, TLS, DNS)
//   - Release the connection before returning
//
// The primary implementation is HTTPTransport, which uses Resty.
type Transport interface {
	// Send posts req and returns the status, headers and raw body.
	Send(ctx context.Context, req *Request) (*RawResponse, error)

	// Close releases idle connections. Further Sends fail with ErrClientClosed.
	Close() error
}

// API is the set of session operations front-ends build on.
// *Client is the implementation.
type API interface {
	Login(ctx context.Context, user, password string) (*models.Response, error)
	Logout(ctx context.Context) (*models.Response, error)
	Call(ctx context.Context, command string, payload models.Payload) (*models.Response, error)
	CallAndCheck(ctx context.Context, command string, payload models.Payload) (*models.Response, error)
	Query(ctx context.Context, command, detailsLevel string) (*models.Response, error)
	QueryPayload(ctx context.Context, command string, payload models.Payload) (*models.Response, error)
	IsLoggedIn() bool
}

var _ API = (*Client)(nil)
var _ Transport = (*HTTPTransport)(nil)
