package telemetry

// This file defines error message templates for common failure scenarios.
// Templates provide consistent, actionable error messages with troubleshooting steps.
//
// Usage:
//
//	logging.LogError(fmt.Sprintf(telemetry.ErrNonJSONResponseTemplate,
//	    contentType, url, preview))

// Error message templates for common scenarios
const (
	// ErrNonJSONResponseTemplate is logged when the server answers with something other than a JSON object
	ErrNonJSONResponseTemplate = `Management server returned a non-JSON response (Content-Type: %s).

This usually indicates:
1. The management API is not running (check 'api status' on the server)
2. The API does not accept connections from this host (check 'Automatic start' and 'Accept API calls from' settings)
3. A proxy or load balancer answered instead of the management server

Request URL: %s
Response preview: %s`

	// ErrTLSTemplate is logged when the TLS handshake with the management server fails
	ErrTLSTemplate = `TLS handshake with the management server failed.

The server certificate could not be verified.

Troubleshooting steps:
1. Export the server certificate and reference it in config.yaml
2. Or, for lab environments only, accept invalid certificates

Example configuration:
  mgmtserver:
    certificate: /etc/cpmgmt/mgmt.pem
    # acceptInvalidCerts: true

Request URL: %s
Error: %v`

	// ErrLoginFailedTemplate is logged when the server rejects a login
	ErrLoginFailedTemplate = `Login to the management server failed (HTTP %d, code %q).

Server message: %s

Troubleshooting steps:
1. Verify the user and password in config.yaml (or CPMGMT_PASSWORD)
2. For multi-domain servers, verify 'domain' names an existing domain
3. Check that the administrator is not locked out`
)
