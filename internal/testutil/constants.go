// Package testutil provides shared testing utilities and constants for cpmgmt.
//
// This package centralizes common test constants and a mock management server
// builder to reduce duplication across test files.
//
// # Key Components
//
// Constants: Shared test values (credentials, session identifiers, commands) defined in constants.go
//
// MockServerBuilder: Fluent interface for creating a mock management API server
// that answers login, logout, show-task and paginated show-* commands
//
// # Usage Examples
//
// Creating a mock server:
//
//	builder := testutil.NewMockServer().
//	    WithTLS().
//	    WithLogin().
//	    WithLogout().
//	    WithPagedObjects("show-hosts", 120)
//	server := builder.Build()
//	defer server.Close()
//
//	// after exercising the client
//	calls := builder.CallCount("show-hosts")
package testutil

// HTTP headers
const (
	ContentTypeHeader = "Content-Type"
	AcceptHeader      = "Accept"
	UserAgentHeader   = "User-Agent"
	SessionHeader     = "X-Chkp-Sid"
)

// Common test values
const (
	ContentTypeJSON = "application/json"
	WebAPIPrefix    = "/web_api/"
)

// Session test values
const (
	TestUser       = "admin"
	TestPassword   = "secret"
	TestBadPass    = "wrong-password"
	TestSID        = "97BVpRfN4j81ogN-V2XqGYmw3DDwIhoSn0og8PiKDiM"
	TestUID        = "7a13a360-9b24-40d7-acd3-5b50247be33e"
	TestAPIVersion = "1.9"
	TestDomain     = "SMC User"
	TestTaskID     = "01234567-89ab-cdef-a930-8c37a59972b3"
)

// Test commands
const (
	CommandLogin    = "login"
	CommandLogout   = "logout"
	CommandShowTask = "show-task"
	CommandPublish  = "publish"
	CommandDiscard  = "discard"
	CommandAddHost  = "add-host"
	CommandShowHost = "show-hosts"
)

// Test error messages
const (
	TestErrorExpectedError           = "Expected error, got nil"
	TestErrorUnexpected              = "Unexpected error: %v"
	TestErrorValidateUnexpected      = "Validate() unexpected error = %v"
	TestErrorExpectedErrorContaining = "Expected error containing %q, got %q"
	TestLoginFailedCode              = "err_login_failed"
	TestLoginFailedMessage           = "Authentication to server failed."
)

// Test server names and identifiers
const (
	TestServerMgmt      = "mgmt.example.com"
	TestServerName      = "test-server"
	TestOTELEndpoint    = "localhost:4317"
	TestServiceName     = "cpmgmt-test"
	TestServiceVersion  = "1.0.0-test"
	TestInvalidPort     = "invalid management server port"
	TestLogName         = "test.log"
	TestPort443         = "443"
	TestMetricsServPort = "2112"
)
