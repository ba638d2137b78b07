// Shared test constants and helpers used across the client test files.

package mgmt

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/testutil"
)

// Shared test constants - aliased from testutil
const (
	sessionHeader  = testutil.SessionHeader
	testUser       = testutil.TestUser
	testPassword   = testutil.TestPassword
	testBadPass    = testutil.TestBadPass
	testSID        = testutil.TestSID
	testUID        = testutil.TestUID
	testAPIVersion = testutil.TestAPIVersion
	testDomain     = testutil.TestDomain
	testTaskID     = testutil.TestTaskID

	cmdPublish  = testutil.CommandPublish
	cmdAddHost  = testutil.CommandAddHost
	cmdShowHost = testutil.CommandShowHost

	testErrorUnexpected = testutil.TestErrorUnexpected
)

// testConfig returns a configuration pointing at server.
func testConfig(t *testing.T, server *httptest.Server) models.Config {
	t.Helper()

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}

	var cfg models.Config
	cfg.MgmtServer.Host = u.Hostname()
	cfg.MgmtServer.Port = u.Port()
	cfg.MgmtServer.AcceptInvalidCerts = true
	cfg.SetDefaults()
	return cfg
}

// newTestClient builds a client for server with a 1ms poll interval.
// The transport is closed when the test ends.
func newTestClient(t *testing.T, server *httptest.Server, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{WithPollInterval(time.Millisecond)}, opts...)
	client, err := New(testConfig(t, server), opts...)
	if err != nil {
		t.Fatalf(testErrorUnexpected, err)
	}
	t.Cleanup(func() { _ = client.transport.Close() })
	return client
}

// loggedInClient builds a client for server and logs it in.
func loggedInClient(t *testing.T, server *httptest.Server, opts ...Option) *Client {
	t.Helper()

	client := newTestClient(t, server, opts...)
	res, err := client.Login(context.Background(), testUser, testPassword)
	if err != nil {
		t.Fatalf(testErrorUnexpected, err)
	}
	if res.IsNotSuccess() {
		t.Fatalf("login failed with status %d", res.StatusCode)
	}
	return client
}

// fakeTransport answers every Send with the next queued response.
type fakeTransport struct {
	responses []*RawResponse
	err       error
	requests  []*Request
	closed    bool
}

func (f *fakeTransport) Send(_ context.Context, req *Request) (*RawResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &RawResponse{StatusCode: 200, URL: req.URL, Body: []byte(`{}`)}, nil
	}
	res := f.responses[0]
	f.responses = f.responses[1:]
	if res.URL == "" {
		res.URL = req.URL
	}
	return res, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// newFakeClient builds a client whose requests go to transport.
func newFakeClient(t *testing.T, transport Transport) *Client {
	t.Helper()

	var cfg models.Config
	cfg.MgmtServer.Host = testutil.TestServerMgmt
	client, err := New(cfg, WithTransport(transport), WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf(testErrorUnexpected, err)
	}
	return client
}

func rawJSON(status int, body string) *RawResponse {
	return &RawResponse{StatusCode: status, Body: []byte(body)}
}
