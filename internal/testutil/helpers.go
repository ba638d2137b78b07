// Package testutil provides shared test utilities and helper functions.
// This file contains the mock management server builder used by client,
// playbook and CLI tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// commandHandler answers one command. body is the decoded JSON request payload.
type commandHandler func(w http.ResponseWriter, r *http.Request, body map[string]interface{})

// RecordedRequest is a request captured by the mock server.
type RecordedRequest struct {
	Headers http.Header
	Body    map[string]interface{}
}

// MockServerBuilder provides a fluent interface for creating a mock management
// API server. Handlers are registered per command and every request is counted
// and recorded so tests can assert on the traffic the client produced.
//
// Example usage:
//
//	builder := testutil.NewMockServer().
//	    WithLogin().
//	    WithTaskSequence("in progress", "succeeded").
//	    WithCommand("publish", http.StatusOK, map[string]interface{}{"task-id": testutil.TestTaskID})
//	server := builder.Build()
//	defer server.Close()
type MockServerBuilder struct {
	handlers map[string]commandHandler
	useTLS   bool

	mu       sync.Mutex
	calls    map[string]int
	requests map[string][]RecordedRequest
}

// NewMockServer creates a new MockServerBuilder.
func NewMockServer() *MockServerBuilder {
	return &MockServerBuilder{
		handlers: make(map[string]commandHandler),
		calls:    make(map[string]int),
		requests: make(map[string][]RecordedRequest),
	}
}

// WithTLS enables TLS for the mock server.
func (b *MockServerBuilder) WithTLS() *MockServerBuilder {
	b.useTLS = true
	return b
}

// WithLogin answers the login command with TestSID, TestUID and TestAPIVersion
// when the password equals TestPassword, and with a 400 error otherwise.
func (b *MockServerBuilder) WithLogin() *MockServerBuilder {
	return b.WithLoginResponse(map[string]interface{}{
		"sid":                TestSID,
		"uid":                TestUID,
		"api-server-version": TestAPIVersion,
		"session-timeout":    600,
		"url":                "https://" + TestServerMgmt + ":443/web_api",
	})
}

// WithLoginResponse answers a successful login with the given body.
// A password other than TestPassword still yields a 400 error.
func (b *MockServerBuilder) WithLoginResponse(response map[string]interface{}) *MockServerBuilder {
	b.handlers[CommandLogin] = func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		if body["password"] != TestPassword {
			writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{
				"code":    TestLoginFailedCode,
				"message": TestLoginFailedMessage,
			})
			return
		}
		writeJSONStatus(w, http.StatusOK, response)
	}
	return b
}

// WithLogout answers the logout command. Requests without a session header
// are rejected with 401.
func (b *MockServerBuilder) WithLogout() *MockServerBuilder {
	b.handlers[CommandLogout] = func(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
		if r.Header.Get(SessionHeader) == "" {
			writeJSONStatus(w, http.StatusUnauthorized, map[string]interface{}{
				"code":    "generic_err_wrong_session_id",
				"message": "Wrong session id",
			})
			return
		}
		writeJSONStatus(w, http.StatusOK, map[string]interface{}{"message": "OK"})
	}
	return b
}

// WithTaskSequence answers show-task with the given statuses, one per poll.
// The last status is repeated once the sequence is exhausted.
func (b *MockServerBuilder) WithTaskSequence(statuses ...string) *MockServerBuilder {
	b.handlers[CommandShowTask] = func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		n := b.CallCount(CommandShowTask) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		status := statuses[n]
		progress := 100
		if status == "in progress" {
			progress = (n + 1) * 100 / (len(statuses) + 1)
		}
		writeJSONStatus(w, http.StatusOK, map[string]interface{}{
			"tasks": []interface{}{
				map[string]interface{}{
					"task-id":             body["task-id"],
					"task-name":           "Publish operation",
					"status":              status,
					"progress-percentage": progress,
					"suppressed":          false,
				},
			},
		})
	}
	return b
}

// WithPagedObjects answers command with a paginated listing of total objects.
// It honours the limit and offset of each request the way the management
// server does, reporting from, to and total.
func (b *MockServerBuilder) WithPagedObjects(command string, total int) *MockServerBuilder {
	b.handlers[command] = func(w http.ResponseWriter, r *http.Request, body map[string]interface{}) {
		limit := intField(body, "limit", 50)
		offset := intField(body, "offset", 0)

		objects := make([]interface{}, 0, limit)
		for i := offset; i < offset+limit && i < total; i++ {
			objects = append(objects, map[string]interface{}{
				"uid":  fmt.Sprintf("uid-%d", i),
				"name": fmt.Sprintf("obj-%d", i),
				"type": "host",
			})
		}

		resp := map[string]interface{}{
			"objects": objects,
			"to":      offset + len(objects),
			"total":   total,
		}
		if len(objects) > 0 {
			resp["from"] = offset + 1
		}
		writeJSONStatus(w, http.StatusOK, resp)
	}
	return b
}

// WithCommand answers command with a fixed status code and JSON body.
func (b *MockServerBuilder) WithCommand(command string, statusCode int, response interface{}) *MockServerBuilder {
	b.handlers[command] = func(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
		writeJSONStatus(w, statusCode, response)
	}
	return b
}

// WithRawCommand answers command with a fixed status code and raw body.
func (b *MockServerBuilder) WithRawCommand(command string, statusCode int, body string) *MockServerBuilder {
	b.handlers[command] = func(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
		w.Header().Set(ContentTypeHeader, ContentTypeJSON)
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}
	return b
}

// WithCustomEndpoint adds a custom handler for the specified command.
func (b *MockServerBuilder) WithCustomEndpoint(command string, handler http.HandlerFunc) *MockServerBuilder {
	b.handlers[command] = func(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
		handler(w, r)
	}
	return b
}

// Build creates and returns the configured HTTP test server.
// Requests to unknown commands are answered with 404 generic_err_command_not_found.
func (b *MockServerBuilder) Build() *httptest.Server {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		command := strings.TrimPrefix(r.URL.Path, WebAPIPrefix)
		body := b.record(command, r)

		if h, ok := b.handlers[command]; ok {
			h(w, r, body)
			return
		}
		writeJSONStatus(w, http.StatusNotFound, map[string]interface{}{
			"code":    "generic_err_command_not_found",
			"message": "Unrecognized command",
		})
	})

	if b.useTLS {
		return httptest.NewTLSServer(handler)
	}
	return httptest.NewServer(handler)
}

// CallCount returns the number of requests received for command.
func (b *MockServerBuilder) CallCount(command string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[command]
}

// Requests returns the recorded requests for command in arrival order.
func (b *MockServerBuilder) Requests(command string) []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedRequest, len(b.requests[command]))
	copy(out, b.requests[command])
	return out
}

// LastRequest returns the most recent request for command.
func (b *MockServerBuilder) LastRequest(command string) (RecordedRequest, bool) {
	reqs := b.Requests(command)
	if len(reqs) == 0 {
		return RecordedRequest{}, false
	}
	return reqs[len(reqs)-1], true
}

// record counts the request and captures its headers and decoded body.
func (b *MockServerBuilder) record(command string, r *http.Request) map[string]interface{} {
	body := map[string]interface{}{}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	b.mu.Lock()
	b.calls[command]++
	b.requests[command] = append(b.requests[command], RecordedRequest{
		Headers: r.Header.Clone(),
		Body:    body,
	})
	b.mu.Unlock()
	return body
}

// writeJSONStatus writes a JSON response with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set(ContentTypeHeader, ContentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func intField(body map[string]interface{}, key string, def int) int {
	switch v := body[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
