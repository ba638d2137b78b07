package mgmt

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditDisabledByDefault(t *testing.T) {
	server := testutil.NewMockServer().WithTLS().WithLogin().Build()
	defer server.Close()

	client := loggedInClient(t, server)

	assert.False(t, client.AuditLog().Enabled())
	assert.Equal(t, 0, client.AuditLog().Len())
	assert.ErrorIs(t, client.FlushAuditLog(), ErrAuditLogNotConfigured)
}

func TestAuditLoginRedaction(t *testing.T) {
	tests := []struct {
		name         string
		showPassword bool
		want         string
	}{
		{name: "redacted", showPassword: false, want: RedactedPassword},
		{name: "shown", showPassword: true, want: testPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := testutil.NewMockServer().WithTLS().WithLogin()
			server := builder.Build()
			defer server.Close()

			client := newTestClient(t, server)
			client.SetAuditLogFile(filepath.Join(t.TempDir(), "audit.json"))
			client.SetShowPassword(tt.showPassword)

			_, err := client.Login(context.Background(), testUser, testPassword)
			require.NoError(t, err)

			entries := client.AuditLog().Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, CommandLogin, entries[0].Command())
			assert.Equal(t, tt.want, entries[0].Request.Payload["password"])
			assert.Equal(t, testUser, entries[0].Request.Payload["user"])

			// The server always receives the real password.
			req, ok := builder.LastRequest(CommandLogin)
			require.True(t, ok)
			assert.Equal(t, testPassword, req.Body["password"])
		})
	}
}

func TestAuditRedactionFailure(t *testing.T) {
	audit := NewAuditLog(filepath.Join(t.TempDir(), "audit.json"), false)

	err := audit.Record(CommandLogin, "https://"+testutil.TestServerMgmt+"/web_api/login",
		map[string]string{}, []byte(`{"user":"a"}`), models.NewResponse())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRedaction))
	assert.Equal(t, 0, audit.Len())

	// Other commands have nothing to redact.
	err = audit.Record(cmdAddHost, "https://"+testutil.TestServerMgmt+"/web_api/add-host",
		map[string]string{}, []byte(`{"name":"h1"}`), models.NewResponse())
	require.NoError(t, err)
	assert.Equal(t, 1, audit.Len())
}

func TestAuditRecordsEveryCall(t *testing.T) {
	server := testutil.NewMockServer().WithTLS().WithLogin().WithLogout().
		WithCommand(cmdPublish, http.StatusOK, map[string]interface{}{"task-id": testTaskID}).
		WithTaskSequence(models.TaskStatusInProgress, models.TaskStatusSucceeded).
		Build()
	defer server.Close()

	client := newTestClient(t, server)
	client.SetAuditLogFile(filepath.Join(t.TempDir(), "audit.json"))

	ctx := context.Background()
	_, err := client.Login(ctx, testUser, testPassword)
	require.NoError(t, err)
	_, err = client.Call(ctx, cmdPublish, nil)
	require.NoError(t, err)
	_, err = client.Logout(ctx)
	require.NoError(t, err)

	var commands []string
	for _, e := range client.AuditLog().Entries() {
		commands = append(commands, e.Command())
	}
	assert.Equal(t, []string{CommandLogin, CommandShowTask, CommandShowTask, cmdPublish, CommandLogout}, commands)

	entries := client.AuditLog().Entries()
	assert.Empty(t, entries[0].Request.Headers[HeaderSessionID])
	assert.Equal(t, map[string]string{
		"accept":       "*/*",
		"content-type": "application/json",
		"user-agent":   UserAgent,
		"x-chkp-sid":   testSID,
	}, entries[3].Request.Headers)
	assert.Equal(t, models.TaskStatusSucceeded, entries[3].Response.Tasks()[0]["status"])
}

func TestAuditFlushRoundTrip(t *testing.T) {
	server := testutil.NewMockServer().WithTLS().WithLogin().WithLogout().
		WithCommand(cmdAddHost, http.StatusOK, map[string]interface{}{
			"uid":          "host-uid",
			"name":         "h1 <web>",
			"ipv4-address": "10.0.0.1",
			"groups":       []interface{}{},
			"meta-info":    map[string]interface{}{"creation-time": map[string]interface{}{"posix": 1700000000123}},
		}).
		Build()
	defer server.Close()

	path := filepath.Join(t.TempDir(), "audit.json")
	client := newTestClient(t, server)
	client.SetAuditLogFile(path)

	ctx := context.Background()
	_, err := client.Login(ctx, testUser, testPassword)
	require.NoError(t, err)
	_, err = client.Call(ctx, cmdAddHost, models.Payload{"name": "h1 <web>", "ip-address": "10.0.0.1"})
	require.NoError(t, err)
	_, err = client.Logout(ctx)
	require.NoError(t, err)

	want := client.AuditLog().Entries()
	require.Len(t, want, 3)

	require.NoError(t, client.FlushAuditLog())
	assert.False(t, client.AuditLog().Enabled())
	assert.Empty(t, client.AuditLog().Path())
	assert.Equal(t, 0, client.AuditLog().Len())

	got, err := ReadAuditLog(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n    {"))
	assert.NotContains(t, string(data), testPassword)

	assert.ErrorIs(t, client.FlushAuditLog(), ErrAuditLogNotConfigured)
}

func TestAuditFlushEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.json")
	audit := NewAuditLog(path, false)

	require.NoError(t, audit.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestAuditFlushWriteFailureKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "audit.json")
	audit := NewAuditLog(path, false)
	require.NoError(t, audit.Record(cmdAddHost, "https://h/web_api/add-host", nil, []byte(`{}`), models.NewResponse()))

	require.Error(t, audit.Flush())
	assert.Equal(t, 1, audit.Len())
	assert.Equal(t, path, audit.Path())
}
