package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fjacquet/cpmgmt/internal/mgmt"
	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a configuration pointing at server and returns its path.
func writeConfig(t *testing.T, server *httptest.Server, extra string) string {
	t.Helper()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)

	content := fmt.Sprintf(`mgmtserver:
  host: %s
  port: "%s"
  acceptInvalidCerts: true
session:
  user: %s
  password: %s
%s`, u.Hostname(), u.Port(), testutil.TestUser, testutil.TestPassword, extra)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the CLI with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configFile = ""
	debug = false

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := validateConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file not found")
	})

	t.Run("invalid port", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mgmtserver:\n  host: mgmt\n  port: \"70000\"\n"), 0644))

		_, err := validateConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), testutil.TestInvalidPort)
	})

	t.Run("defaults applied", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mgmtserver:\n  host: "+testutil.TestServerMgmt+"\n"), 0644))

		cfg, err := validateConfig(path)
		require.NoError(t, err)
		assert.Equal(t, testutil.TestPort443, cfg.MgmtServer.Port)
		assert.Equal(t, models.DefaultSessionTimeout, cfg.Session.Timeout)
		assert.True(t, cfg.ShouldWaitForTask())
	})
}

func TestParsePayload(t *testing.T) {
	payload, err := parsePayload("")
	require.NoError(t, err)
	assert.Empty(t, payload)

	payload, err = parsePayload(`{"name":"h1","port":8080}`)
	require.NoError(t, err)
	assert.Equal(t, "h1", payload["name"])
	assert.Equal(t, json.Number("8080"), payload["port"])

	_, err = parsePayload(`[1,2]`)
	assert.Error(t, err)

	_, err = parsePayload(`null`)
	assert.Error(t, err)
}

func TestResolvePassword(t *testing.T) {
	var cfg models.Config
	cfg.Session.Password = "from-config"

	p, err := resolvePassword(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-config", p)

	t.Setenv(PasswordEnv, "from-env")
	cfg.Session.Password = ""
	p, err = resolvePassword(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-env", p)
}

func TestServerHandler(t *testing.T) {
	var cfg models.Config
	cfg.SetDefaults()

	registry := prometheus.NewRegistry()
	_, err := mgmt.NewMetrics(registry)
	require.NoError(t, err)

	server := NewServer(cfg, registry, true)
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())

	server.SetHealthy(false)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, models.DefaultMetricsURI, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cpmgmt_session_active")

	assert.NoError(t, server.Shutdown())
}

func TestCallCommand(t *testing.T) {
	builder := testutil.NewMockServer().WithTLS().WithLogin().WithLogout().
		WithCommand(testutil.CommandAddHost, http.StatusOK, map[string]interface{}{"uid": "host-uid", "name": "h1"})
	server := builder.Build()
	defer server.Close()

	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.json")
	textfile := filepath.Join(dir, "cpmgmt.prom")
	cfgPath := writeConfig(t, server, fmt.Sprintf("audit:\n  logFile: %s\nserver:\n  metricsTextfile: %s\n", auditPath, textfile))

	out, err := execute(t, "--config", cfgPath, "call", testutil.CommandAddHost, `{"name":"h1","ip-address":"10.0.0.1"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"uid": "host-uid"`)

	req, ok := builder.LastRequest(testutil.CommandAddHost)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", req.Body["ip-address"])
	assert.Equal(t, testutil.TestSID, req.Headers.Get(testutil.SessionHeader))
	assert.Equal(t, 1, builder.CallCount(testutil.CommandLogout))

	entries, err := mgmt.ReadAuditLog(auditPath)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, mgmt.RedactedPassword, entries[0].Request.Payload["password"])

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `cpmgmt_api_calls_total{command="add-host",outcome="success"} 1`)
}

func TestCallCommandNonSuccess(t *testing.T) {
	builder := testutil.NewMockServer().WithTLS().WithLogin().WithLogout()
	server := builder.Build()
	defer server.Close()

	out, err := execute(t, "--config", writeConfig(t, server, ""), "call", "show-unknown")
	require.Error(t, err)
	assert.ErrorIs(t, err, mgmt.ErrDomain)
	assert.Contains(t, out, "generic_err_command_not_found")
	assert.Equal(t, 1, builder.CallCount(testutil.CommandLogout))
}

func TestCallCommandRejectedLogin(t *testing.T) {
	builder := testutil.NewMockServer().WithTLS().WithLogin().WithLogout()
	server := builder.Build()
	defer server.Close()

	cfgPath := writeConfig(t, server, "")
	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	bad := strings.Replace(string(content), "password: "+testutil.TestPassword, "password: "+testutil.TestBadPass, 1)
	require.NoError(t, os.WriteFile(cfgPath, []byte(bad), 0644))

	_, err = execute(t, "--config", cfgPath, "call", testutil.CommandAddHost)
	require.Error(t, err)
	assert.ErrorIs(t, err, mgmt.ErrDomain)
	assert.Equal(t, 0, builder.CallCount(testutil.CommandAddHost))
}

func TestQueryCommand(t *testing.T) {
	builder := testutil.NewMockServer().WithTLS().WithLogin().WithLogout().
		WithPagedObjects(testutil.CommandShowHost, 55)
	server := builder.Build()
	defer server.Close()

	output := filepath.Join(t.TempDir(), "hosts.json")
	_, err := execute(t, "--config", writeConfig(t, server, ""),
		"query", testutil.CommandShowHost, "--details-level", models.DetailsLevelFull,
		"--payload", `{"filter":"web"}`, "--output", output)
	require.NoError(t, err)

	assert.Equal(t, 2, builder.CallCount(testutil.CommandShowHost))
	req, ok := builder.LastRequest(testutil.CommandShowHost)
	require.True(t, ok)
	assert.Equal(t, models.DetailsLevelFull, req.Body["details-level"])
	assert.Equal(t, "web", req.Body["filter"])

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var objects []interface{}
	require.NoError(t, json.Unmarshal(data, &objects))
	assert.Len(t, objects, 55)
}

func TestApplyCommand(t *testing.T) {
	builder := testutil.NewMockServer().WithTLS().WithLogin().WithLogout().
		WithCommand(testutil.CommandAddHost, http.StatusOK, map[string]interface{}{"uid": "host-uid"}).
		WithCommand(testutil.CommandPublish, http.StatusOK, map[string]interface{}{"task-id": testutil.TestTaskID}).
		WithTaskSequence(models.TaskStatusSucceeded)
	server := builder.Build()
	defer server.Close()

	pbPath := filepath.Join(t.TempDir(), "playbook.yaml")
	require.NoError(t, os.WriteFile(pbPath, []byte(`publish: true
steps:
  - command: add-host
    payload: {name: h1, ip-address: 10.0.0.1}
    check: true
`), 0644))

	out, err := execute(t, "--config", writeConfig(t, server, ""), "apply", "-f", pbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "published")
	assert.Equal(t, 1, builder.CallCount(testutil.CommandPublish))
	assert.Equal(t, 1, builder.CallCount(testutil.CommandLogout))
}

func TestCommandRequiresConfig(t *testing.T) {
	_, err := execute(t, "call", testutil.CommandAddHost)
	assert.Error(t, err)
}
