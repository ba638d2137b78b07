package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs sends JSON log output to a buffer until the test ends.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFormatter(&log.JSONFormatter{})
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&log.TextFormatter{})
		SetDebug(false)
	})
	return &buf
}

// entries decodes one JSON object per log line.
func entries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestLevelHelpers(t *testing.T) {
	tests := []struct {
		name  string
		logFn func(string)
		level string
	}{
		{name: "info", logFn: LogInfo, level: "info"},
		{name: "warn", logFn: LogWarn, level: "warning"},
		{name: "error", logFn: LogError, level: "error"},
		{name: "debug", logFn: LogDebug, level: "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			SetDebug(true)

			tt.logFn("publish succeeded")

			got := entries(t, buf)
			require.Len(t, got, 1)
			assert.Equal(t, tt.level, got[0]["level"])
			assert.Equal(t, "publish succeeded", got[0]["msg"])
			assert.Equal(t, programName, got[0]["job"])
		})
	}
}

func TestSetDebug(t *testing.T) {
	buf := captureLogs(t)

	SetDebug(false)
	assert.Equal(t, log.InfoLevel, log.GetLevel())
	LogDebug("hidden")
	assert.Empty(t, buf.String())

	SetDebug(true)
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	LogDebug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithCommand(t *testing.T) {
	buf := captureLogs(t)

	WithCommand("show-task").Info("publish in progress - 40%")

	got := entries(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "show-task", got[0]["command"])
	assert.Equal(t, programName, got[0]["job"])
	assert.Equal(t, "publish in progress - 40%", got[0]["msg"])
}

func TestPrepareLogs(t *testing.T) {
	captureLogs(t)
	path := filepath.Join(t.TempDir(), "cpmgmt.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0644))

	require.NoError(t, PrepareLogs(path))
	LogInfo("login succeeded")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "previous run\n"), "log file is appended to")
	assert.Contains(t, string(content), `"msg": "login succeeded"`)
	assert.Contains(t, string(content), `"job": "`+programName+`"`)
}

func TestPrepareLogsMissingDirectory(t *testing.T) {
	err := PrepareLogs(filepath.Join(t.TempDir(), "missing", "cpmgmt.log"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}
