package mgmt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/utils"
)

// AuditRequest is the request half of an audit entry.
type AuditRequest struct {
	Headers map[string]string `json:"headers"`
	Payload models.Payload    `json:"payload"`
	URL     string            `json:"url"`
}

// AuditEntry records one dispatched call.
type AuditEntry struct {
	Request  AuditRequest     `json:"Request"`
	Response *models.Response `json:"Response"`
}

// Command returns the command name taken from the request URL.
func (e AuditEntry) Command() string {
	i := strings.LastIndex(e.Request.URL, models.WebAPIPath)
	if i < 0 {
		return ""
	}
	return e.Request.URL[i+len(models.WebAPIPath):]
}

// AuditLog accumulates a redacted record of every call made through a
// Client. Auditing is enabled while a log path is set.
type AuditLog struct {
	path         string
	showPassword bool
	entries      []AuditEntry
}

// NewAuditLog returns an audit log writing to path. An empty path leaves
// auditing disabled.
func NewAuditLog(path string, showPassword bool) *AuditLog {
	return &AuditLog{path: path, showPassword: showPassword}
}

// Enabled reports whether calls are being recorded.
func (a *AuditLog) Enabled() bool { return a.path != "" }

// Path returns the destination file, empty when auditing is disabled.
func (a *AuditLog) Path() string { return a.path }

// SetPath sets the destination file. An empty path disables auditing;
// entries already recorded are kept.
func (a *AuditLog) SetPath(path string) { a.path = path }

// SetShowPassword keeps login passwords in clear text when show is true.
func (a *AuditLog) SetShowPassword(show bool) { a.showPassword = show }

// Len returns the number of recorded entries.
func (a *AuditLog) Len() int { return len(a.entries) }

// Entries returns a copy of the recorded entries.
func (a *AuditLog) Entries() []AuditEntry {
	out := make([]AuditEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Record appends an entry for command. body is the exact JSON sent on the
// wire; the recorded payload is decoded from it so the caller's payload is
// never touched by redaction.
//
// A login payload without a password field fails with ErrRedaction unless
// passwords are shown.
func (a *AuditLog) Record(command, url string, headers map[string]string, body []byte, res *models.Response) error {
	var payload models.Payload
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("failed to record %s in audit log: %w", command, err)
	}
	if payload == nil {
		payload = models.Payload{}
	}

	if command == CommandLogin && !a.showPassword {
		if _, ok := payload["password"]; !ok {
			return fmt.Errorf("%w: login payload has no password field", ErrRedaction)
		}
		payload["password"] = RedactedPassword
	}

	recorded := make(map[string]string, len(headers))
	for k, v := range headers {
		recorded[k] = v
	}

	a.entries = append(a.entries, AuditEntry{
		Request: AuditRequest{
			Headers: recorded,
			Payload: payload,
			URL:     url,
		},
		Response: res,
	})
	return nil
}

// Flush writes the entries as a JSON array indented with four spaces,
// replacing the file atomically, then clears the entries and the path.
//
// Returns ErrAuditLogNotConfigured when no path is set. On a write error
// the entries and path are kept so the caller can retry.
func (a *AuditLog) Flush() error {
	if a.path == "" {
		return ErrAuditLogNotConfigured
	}

	entries := a.entries
	if entries == nil {
		entries = []AuditEntry{}
	}

	if err := utils.WriteJSONFile(a.path, entries); err != nil {
		return fmt.Errorf("failed to flush audit log: %w", err)
	}

	a.entries = nil
	a.path = ""
	return nil
}

// ReadAuditLog loads an audit log written by Flush. Numbers are decoded
// as json.Number, matching how responses are parsed.
func ReadAuditLog(path string) ([]AuditEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log %s: %w", path, err)
	}

	var entries []AuditEntry
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit log %s: %w", path, err)
	}
	return entries, nil
}
