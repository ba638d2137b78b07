// Package mgmt implements a stateful client for the Check Point management
// web API. It turns single HTTPS POSTs into session-aware command calls,
// waits for asynchronous tasks, aggregates paginated listings and keeps a
// credential-redacted log of every call.
package mgmt

import (
	"fmt"
	"time"

	"github.com/fjacquet/cpmgmt/internal/models"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPollInterval is the wait between two show-task polls.
	DefaultPollInterval = 5 * time.Second

	// PageSize is the number of objects requested per query page.
	PageSize = 50

	// RedactedPassword replaces the login password in the audit log.
	RedactedPassword = "*****"

	// UserAgent identifies this client to the management server.
	UserAgent = "cpmgmt"
)

// HTTP header names used in management API requests. They are lowercase
// as recorded in audit logs; net/http canonicalizes them on the wire.
const (
	HeaderAccept      = "accept"
	HeaderContentType = "content-type"
	HeaderUserAgent   = "user-agent"
	HeaderSessionID   = "x-chkp-sid"
)

// Commands the client issues on its own.
const (
	CommandLogin    = "login"
	CommandLogout   = "logout"
	CommandShowTask = "show-task"
)

// TaskProgress is one observation made while waiting for a task.
type TaskProgress struct {
	Command  string
	TaskID   string
	Status   string
	Progress interface{}
	Poll     int
}

// String renders the progress line, e.g. "publish in progress - 40%".
func (p TaskProgress) String() string {
	return fmt.Sprintf("%s %s - %v%%", p.Command, p.Status, p.Progress)
}

// ProgressFunc receives task progress observations.
type ProgressFunc func(TaskProgress)

// Option configures optional Client settings.
type Option func(*clientOptions)

type clientOptions struct {
	transport      Transport
	tracerProvider trace.TracerProvider
	metrics        *Metrics
	pollInterval   time.Duration
	progress       ProgressFunc
}

func defaultClientOptions() clientOptions {
	return clientOptions{
		pollInterval: DefaultPollInterval,
	}
}

// WithTransport replaces the Resty transport, typically with a test double.
func WithTransport(t Transport) Option {
	return func(o *clientOptions) {
		o.transport = t
	}
}

// WithTracerProvider sets the TracerProvider for distributed tracing.
// If not provided, tracing operations use a noop provider (no overhead).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) {
		o.tracerProvider = tp
	}
}

// WithMetrics records call, task and query metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

// WithPollInterval overrides the wait between show-task polls.
func WithPollInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		o.pollInterval = d
	}
}

// WithProgressReporter registers fn to observe task progress.
func WithProgressReporter(fn ProgressFunc) Option {
	return func(o *clientOptions) {
		o.progress = fn
	}
}

// Client holds the state of one management API session.
//
// A Client is not safe for concurrent use: calls, queries and task polling
// are synchronous and must not overlap. Independent Clients share nothing
// and may be used from separate goroutines.
type Client struct {
	cfg       models.Config
	transport Transport
	tracing   *TracerWrapper
	metrics   *Metrics
	audit     *AuditLog

	pollInterval time.Duration
	progress     ProgressFunc

	domain              string
	sessionTimeout      int
	waitForTask         bool
	readOnly            bool
	continueLastSession bool

	// Populated by a successful login, cleared by a successful logout.
	sid              string
	uid              string
	apiServerVersion string
}

// New creates a client for cfg. No request is made until Login or Call.
//
// The session flags (domain, timeout, read-only, continue-last-session,
// wait-for-task) and audit settings are seeded from cfg and can be changed
// with the setters before login.
//
// Example:
//
//	client, err := mgmt.New(cfg, mgmt.WithTracerProvider(tp))
//	if err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
func New(cfg models.Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()

	options := defaultClientOptions()
	for _, opt := range opts {
		opt(&options)
	}

	transport := options.transport
	if transport == nil {
		t, err := NewHTTPTransport(cfg, WithTransportTracerProvider(options.tracerProvider))
		if err != nil {
			return nil, err
		}
		transport = t
	}

	return &Client{
		cfg:                 cfg,
		transport:           transport,
		tracing:             NewTracerWrapper(options.tracerProvider, tracerNameClient),
		metrics:             options.metrics,
		audit:               NewAuditLog(cfg.Audit.LogFile, cfg.Audit.ShowPassword),
		pollInterval:        options.pollInterval,
		progress:            options.progress,
		domain:              cfg.MgmtServer.Domain,
		sessionTimeout:      cfg.Session.Timeout,
		waitForTask:         cfg.ShouldWaitForTask(),
		readOnly:            cfg.Session.ReadOnly,
		continueLastSession: cfg.Session.ContinueLastSession,
	}, nil
}

// Server returns the management server host.
func (c *Client) Server() string { return c.cfg.MgmtServer.Host }

// Port returns the management server port.
func (c *Client) Port() string { return c.cfg.MgmtServer.Port }

// SID returns the session id, empty when logged out.
func (c *Client) SID() string { return c.sid }

// UID returns the session's user id, empty when logged out.
func (c *Client) UID() string { return c.uid }

// APIServerVersion returns the version reported at login, empty when logged out.
func (c *Client) APIServerVersion() string { return c.apiServerVersion }

// IsLoggedIn reports whether the client holds a session id.
func (c *Client) IsLoggedIn() bool { return c.sid != "" }

// Domain returns the administrative domain used at login.
func (c *Client) Domain() string { return c.domain }

// SetDomain sets the administrative domain for the next login.
func (c *Client) SetDomain(domain string) { c.domain = domain }

// SetSessionTimeout sets the session-timeout (seconds) sent at login.
func (c *Client) SetSessionTimeout(seconds int) { c.sessionTimeout = seconds }

// SetWaitForTask controls whether calls returning a task-id are polled to completion.
func (c *Client) SetWaitForTask(wait bool) { c.waitForTask = wait }

// SetReadOnly requests a read-only session at the next login.
func (c *Client) SetReadOnly(readOnly bool) { c.readOnly = readOnly }

// SetContinueLastSession asks the server to resume the user's last session at login.
func (c *Client) SetContinueLastSession(cont bool) { c.continueLastSession = cont }

// SetAuditLogFile enables auditing into path. An empty path disables it.
func (c *Client) SetAuditLogFile(path string) { c.audit.SetPath(path) }

// SetShowPassword keeps login passwords in clear text in the audit log.
func (c *Client) SetShowPassword(show bool) { c.audit.SetShowPassword(show) }

// AuditLog returns the client's audit log.
func (c *Client) AuditLog() *AuditLog { return c.audit }

// FlushAuditLog writes the recorded calls to the audit log file.
// See AuditLog.Flush.
func (c *Client) FlushAuditLog() error { return c.audit.Flush() }

// String renders the client settings with the session id masked.
func (c *Client) String() string {
	return fmt.Sprintf(
		"Client{server=%s port=%s domain=%q certificate=%q acceptInvalidCerts=%t proxy=%q connectTimeout=%s "+
			"sessionTimeout=%d sid=%s uid=%s apiServerVersion=%s waitForTask=%t readOnly=%t logFile=%q}",
		c.cfg.MgmtServer.Host, c.cfg.MgmtServer.Port, c.domain, c.cfg.MgmtServer.Certificate,
		c.cfg.MgmtServer.AcceptInvalidCerts, c.cfg.MgmtServer.Proxy, c.cfg.GetConnectTimeout(),
		c.sessionTimeout, maskSID(c.sid), c.uid, c.apiServerVersion, c.waitForTask, c.readOnly, c.audit.Path(),
	)
}

// maskSID keeps the first four characters of a session id.
func maskSID(sid string) string {
	if sid == "" {
		return ""
	}
	if len(sid) <= 4 {
		return "****"
	}
	return sid[:4] + "****"
}
