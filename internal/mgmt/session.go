package mgmt

import (
	"context"
	"fmt"

	"github.com/fjacquet/cpmgmt/internal/logging"
	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Login opens a session as user.
//
// On a successful Response the sid, uid and api-server-version are read
// from the answer and committed together; if any of them is missing a
// *MissingFieldError is returned and the client stays as it was. On a
// non-success Response the client is left unchanged and the Response is
// returned for inspection.
//
// Logging in while already logged in replaces the current identifiers.
// The request carries the current session header, mirroring how the
// server replaces sessions.
func (c *Client) Login(ctx context.Context, user, password string) (*models.Response, error) {
	ctx, span := c.tracing.StartSpan(ctx, "mgmt.login", trace.SpanKindInternal,
		attribute.String(telemetry.AttrMgmtServer, c.cfg.MgmtServer.Host),
		attribute.String(telemetry.AttrMgmtDomain, c.domain),
	)
	defer span.End()

	payload := models.Payload{
		"user":            user,
		"password":        password,
		"session-timeout": c.sessionTimeout,
	}
	if c.domain != "" {
		payload["domain"] = c.domain
	}
	if c.readOnly {
		payload["read-only"] = true
	}
	if c.continueLastSession {
		payload["continue-last-session"] = true
	}

	res, err := c.Call(ctx, CommandLogin, payload)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	if res.IsNotSuccess() {
		logging.LogWarn(fmt.Sprintf(telemetry.ErrLoginFailedTemplate, res.StatusCode, res.Code(), res.Message()))
		return res, nil
	}

	sid, uid, version, err := sessionIdentifiers(res)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	c.sid = sid
	c.uid = uid
	c.apiServerVersion = version
	c.metrics.SetSession(true, version)

	span.SetAttributes(attribute.String(telemetry.AttrMgmtAPIVersion, version))
	logging.LogInfo(fmt.Sprintf("Logged in to %s as %s (API %s)", c.cfg.MgmtServer.Host, user, version))

	return res, nil
}

// sessionIdentifiers extracts sid, uid and api-server-version, in that order.
func sessionIdentifiers(res *models.Response) (sid, uid, version string, err error) {
	fields := []string{"sid", "uid", "api-server-version"}
	values := make([]string, len(fields))

	for i, field := range fields {
		v, ok := models.AsString(res.Fields()[field])
		if !ok || v == "" {
			return "", "", "", &MissingFieldError{Field: field, Response: res}
		}
		values[i] = v
	}

	return values[0], values[1], values[2], nil
}

// Logout closes the session. On success the sid, uid and
// api-server-version are cleared; otherwise the client stays logged in and
// the caller decides whether to retry.
func (c *Client) Logout(ctx context.Context) (*models.Response, error) {
	ctx, span := c.tracing.StartSpan(ctx, "mgmt.logout", trace.SpanKindInternal,
		attribute.String(telemetry.AttrMgmtServer, c.cfg.MgmtServer.Host),
	)
	defer span.End()

	res, err := c.Call(ctx, CommandLogout, models.Payload{})
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	if res.IsSuccess() {
		c.sid = ""
		c.uid = ""
		c.apiServerVersion = ""
		c.metrics.SetSession(false, "")
		logging.LogInfo(fmt.Sprintf("Logged out from %s", c.cfg.MgmtServer.Host))
	}

	return res, nil
}

// WithSession logs in, runs fn and logs out on every exit path, including
// when fn fails or panics.
//
// A rejected login is returned as a *DomainError and fn is not run. Errors
// from the final logout are logged, never returned.
//
// Example:
//
//	err := client.WithSession(ctx, "admin", password, func(ctx context.Context) error {
//	    _, err := client.CallAndCheck(ctx, "add-host", payload)
//	    return err
//	})
func (c *Client) WithSession(ctx context.Context, user, password string, fn func(ctx context.Context) error) error {
	res, err := c.Login(ctx, user, password)
	if err != nil {
		return err
	}
	if res.IsNotSuccess() {
		return newDomainError(CommandLogin, res)
	}

	defer c.releaseSession(ctx)

	return fn(ctx)
}

// Close logs out if a session is still open and releases the transport.
// Logout failures are logged and not returned since the caller is tearing
// the client down.
func (c *Client) Close(ctx context.Context) error {
	c.releaseSession(ctx)
	return c.transport.Close()
}

// releaseSession performs a best-effort logout. It ignores cancellation of
// ctx so a cancelled run still releases its server-side session.
func (c *Client) releaseSession(ctx context.Context) {
	if !c.IsLoggedIn() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.GetConnectTimeout())
	defer cancel()

	res, err := c.Logout(ctx)
	switch {
	case err != nil:
		logging.LogError(fmt.Sprintf("Error logging out while closing the client: %v", err))
	case res.IsNotSuccess():
		logging.LogError(fmt.Sprintf("Error logging out while closing the client: %s", newDomainError(CommandLogout, res)))
	}
}
