package mgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fjacquet/cpmgmt/internal/logging"
	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/http/httpguts"
)

const bodyPreviewLength = 200

// Call runs command with payload and returns the server's Response.
//
// The request carries the session header when logged in. When the answer
// holds a task-id and wait-for-task is on, the returned Response is the
// final show-task result instead of the "task accepted" answer. When
// auditing is on, the call is appended to the audit log.
//
// A nil payload is sent as an empty JSON object. Call does not modify payload.
//
// Returns an error only if:
//   - the transport fails (ErrTransport)
//   - a header value cannot be sent (ErrHeaderConstruction)
//   - the body is not a JSON object (ErrMalformedResponse)
//   - task polling fails, or the login password cannot be redacted
//
// A non-success HTTP status is not an error; inspect the Response.
//
// Example:
//
//	res, err := client.Call(ctx, "add-host", models.Payload{"name": "h1", "ip-address": "10.0.0.1"})
//	if err != nil {
//	    return err
//	}
//	if res.IsNotSuccess() {
//	    log.Errorf("add-host failed: %s", res.Message())
//	}
func (c *Client) Call(ctx context.Context, command string, payload models.Payload) (*models.Response, error) {
	ctx, span := c.tracing.StartSpan(ctx, "mgmt.call", trace.SpanKindInternal,
		attribute.String(telemetry.AttrMgmtCommand, command),
		attribute.String(telemetry.AttrMgmtServer, c.cfg.MgmtServer.Host),
		attribute.Bool(telemetry.AttrMgmtLoggedIn, c.IsLoggedIn()),
	)
	defer span.End()

	start := time.Now()
	res, err := c.call(ctx, command, payload)
	c.metrics.ObserveCall(command, res, err, time.Since(start))

	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int(telemetry.AttrHTTPStatusCode, res.StatusCode),
		attribute.Bool(telemetry.AttrMgmtSuccess, res.IsSuccess()),
	)
	if res.IsSuccess() {
		span.SetStatus(codes.Ok, "Call succeeded")
	} else {
		span.SetAttributes(attribute.String(telemetry.AttrMgmtErrorCode, res.Code()))
	}
	return res, nil
}

// CallAndCheck is Call followed by a success check. A non-success Response
// is returned together with a *DomainError.
func (c *Client) CallAndCheck(ctx context.Context, command string, payload models.Payload) (*models.Response, error) {
	res, err := c.Call(ctx, command, payload)
	if err != nil {
		return nil, err
	}
	if res.IsNotSuccess() {
		return res, newDomainError(command, res)
	}
	return res, nil
}

func (c *Client) call(ctx context.Context, command string, payload models.Payload) (*models.Response, error) {
	url := c.cfg.BuildURL(command)

	headers, err := c.headers()
	if err != nil {
		return nil, err
	}

	if payload == nil {
		payload = models.Payload{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for %s: %w", command, err)
	}

	logging.WithCommand(command).Debugf("POST %s", url)

	raw, err := c.transport.Send(ctx, &Request{URL: url, Headers: headers, Body: body})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	res, err := parseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", command, err)
	}

	if taskID, ok := res.TaskID(); ok && c.waitForTask {
		res, err = c.WaitForTask(ctx, command, taskID)
		if err != nil {
			return nil, err
		}
	}

	if c.audit.Enabled() {
		if err := c.audit.Record(command, url, headers, body, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// headers returns the request headers. The session header is present only
// while logged in.
func (c *Client) headers() (map[string]string, error) {
	headers := map[string]string{
		HeaderAccept:      "*/*",
		HeaderContentType: "application/json",
		HeaderUserAgent:   UserAgent,
	}

	if c.sid != "" {
		if !httpguts.ValidHeaderFieldValue(c.sid) {
			return nil, fmt.Errorf("%w: %s contains invalid characters", ErrHeaderConstruction, HeaderSessionID)
		}
		headers[HeaderSessionID] = c.sid
	}

	return headers, nil
}

// parseResponse decodes raw into a Response. Any single JSON value is
// accepted. Numbers are kept as json.Number so large identifiers survive
// unchanged.
func parseResponse(raw *RawResponse) (*models.Response, error) {
	res := models.NewResponse()
	res.StatusCode = raw.StatusCode
	res.URL = raw.URL

	for k, v := range raw.Headers {
		res.Headers[k] = strings.Join(v, ", ")
	}

	var data interface{}
	dec := json.NewDecoder(bytes.NewReader(raw.Body))
	dec.UseNumber()
	err := dec.Decode(&data)
	if err == nil {
		if _, terr := dec.Token(); terr != io.EOF {
			err = errors.New("unexpected data after the JSON value")
		}
	}
	if err != nil {
		preview := string(raw.Body)
		if len(preview) > bodyPreviewLength {
			preview = preview[:bodyPreviewLength] + "..."
		}
		logging.LogError(fmt.Sprintf(telemetry.ErrNonJSONResponseTemplate,
			raw.Headers.Get(HeaderContentType), raw.URL, preview))
		return nil, fmt.Errorf("%w: url=%s, status=%d: %v", ErrMalformedResponse, raw.URL, raw.StatusCode, err)
	}
	res.Data = data

	return res, nil
}
