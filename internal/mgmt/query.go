package mgmt

import (
	"context"

	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Query lists every object returned by a paginated show-* command.
//
// The result's Objects holds all pages in server order and its Data is an
// empty object. See QueryPayload.
//
// Example:
//
//	hosts, err := client.Query(ctx, "show-hosts", "standard")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(hosts)
func (c *Client) Query(ctx context.Context, command, detailsLevel string) (*models.Response, error) {
	return c.QueryPayload(ctx, command, models.Payload{"details-level": detailsLevel})
}

// QueryPayload lists every object returned by command, sending payload
// with each page request.
//
// Pages of PageSize objects are requested from offset 0 until the server
// reports to == total. payload keys override the default details-level
// (standard); limit and offset are always set by the aggregator. A
// non-success page aborts with a *DomainError. A page without to, total
// or objects aborts with a *MissingFieldError.
//
// payload is not modified.
func (c *Client) QueryPayload(ctx context.Context, command string, payload models.Payload) (*models.Response, error) {
	ctx, span := c.tracing.StartSpan(ctx, "mgmt.query", trace.SpanKindInternal,
		attribute.String(telemetry.AttrMgmtCommand, command),
	)
	defer span.End()

	objects := []interface{}{}
	offset := 0
	var last *models.Response

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			recordError(span, err)
			return nil, err
		}

		res, err := c.Call(ctx, command, pagePayload(payload, offset))
		if err != nil {
			recordError(span, err)
			return nil, err
		}

		if res.IsNotSuccess() {
			err := newDomainError(command, res)
			recordError(span, err)
			return nil, err
		}

		to, ok := models.AsInt(res.Fields()["to"])
		if !ok {
			return nil, c.missingField(span, "to", res)
		}
		total, ok := models.AsInt(res.Fields()["total"])
		if !ok {
			return nil, c.missingField(span, "total", res)
		}
		pageObjects, ok := res.Fields()["objects"].([]interface{})
		if !ok {
			return nil, c.missingField(span, "objects", res)
		}

		objects = append(objects, pageObjects...)
		c.metrics.ObserveQueryPage(command, len(pageObjects))
		span.AddEvent("page", trace.WithAttributes(
			attribute.Int(telemetry.AttrMgmtPageNumber, page),
			attribute.Int(telemetry.AttrMgmtPageOffset, offset),
			attribute.Int(telemetry.AttrMgmtObjectsInPage, len(pageObjects)),
		))

		last = res
		offset += PageSize

		if to == total {
			span.SetAttributes(attribute.Int(telemetry.AttrMgmtTotalObjects, total))
			break
		}
	}

	span.SetStatus(codes.Ok, "Query completed")

	// The last page Response may also be held by the audit log, so the
	// aggregate is a new value.
	return &models.Response{
		StatusCode: last.StatusCode,
		URL:        last.URL,
		Headers:    last.Headers,
		Data:       models.Payload{},
		Objects:    objects,
	}, nil
}

// pagePayload merges the caller's payload over the defaults and sets the
// page window.
func pagePayload(payload models.Payload, offset int) models.Payload {
	p := models.Payload{"details-level": models.DetailsLevelStandard}
	for k, v := range payload {
		p[k] = v
	}
	p["limit"] = PageSize
	p["offset"] = offset
	return p
}

func (c *Client) missingField(span trace.Span, field string, res *models.Response) error {
	err := &MissingFieldError{Field: field, Response: res}
	recordError(span, err)
	return err
}
