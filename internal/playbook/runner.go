// Package playbook applies an ordered list of management API steps within
// one session. It is the engine behind "cpmgmt apply".
package playbook

import (
	"context"
	"fmt"

	"github.com/fjacquet/cpmgmt/internal/logging"
	"github.com/fjacquet/cpmgmt/internal/mgmt"
	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/telemetry"
	"github.com/fjacquet/cpmgmt/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "cpmgmt/playbook"

// Commands issued by the runner around the steps.
const (
	CommandPublish = "publish"
	CommandDiscard = "discard"
)

// StepResult is the outcome of one applied step.
type StepResult struct {
	Step     string
	Response *models.Response
}

// Report summarizes a playbook run.
type Report struct {
	Steps     []StepResult
	Published bool
	Discarded bool
}

// Runner applies playbooks through a logged-in API.
type Runner struct {
	api     mgmt.API
	tracing *mgmt.TracerWrapper
}

// Option configures optional Runner settings.
type Option func(*Runner)

// WithTracerProvider sets the TracerProvider for playbook spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		r.tracing = mgmt.NewTracerWrapper(tp, tracerName)
	}
}

// NewRunner creates a runner issuing calls through api.
func NewRunner(api mgmt.API, opts ...Option) *Runner {
	r := &Runner{
		api:     api,
		tracing: mgmt.NewTracerWrapper(nil, tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads and validates the playbook at path.
func Load(path string) (*models.Playbook, error) {
	var pb models.Playbook
	if err := utils.ReadFile(&pb, path); err != nil {
		return nil, err
	}
	if err := pb.Validate(); err != nil {
		return nil, fmt.Errorf("invalid playbook %s: %w", path, err)
	}
	return &pb, nil
}

// Run applies the steps of pb in order. The api must already be logged in.
//
// Commands are sent with Call, or CallAndCheck when the step sets check.
// Queries are aggregated and, when the step sets output, saved to that file.
// The first failing step stops the run: with discardOnFailure the session's
// pending changes are discarded before the error is returned. When every
// step succeeds and publish is set, the session is published.
//
// The report lists the steps applied before any failure.
func (r *Runner) Run(ctx context.Context, pb *models.Playbook) (*Report, error) {
	ctx, span := r.tracing.StartSpan(ctx, "playbook.run", trace.SpanKindInternal,
		attribute.Int(telemetry.AttrPlaybookSteps, len(pb.Steps)),
	)
	defer span.End()

	report := &Report{}

	for i, step := range pb.Steps {
		res, err := r.runStep(ctx, step)
		if err != nil {
			err = fmt.Errorf("step %d (%s): %w", i+1, step.Label(), err)
			r.fail(ctx, span, pb, report, err)
			return report, err
		}
		report.Steps = append(report.Steps, StepResult{Step: step.Label(), Response: res})
	}

	if pb.Publish {
		if _, err := r.api.CallAndCheck(ctx, CommandPublish, models.Payload{}); err != nil {
			err = fmt.Errorf("publish: %w", err)
			r.fail(ctx, span, pb, report, err)
			return report, err
		}
		report.Published = true
		logging.LogInfo("Changes published")
	}

	span.SetAttributes(
		attribute.String(telemetry.AttrPlaybookStatus, "succeeded"),
		attribute.Bool(telemetry.AttrPlaybookPublished, report.Published),
	)
	span.SetStatus(codes.Ok, "Playbook applied")
	return report, nil
}

func (r *Runner) runStep(ctx context.Context, step models.PlaybookStep) (*models.Response, error) {
	ctx, span := r.tracing.StartSpan(ctx, "playbook.step", trace.SpanKindInternal,
		attribute.String(telemetry.AttrPlaybookStep, step.Label()),
	)
	defer span.End()

	payload, err := step.JSONPayload()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if step.Command != "" {
		logging.WithCommand(step.Command).Infof("Applying step %s", step.Label())
		if step.Check {
			return r.api.CallAndCheck(ctx, step.Command, payload)
		}
		return r.api.Call(ctx, step.Command, payload)
	}

	if step.DetailsLevel != "" {
		payload["details-level"] = step.DetailsLevel
	}

	logging.WithCommand(step.Query).Infof("Querying %s", step.Label())
	res, err := r.api.QueryPayload(ctx, step.Query, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if step.Output != "" {
		if err := res.SaveObjects(step.Output); err != nil {
			return nil, err
		}
		logging.LogInfo(fmt.Sprintf("Saved %d objects to %s", len(res.Objects), step.Output))
	}
	return res, nil
}

// fail records err and discards pending changes when the playbook asks for it.
// Discard errors are logged since err is what the caller needs to see.
func (r *Runner) fail(ctx context.Context, span trace.Span, pb *models.Playbook, report *Report, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(telemetry.AttrPlaybookStatus, "failed"))
	logging.LogError(err.Error())

	if !pb.DiscardOnFailure {
		return
	}

	// A cancelled run still discards what it left behind.
	res, derr := r.api.Call(context.WithoutCancel(ctx), CommandDiscard, models.Payload{})
	switch {
	case derr != nil:
		logging.LogError(fmt.Sprintf("Failed to discard changes: %v", derr))
	case res.IsNotSuccess():
		logging.LogError(fmt.Sprintf("Failed to discard changes: %s", res.Message()))
	default:
		report.Discarded = true
		logging.LogWarn("Pending changes discarded")
	}
}
