package mgmt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fjacquet/cpmgmt/internal/logging"
	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/telemetry"
	"github.com/fjacquet/cpmgmt/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WaitForTask polls show-task for taskID until the task leaves the
// "in progress" state, and returns the final show-task Response.
//
// command names the call that started the task and is only used for
// progress reporting. Polls are spaced by the poll interval (5s unless
// overridden with WithPollInterval). There is no retry bound: cancel ctx
// to give up, in which case ctx.Err() is returned wrapped.
//
// A poll answer without progress-percentage or status in its first task
// yields a *MissingFieldError. Any status other than "in progress",
// including a non-string one, ends the wait.
func (c *Client) WaitForTask(ctx context.Context, command, taskID string) (*models.Response, error) {
	ctx, span := c.tracing.StartSpan(ctx, "mgmt.task.wait", trace.SpanKindInternal,
		attribute.String(telemetry.AttrMgmtCommand, command),
		attribute.String(telemetry.AttrMgmtTaskID, taskID),
	)
	defer span.End()

	for poll := 1; ; poll++ {
		res, err := c.Call(ctx, CommandShowTask, models.Payload{
			"task-id":       taskID,
			"details-level": models.DetailsLevelFull,
		})
		if err != nil {
			recordError(span, err)
			return nil, err
		}

		progress, status, err := taskState(res)
		if err != nil {
			recordError(span, err)
			return nil, err
		}

		c.reportProgress(TaskProgress{
			Command:  command,
			TaskID:   taskID,
			Status:   status,
			Progress: progress,
			Poll:     poll,
		})

		if models.IsTerminalTaskStatus(status) {
			span.SetAttributes(
				attribute.String(telemetry.AttrMgmtTaskStatus, status),
				attribute.Int(telemetry.AttrMgmtTaskPolls, poll),
			)
			return res, nil
		}

		if err := utils.Pause(ctx, c.pollInterval); err != nil {
			err = fmt.Errorf("waiting for task %s of %s: %w", taskID, command, err)
			recordError(span, err)
			return nil, err
		}
	}
}

// taskState reads progress-percentage and status from the first task.
func taskState(res *models.Response) (progress interface{}, status string, err error) {
	var task models.Payload
	if tasks := res.Tasks(); len(tasks) > 0 {
		task = tasks[0]
	}

	progress, ok := task["progress-percentage"]
	if !ok {
		return nil, "", &MissingFieldError{Field: "progress-percentage", Response: res}
	}

	raw, ok := task["status"]
	if !ok {
		return nil, "", &MissingFieldError{Field: "status", Response: res}
	}

	return progress, statusText(raw), nil
}

// statusText renders a status value. Values that are not strings keep
// their JSON form, so they never read as "in progress".
func statusText(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// reportProgress logs p and forwards it to the progress reporter, if any.
func (c *Client) reportProgress(p TaskProgress) {
	logging.WithCommand(p.Command).Info(p.String())
	c.metrics.ObserveTaskPoll(p.Status)
	if c.progress != nil {
		c.progress(p)
	}
}
