package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/fjacquet/cpmgmt/internal/utils"
)

// Payload is the free-form JSON object sent to or received from a command.
type Payload = map[string]interface{}

// Response is the result of one logical call to the management API.
//
// Data holds the decoded JSON body of a plain call. It is usually an
// object, but any JSON value is kept as sent. Objects is only populated by
// the query aggregator, which also resets Data to an empty object on the
// value it returns.
type Response struct {
	StatusCode int               `json:"status"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers"`
	Data       interface{}       `json:"data"`
	Objects    []interface{}     `json:"objects"`
}

// NewResponse returns an empty successful Response with non-nil containers.
func NewResponse() *Response {
	return &Response{
		StatusCode: 200,
		Headers:    map[string]string{},
		Data:       Payload{},
		Objects:    []interface{}{},
	}
}

// Fields returns Data when the body is a JSON object, nil otherwise.
func (r *Response) Fields() Payload {
	m, _ := r.Data.(map[string]interface{})
	return m
}

// Field returns data[name]. A body that is not an object has no fields.
func (r *Response) Field(name string) (interface{}, bool) {
	v, ok := r.Fields()[name]
	return v, ok
}

// IsInformational reports a 1xx status.
func (r *Response) IsInformational() bool {
	return r.StatusCode >= 100 && r.StatusCode < 200
}

// IsSuccess reports a 2xx status with no embedded task that failed or only
// partially succeeded.
func (r *Response) IsSuccess() bool {
	if r.StatusCode < 200 || r.StatusCode >= 300 {
		return false
	}
	return !r.HasFailedTask()
}

// IsNotSuccess is the negation of IsSuccess.
func (r *Response) IsNotSuccess() bool {
	return !r.IsSuccess()
}

// IsRedirection reports a 3xx status.
func (r *Response) IsRedirection() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsClientError reports a 4xx status.
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError reports a 5xx status.
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// HasFailedTask reports whether data.tasks holds an entry whose status is
// failed or partially succeeded.
func (r *Response) HasFailedTask() bool {
	for _, task := range r.Tasks() {
		switch task["status"] {
		case TaskStatusFailed, TaskStatusPartiallySucceeded:
			return true
		}
	}
	return false
}

// Tasks returns the task entries found under data.tasks.
// Entries that are not JSON objects are skipped.
func (r *Response) Tasks() []Payload {
	raw, ok := r.Fields()["tasks"].([]interface{})
	if !ok {
		return nil
	}
	tasks := make([]Payload, 0, len(raw))
	for _, t := range raw {
		if m, ok := t.(map[string]interface{}); ok {
			tasks = append(tasks, m)
		}
	}
	return tasks
}

// TaskID returns data["task-id"] when the server accepted the call as an
// asynchronous task.
func (r *Response) TaskID() (string, bool) {
	id, ok := r.Fields()["task-id"].(string)
	return id, ok && id != ""
}

// Code returns the server's error code, if any.
func (r *Response) Code() string {
	s, _ := r.Fields()["code"].(string)
	return s
}

// Message returns the server's message, if any.
func (r *Response) Message() string {
	s, _ := r.Fields()["message"].(string)
	return s
}

// String renders Objects as JSON indented with four spaces.
func (r *Response) String() string {
	objects := r.Objects
	if objects == nil {
		objects = []interface{}{}
	}
	data, err := utils.MarshalIndent(objects)
	if err != nil {
		return fmt.Sprintf("error printing response objects: %v", err)
	}
	return string(data)
}

// SaveObjects writes Objects to path as JSON indented with four spaces.
func (r *Response) SaveObjects(path string) error {
	objects := r.Objects
	if objects == nil {
		objects = []interface{}{}
	}
	if err := utils.WriteJSONFile(path, objects); err != nil {
		return fmt.Errorf("failed to save objects: %w", err)
	}
	return nil
}

// AsInt converts a decoded JSON count to int. Only non-negative integral
// values are accepted: fractions, negatives and non-numbers report false.
func AsInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(n.String()); err == nil {
			return i, i >= 0
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatCount(f)
	case float64:
		return floatCount(n)
	case int:
		return n, n >= 0
	case int64:
		return int(n), n >= 0
	default:
		return 0, false
	}
}

func floatCount(f float64) (int, bool) {
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// AsString converts a decoded JSON scalar to its string form.
// Numbers are rendered without exponent.
func AsString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}
