package models

import (
	"errors"
	"fmt"
)

// Playbook is an ordered list of management API steps applied within one
// session by "cpmgmt apply".
//
// Example:
//
//	publish: true
//	discardOnFailure: true
//	steps:
//	  - command: add-host
//	    payload: {name: h1, ip-address: 10.0.0.1}
//	    check: true
//	  - query: show-hosts
//	    detailsLevel: standard
//	    output: hosts.json
type Playbook struct {
	Publish          bool           `yaml:"publish"`
	DiscardOnFailure bool           `yaml:"discardOnFailure"`
	Steps            []PlaybookStep `yaml:"steps"`
}

// PlaybookStep is either a single call (Command) or an aggregated listing (Query).
type PlaybookStep struct {
	Name         string                      `yaml:"name"`
	Command      string                      `yaml:"command"`
	Query        string                      `yaml:"query"`
	DetailsLevel string                      `yaml:"detailsLevel"`
	Payload      map[interface{}]interface{} `yaml:"payload"`
	Check        bool                        `yaml:"check"`
	Output       string                      `yaml:"output"`
}

// Validate checks that every step names exactly one command or query.
func (p *Playbook) Validate() error {
	if len(p.Steps) == 0 {
		return errors.New("playbook has no steps")
	}
	for i, step := range p.Steps {
		switch {
		case step.Command == "" && step.Query == "":
			return fmt.Errorf("step %d: command or query is required", i+1)
		case step.Command != "" && step.Query != "":
			return fmt.Errorf("step %d: command and query are mutually exclusive", i+1)
		case step.Command != "" && step.Output != "":
			return fmt.Errorf("step %d: output is only supported for queries", i+1)
		}
	}
	return nil
}

// Label returns the step name, falling back to the command or query.
func (s PlaybookStep) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Command != "" {
		return s.Command
	}
	return s.Query
}

// JSONPayload converts the YAML payload into a JSON-compatible Payload.
func (s PlaybookStep) JSONPayload() (Payload, error) {
	out := Payload{}
	for k, v := range s.Payload {
		key, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("payload key %v is not a string", k)
		}
		nv, err := NormalizeYAML(v)
		if err != nil {
			return nil, err
		}
		out[key] = nv
	}
	return out, nil
}

// NormalizeYAML converts the map[interface{}]interface{} values produced by
// yaml.v2 into map[string]interface{} so they can be encoded as JSON.
func NormalizeYAML(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("payload key %v is not a string", k)
			}
			nv, err := NormalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[key] = nv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			nv, err := NormalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}
