// Package actions extracts the structured commands a professor reply embeds
// in fenced JSON blocks while the reply is still streaming.
package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Wire names of the supported actions.
const (
	KindWriteCode = "WRITE_CODE"
	KindDebugStep = "DEBUG_STEP"
)

var (
	// ErrIncomplete means the fenced body is not (yet) valid JSON. During
	// streaming this is the normal state of a fence that is still open.
	ErrIncomplete = errors.New("action body is not complete JSON")

	// ErrInvalidAction means the body is valid JSON but not a known action.
	ErrInvalidAction = errors.New("invalid action")
)

// Action is a decoded command. It is either WriteCode or DebugStep.
type Action interface {
	Kind() string
}

// WriteCode asks the editor to show code.
type WriteCode struct {
	Code string `json:"code"`
}

func (WriteCode) Kind() string { return KindWriteCode }

// DebugStep carries one snapshot of the simulated debugger.
type DebugStep struct {
	State DebuggerState `json:"state"`
}

func (DebugStep) Kind() string { return KindDebugStep }

// DebuggerState is the full state of the simulated debugger after a step.
// It replaces the previous state wholesale.
type DebuggerState struct {
	Line       int        `json:"line"`
	Variables  []Variable `json:"variables"`
	CallStack  []string   `json:"callstack"`
	Output     string     `json:"output"`
	Reason     string     `json:"reason"`
	IsFinished bool       `json:"isFinished"`
}

// Variable is one row of the debugger's variable table.
type Variable struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// UnmarshalJSON accepts non-string type and value fields. Models often
// send numbers or lists for value; those are kept as their JSON text.
func (v *Variable) UnmarshalJSON(b []byte) error {
	var raw struct {
		Name  string          `json:"name"`
		Type  json.RawMessage `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v.Name = raw.Name
	v.Type = looseString(raw.Type)
	v.Value = looseString(raw.Value)
	return nil
}

func looseString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// Match is an action found in a reply, with the byte offset of its fence.
type Match struct {
	Offset int
	Action Action
}

// Decode parses one fenced action body. It returns an error wrapping
// ErrIncomplete when body is not valid JSON and ErrInvalidAction when the
// JSON does not describe a known action.
func Decode(body string) (Action, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	if err := validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	var envelope struct {
		Action string          `json:"action"`
		Code   string          `json:"code"`
		State  json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	switch envelope.Action {
	case KindWriteCode:
		return WriteCode{Code: envelope.Code}, nil
	case KindDebugStep:
		var state DebuggerState
		if err := json.Unmarshal(envelope.State, &state); err != nil {
			return nil, fmt.Errorf("%w: debugger state: %v", ErrInvalidAction, err)
		}
		return DebugStep{State: state}, nil
	}
	return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, envelope.Action)
}
