// Package intent implements the single entry point process_intent: request
// preflight (focus fallback, safe-writes guards, optimistic concurrency),
// the full intent catalog of handlers, the close-task runway derivation,
// and patch semantics.
package intent

import (
	"time"

	"github.com/apply-task/taskengine/internal/model"
)

// Request is the decoded form of an incoming JSON intent payload. Fields
// are a superset of what any single intent needs; handlers read only the
// ones relevant to them. Raw carries the original map for handlers that
// need intent-specific nested structures not worth promoting to named
// fields.
type Request struct {
	Intent string
	Raw    map[string]any

	Task string
	Plan string
	Path string

	ExpectedRevision    *uint64
	ExpectedTargetID    string
	ExpectedKind        string
	StrictTargeting     bool
	Audit               bool
	DryRun              bool
}

// TargetResolution records how a mutating intent's target id was decided.
type TargetResolution struct {
	Source string `json:"source"` // "explicit" | "focus" | "focus_task_parent"
	ID     string `json:"id"`
	Domain string `json:"domain,omitempty"`
}

// Suggestion is a concrete, ready-to-execute next action offered to the
// caller.
type Suggestion struct {
	Action    string         `json:"action"`
	Target    string         `json:"target,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Validated bool           `json:"validated,omitempty"`
}

// ResponseError is the error envelope carried by a failed Response.
type ResponseError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Recovery string `json:"recovery,omitempty"`
}

// Response is the single JSON object returned for every intent, matching
// §6.2's envelope.
type Response struct {
	Success     bool              `json:"success"`
	Intent      string            `json:"intent"`
	Result      map[string]any    `json:"result,omitempty"`
	Summary     *string           `json:"summary"`
	State       map[string]any    `json:"state,omitempty"`
	Hints       []map[string]any  `json:"hints,omitempty"`
	Warnings    []string          `json:"warnings"`
	Context     map[string]any    `json:"context,omitempty"`
	Suggestions []Suggestion      `json:"suggestions"`
	Meta        map[string]any    `json:"meta,omitempty"`
	Error       *ResponseError    `json:"error"`
	Timestamp   time.Time         `json:"timestamp"`
}

func newResponse(intent string) *Response {
	return &Response{
		Intent:      intent,
		Warnings:    []string{},
		Suggestions: []Suggestion{},
		Timestamp:   time.Now().UTC(),
	}
}

func (r *Response) ok() *Response {
	r.Success = true
	return r
}

func (r *Response) withResult(result map[string]any) *Response {
	r.Result = result
	return r
}

func (r *Response) withContext(ctx map[string]any) *Response {
	r.Context = ctx
	return r
}

func (r *Response) withMeta(meta map[string]any) *Response {
	r.Meta = meta
	return r
}

func (r *Response) withSuggestions(s ...Suggestion) *Response {
	r.Suggestions = append(r.Suggestions, s...)
	return r
}

func (r *Response) withWarning(w string) *Response {
	r.Warnings = append(r.Warnings, w)
	return r
}

// itemEnvelopeKey returns "plan" for a Plan item and "task" otherwise,
// matching §4.3.2's "updated Item under task or plan key" rule.
func itemEnvelopeKey(item *model.Item) string {
	if item != nil && item.IsPlan() {
		return "plan"
	}
	return "task"
}
