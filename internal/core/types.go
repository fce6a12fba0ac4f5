// Package core defines the fundamental types for Valet.
// These types are shared by every layer of the system.
package core

import (
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// PLAN - The loosely-typed action proposal from the reasoning step
// -----------------------------------------------------------------------------

// Plan is the action proposal emitted by the reasoning collaborator.
// It carries no schema guarantee: the action name may be blank, field names
// are inconsistent, and values are whatever the model produced. Everything
// downstream of the normalizer treats a Plan as untrusted input.
type Plan struct {
	Action   string         `json:"action"`
	Response string         `json:"response"`
	Fields   map[string]any `json:"fields"`
}

// NewPlan builds a Plan from a raw decoded JSON object. The action and
// response keys are lifted out; everything else stays in Fields.
func NewPlan(raw map[string]any) Plan {
	p := Plan{Fields: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "action":
			if s, ok := v.(string); ok {
				p.Action = strings.TrimSpace(s)
			}
		case "response":
			if s, ok := v.(string); ok {
				p.Response = s
			}
		default:
			p.Fields[k] = v
		}
	}
	return p
}

// String returns the trimmed string value of a field, or "" when the field
// is absent or not a string.
func (p Plan) String(key string) string {
	v, ok := p.Fields[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// FirstString returns the first non-empty string value among the given keys,
// in order. First writer wins; later aliases never override an earlier one.
func (p Plan) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := p.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Has reports whether the field is present, regardless of type.
func (p Plan) Has(key string) bool {
	_, ok := p.Fields[key]
	return ok
}

// -----------------------------------------------------------------------------
// SEARCH CRITERIA - What identifies an email besides a sequence number
// -----------------------------------------------------------------------------

// SearchCriteria narrows an email search. At most three keys; a criteria set
// with no keys must never be passed to a search.
type SearchCriteria struct {
	Subject string `json:"subject,omitempty"`
	Sender  string `json:"sender,omitempty"`
	Content string `json:"content,omitempty"`
}

// Empty reports whether no criterion is set.
func (c SearchCriteria) Empty() bool {
	return c.Subject == "" && c.Sender == "" && c.Content == ""
}

// String renders the criteria for error messages and logs.
func (c SearchCriteria) String() string {
	var parts []string
	if c.Subject != "" {
		parts = append(parts, "subject="+c.Subject)
	}
	if c.Sender != "" {
		parts = append(parts, "sender="+c.Sender)
	}
	if c.Content != "" {
		parts = append(parts, "content="+c.Content)
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, " ")
}

// -----------------------------------------------------------------------------
// DECISION - The validated reasoning output
// -----------------------------------------------------------------------------

// Scope is the permission context that gates which actions a decision
// may invoke.
type Scope string

const (
	ScopeGeneral Scope = "general"
	ScopeEmail   Scope = "email"
	ScopeError   Scope = "error"
)

// Decision is the normalized, safe-to-act-on form of the reasoning output.
// Response is always non-empty; Action, when set, belongs to the permission
// set of the scope it was normalized under.
type Decision struct {
	Response string    `json:"response"`
	Action   string    `json:"action,omitempty"`
	Plan     Plan      `json:"plan"`
	Memory   MemoryOps `json:"memory"`
}

// MemoryOps is the normalized memory payload of a decision.
type MemoryOps struct {
	Add    []string       `json:"add,omitempty"`
	Update []MemoryUpdate `json:"update,omitempty"`
	Delete []string       `json:"delete,omitempty"`
}

// MemoryUpdate rewrites an existing memory fact.
type MemoryUpdate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Empty reports whether the payload carries no operations.
func (m MemoryOps) Empty() bool {
	return len(m.Add) == 0 && len(m.Update) == 0 && len(m.Delete) == 0
}

// -----------------------------------------------------------------------------
// ACTION RESULT - Uniform outcome shape for every dispatched action
// -----------------------------------------------------------------------------

// ActionResult is produced by the dispatcher for every invocation. Handler
// failures are captured here; they never propagate past the dispatcher.
type ActionResult struct {
	Success bool           `json:"success"`
	Action  string         `json:"action,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// -----------------------------------------------------------------------------
// MESSAGES - Inbound events and conversation turns
// -----------------------------------------------------------------------------

// Channel identifies the transport an inbound message arrived on.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelTerminal Channel = "terminal"
)

// InboundMessage is an event entering the pipeline. A blank Scope is
// treated as ScopeGeneral.
type InboundMessage struct {
	Channel   Channel   `json:"channel"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Scope     Scope     `json:"scope,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn is one conversation exchange kept in rolling history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
