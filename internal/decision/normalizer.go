// Package decision makes the untrusted reasoning output safe to act on.
// The model's JSON may be malformed, may name an action the current scope
// does not permit, and may omit the user-facing reply entirely; the
// normalizer enforces the invariants the dispatcher relies on.
package decision

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/logging"
)

// DefaultResponse is the canned reply used when the model produced no
// usable response text. A decision must never leave the normalizer without
// a deliverable response.
const DefaultResponse = "I'm on it, but I couldn't put together a proper reply. Could you rephrase?"

// DeliverAction is the synthesized default-channel delivery action. Every
// decision carries a deliverable response: when no action survives
// normalization, the response is sent through this one.
const DeliverAction = "send_message"

// deliveryActions are the actions that already carry the response to the
// user on their own; no synthesis is needed when one of these is present.
var deliveryActions = map[string]bool{
	DeliverAction: true,
	"send_email":  true,
}

// allowed holds the permission set per scope. An action outside its scope's
// set is silently dropped, never fatal.
var allowed = map[core.Scope]map[string]bool{
	core.ScopeGeneral: {
		"send_message":      true,
		"send_email":        true,
		"check_email":       true,
		"search_email":      true,
		"mark_read":         true,
		"mark_unread":       true,
		"mark_spam":         true,
		"delete_email":      true,
		"move_email":        true,
		"unsubscribe":       true,
		"schedule_reminder": true,
		"list_reminders":    true,
		"cancel_reminder":   true,
		"remember":          true,
	},
	core.ScopeEmail: {
		"send_message":      true,
		"send_email":        true,
		"check_email":       true,
		"search_email":      true,
		"mark_read":         true,
		"mark_unread":       true,
		"move_email":        true,
		"unsubscribe":       true,
		"schedule_reminder": true,
	},
	core.ScopeError: {
		"send_message":      true,
		"schedule_reminder": true,
	},
}

// Allowed reports whether scope permits action. An unknown scope falls back
// to the general set.
func Allowed(scope core.Scope, action string) bool {
	set, ok := allowed[scope]
	if !ok {
		set = allowed[core.ScopeGeneral]
	}
	return set[action]
}

// Actions returns the sorted-by-declaration action names a scope permits,
// for building the reasoning prompt.
func Actions(scope core.Scope) []string {
	set, ok := allowed[scope]
	if !ok {
		set = allowed[core.ScopeGeneral]
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	return names
}

// Normalizer validates raw reasoning output into a Decision.
type Normalizer struct {
	fallbackResponse string
}

// NewNormalizer creates a normalizer. An empty fallback uses
// DefaultResponse.
func NewNormalizer(fallbackResponse string) *Normalizer {
	if fallbackResponse == "" {
		fallbackResponse = DefaultResponse
	}
	return &Normalizer{fallbackResponse: fallbackResponse}
}

// Normalize parses the raw model output and enforces the decision
// invariants for the given scope. It never fails: malformed input degrades
// to an empty plan, which still yields a deliverable decision.
func (n *Normalizer) Normalize(raw string, scope core.Scope) core.Decision {
	obj := parseObject(raw)
	plan := core.NewPlan(obj)

	d := core.Decision{
		Response: plan.Response,
		Plan:     plan,
		Memory:   normalizeMemory(obj["memory"]),
	}
	if d.Response == "" {
		d.Response = n.fallbackResponse
	}
	d.Plan.Response = d.Response

	if plan.Action != "" {
		if Allowed(scope, plan.Action) {
			d.Action = plan.Action
		} else {
			logging.Warn("dropping action %q not permitted in %s scope", plan.Action, scope)
		}
	}

	d.Plan.Action = d.Action
	return d
}

// DeliveryPlan applies the dual-action-set rule: when the decision carries
// no action (or the action is not itself a reply delivery), it returns a
// synthesized default-channel delivery plan for the response. A response
// must never be generated with no delivery mechanism.
func DeliveryPlan(d core.Decision) (core.Plan, bool) {
	if d.Action != "" && deliveryActions[d.Action] {
		return core.Plan{}, false
	}
	if d.Action != "" {
		// A side-effecting action is present; the dispatcher's notify
		// policy delivers the response after it runs.
		return core.Plan{}, false
	}
	return core.Plan{
		Action:   DeliverAction,
		Response: d.Response,
		Fields:   map[string]any{"message": d.Response},
	}, true
}

// parseObject decodes the model output into a JSON object. Malformed output
// gets one repair attempt; anything still unusable becomes an empty object
// rather than an error.
func parseObject(raw string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		logging.Debug("reasoning output unrepairable: %v", err)
		return map[string]any{}
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		logging.Debug("repaired reasoning output still not an object")
		return map[string]any{}
	}
	return obj
}

// normalizeMemory coerces the model's memory payload into the three typed
// arrays, discarding malformed entries instead of failing the decision.
func normalizeMemory(raw any) core.MemoryOps {
	var ops core.MemoryOps
	m, ok := raw.(map[string]any)
	if !ok {
		return ops
	}

	if adds, ok := m["add"].([]any); ok {
		for _, a := range adds {
			if s, ok := a.(string); ok && s != "" {
				ops.Add = append(ops.Add, s)
			}
		}
	}
	if updates, ok := m["update"].([]any); ok {
		for _, u := range updates {
			entry, ok := u.(map[string]any)
			if !ok {
				continue
			}
			id, _ := entry["id"].(string)
			text, _ := entry["text"].(string)
			if id != "" && text != "" {
				ops.Update = append(ops.Update, core.MemoryUpdate{ID: id, Text: text})
			}
		}
	}
	if deletes, ok := m["delete"].([]any); ok {
		for _, d := range deletes {
			if s, ok := d.(string); ok && s != "" {
				ops.Delete = append(ops.Delete, s)
			}
		}
	}
	return ops
}
