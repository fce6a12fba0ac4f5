package decision

import (
	"testing"

	"github.com/valet-hq/valet/internal/core"
)

func TestNormalizeWellFormed(t *testing.T) {
	n := NewNormalizer("")
	raw := `{"response": "Marked it as spam.", "action": "mark_spam", "sender": "newsletter@example.com", "account": "work"}`

	d := n.Normalize(raw, core.ScopeGeneral)
	if d.Response != "Marked it as spam." {
		t.Errorf("response = %q", d.Response)
	}
	if d.Action != "mark_spam" {
		t.Errorf("action = %q", d.Action)
	}
	if d.Plan.String("sender") != "newsletter@example.com" {
		t.Errorf("plan lost fields: %+v", d.Plan.Fields)
	}
}

func TestNormalizeEmptyObject(t *testing.T) {
	n := NewNormalizer("")
	d := n.Normalize(`{}`, core.ScopeGeneral)

	if d.Response == "" {
		t.Error("empty input must still yield a deliverable response")
	}
	if d.Action != "" {
		t.Errorf("empty input must yield no action, got %q", d.Action)
	}
}

func TestNormalizeMalformedJSON(t *testing.T) {
	n := NewNormalizer("")

	t.Run("repairable", func(t *testing.T) {
		// Trailing comma and single quotes, the usual model damage.
		d := n.Normalize(`{'response': 'done', 'action': 'check_email',}`, core.ScopeGeneral)
		if d.Response != "done" {
			t.Errorf("repair should recover response, got %q", d.Response)
		}
		if d.Action != "check_email" {
			t.Errorf("repair should recover action, got %q", d.Action)
		}
	})

	t.Run("hopeless", func(t *testing.T) {
		d := n.Normalize(`I can't produce JSON today`, core.ScopeGeneral)
		if d.Response == "" {
			t.Error("unusable input must degrade to the fallback response")
		}
		if d.Action != "" {
			t.Errorf("unusable input must carry no action, got %q", d.Action)
		}
	})
}

func TestNormalizeScopeFiltering(t *testing.T) {
	n := NewNormalizer("")

	t.Run("delete dropped in email scope", func(t *testing.T) {
		d := n.Normalize(`{"response": "deleting", "action": "delete_email", "emailId": "3"}`, core.ScopeEmail)
		if d.Action != "" {
			t.Errorf("delete_email must be dropped in email scope, got %q", d.Action)
		}
		if d.Response != "deleting" {
			t.Errorf("response must survive the drop, got %q", d.Response)
		}
	})

	t.Run("error scope only replies and reschedules", func(t *testing.T) {
		if !Allowed(core.ScopeError, "send_message") {
			t.Error("send_message must be allowed in error scope")
		}
		if !Allowed(core.ScopeError, "schedule_reminder") {
			t.Error("schedule_reminder must be allowed in error scope")
		}
		if Allowed(core.ScopeError, "send_email") {
			t.Error("send_email must not be allowed in error scope")
		}
		if Allowed(core.ScopeError, "delete_email") {
			t.Error("delete_email must not be allowed in error scope")
		}
	})

	t.Run("unknown scope falls back to general", func(t *testing.T) {
		d := n.Normalize(`{"response": "ok", "action": "remember", "fact": "likes coffee"}`, core.Scope("mystery"))
		if d.Action != "remember" {
			t.Errorf("unknown scope should use the general set, got %q", d.Action)
		}
	})
}

func TestDeliveryPlan(t *testing.T) {
	t.Run("no action synthesizes delivery", func(t *testing.T) {
		plan, ok := DeliveryPlan(core.Decision{Response: "just chatting"})
		if !ok {
			t.Fatal("decision without action needs a delivery plan")
		}
		if plan.Action != DeliverAction {
			t.Errorf("action = %q, want %q", plan.Action, DeliverAction)
		}
		if plan.Fields["message"] != "just chatting" {
			t.Errorf("message = %v", plan.Fields["message"])
		}
	})

	t.Run("existing delivery action suppresses synthesis", func(t *testing.T) {
		if _, ok := DeliveryPlan(core.Decision{Response: "sent", Action: "send_message"}); ok {
			t.Error("send_message already delivers; no second plan")
		}
		if _, ok := DeliveryPlan(core.Decision{Response: "sent", Action: "send_email"}); ok {
			t.Error("send_email already delivers; no second plan")
		}
	})

	t.Run("side-effect action suppresses synthesis", func(t *testing.T) {
		if _, ok := DeliveryPlan(core.Decision{Response: "flagged", Action: "mark_spam"}); ok {
			t.Error("dispatcher notify policy delivers after side-effect actions")
		}
	})
}

func TestNormalizeMemory(t *testing.T) {
	n := NewNormalizer("")
	raw := `{
		"response": "noted",
		"memory": {
			"add": ["likes espresso", ""],
			"update": [{"id": "m1", "text": "prefers tea now"}, {"id": "", "text": "orphan"}, "garbage"],
			"delete": ["m2", 7]
		}
	}`

	d := n.Normalize(raw, core.ScopeGeneral)
	if len(d.Memory.Add) != 1 || d.Memory.Add[0] != "likes espresso" {
		t.Errorf("add = %v", d.Memory.Add)
	}
	if len(d.Memory.Update) != 1 || d.Memory.Update[0].ID != "m1" {
		t.Errorf("update = %v", d.Memory.Update)
	}
	if len(d.Memory.Delete) != 1 || d.Memory.Delete[0] != "m2" {
		t.Errorf("delete = %v", d.Memory.Delete)
	}
}

func TestActionsPerScope(t *testing.T) {
	general := Actions(core.ScopeGeneral)
	email := Actions(core.ScopeEmail)
	errScope := Actions(core.ScopeError)

	if len(general) <= len(email) || len(email) <= len(errScope) {
		t.Errorf("scope sets should narrow: general %d, email %d, error %d",
			len(general), len(email), len(errScope))
	}
}
