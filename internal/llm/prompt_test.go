package llm

import (
	"strings"
	"testing"

	"github.com/valet-hq/valet/internal/core"
)

func TestSystemPrompt(t *testing.T) {
	t.Run("general scope lists mail actions", func(t *testing.T) {
		p := SystemPrompt(core.ScopeGeneral, nil)
		for _, action := range []string{"mark_spam", "delete_email", "schedule_reminder", "remember"} {
			if !strings.Contains(p, action) {
				t.Errorf("general prompt missing %s", action)
			}
		}
	})

	t.Run("error scope is narrow", func(t *testing.T) {
		p := SystemPrompt(core.ScopeError, nil)
		if !strings.Contains(p, "send_message") || !strings.Contains(p, "schedule_reminder") {
			t.Error("error prompt missing its permitted actions")
		}
		if strings.Contains(p, "delete_email") || strings.Contains(p, "mark_spam") {
			t.Error("error prompt lists forbidden actions")
		}
	})

	t.Run("memories included", func(t *testing.T) {
		p := SystemPrompt(core.ScopeGeneral, []string{"allergic to peanuts"})
		if !strings.Contains(p, "allergic to peanuts") {
			t.Error("memories missing from prompt")
		}
	})
}
