package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/decision"
)

// SystemPrompt assembles the reasoning instructions for one invocation:
// the assistant persona, the actions the current context permits, the
// retrieved memories, and the required output shape.
func SystemPrompt(scope core.Scope, memories []string) string {
	actions := decision.Actions(scope)
	sort.Strings(actions)

	var b strings.Builder
	b.WriteString("You are Valet, a personal assistant reachable over SMS and email. ")
	b.WriteString("Keep replies short enough for a text message.\n\n")

	switch scope {
	case core.ScopeEmail:
		b.WriteString("You are processing an inbound email on the owner's behalf.\n")
	case core.ScopeError:
		b.WriteString("A previous action failed. Explain briefly and optionally schedule a retry.\n")
	}

	b.WriteString("\nRespond with a single JSON object:\n")
	b.WriteString(`{"response": "<reply to the owner>", "action": "<optional action name>", ...action fields, "memory": {"add": [], "update": [], "delete": []}}`)
	b.WriteString("\n\nPermitted actions in this context:\n")
	for _, a := range actions {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	b.WriteString("Omit \"action\" when no action is needed; \"response\" is always required.\n")

	if len(memories) > 0 {
		b.WriteString("\nThings you remember about the owner:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	return b.String()
}
