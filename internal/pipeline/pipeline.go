// Package pipeline runs one inbound message through the full loop: gather
// context, reason, normalize, act, persist. It owns no behavior of its own
// beyond sequencing; each stage lives in its own package.
package pipeline

import (
	"context"
	"fmt"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/decision"
	"github.com/valet-hq/valet/internal/dispatch"
	"github.com/valet-hq/valet/internal/history"
	"github.com/valet-hq/valet/internal/llm"
	"github.com/valet-hq/valet/internal/logging"
	"github.com/valet-hq/valet/internal/memory"
	"github.com/valet-hq/valet/internal/notify"
)

const (
	relevantMemories = 5

	// unreachableNotice is sent when the reasoner cannot be reached; the
	// owner should not be left wondering whether the message arrived.
	unreachableNotice = "I received your message but can't reach my reasoning service right now. I'll be back shortly."
)

// Result is the outcome of one pipeline run.
type Result struct {
	Decision core.Decision
	Actions  []core.ActionResult
}

// Pipeline sequences one message through reasoning and action.
type Pipeline struct {
	reasoner   llm.Reasoner
	normalizer *decision.Normalizer
	dispatcher *dispatch.Dispatcher
	history    *history.Log
	facts      *memory.Facts
	notifier   notify.Notifier
	owner      string
}

// New creates a pipeline. history, facts and notifier may be nil; the
// corresponding stages are skipped.
func New(reasoner llm.Reasoner, normalizer *decision.Normalizer, dispatcher *dispatch.Dispatcher,
	hist *history.Log, facts *memory.Facts, notifier notify.Notifier, owner string) *Pipeline {
	return &Pipeline{
		reasoner:   reasoner,
		normalizer: normalizer,
		dispatcher: dispatcher,
		history:    hist,
		facts:      facts,
		notifier:   notifier,
		owner:      owner,
	}
}

// Handle runs one inbound message end to end. A reasoner outage is the one
// failure that aborts the run; everything after a decision exists is
// degraded, not fatal.
func (p *Pipeline) Handle(ctx context.Context, msg core.InboundMessage) (*Result, error) {
	scope := msg.Scope
	if scope == "" {
		scope = core.ScopeGeneral
	}
	channel := string(msg.Channel)

	var turns []core.Turn
	if p.history != nil {
		turns = p.history.Turns(channel)
	}

	var memories []string
	if p.facts != nil {
		facts, err := p.facts.Relevant(msg.Text, relevantMemories)
		if err != nil {
			logging.Warn("memory retrieval failed: %v", err)
		}
		for _, f := range facts {
			memories = append(memories, f.Text)
		}
	}

	raw, err := p.reasoner.Respond(ctx, msg.Text, turns, memories, scope)
	if err != nil {
		p.notifyOwner(ctx, unreachableNotice)
		return nil, fmt.Errorf("reasoning: %w", err)
	}

	d := p.normalizer.Normalize(raw, scope)

	result := &Result{Decision: d}
	if d.Action != "" {
		result.Actions = append(result.Actions, p.dispatcher.Dispatch(ctx, d.Plan))
	}
	if plan, ok := decision.DeliveryPlan(d); ok {
		result.Actions = append(result.Actions, p.dispatcher.Dispatch(ctx, plan))
	}

	if p.facts != nil {
		p.facts.Apply(d.Memory)
	}

	if p.history != nil {
		err := p.history.Append(channel,
			core.Turn{Role: "user", Content: msg.Text},
			core.Turn{Role: "assistant", Content: d.Response},
		)
		if err != nil {
			logging.Warn("history append failed: %v", err)
		}
	}

	return result, nil
}

func (p *Pipeline) notifyOwner(ctx context.Context, message string) {
	if p.notifier == nil || p.owner == "" {
		return
	}
	if err := p.notifier.Deliver(ctx, p.owner, message); err != nil {
		logging.Warn("owner notification failed: %v", err)
	}
}
