package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/decision"
	"github.com/valet-hq/valet/internal/dispatch"
	"github.com/valet-hq/valet/internal/history"
	"github.com/valet-hq/valet/internal/memory"
	"github.com/valet-hq/valet/internal/store"
	"github.com/valet-hq/valet/internal/testutil"
)

func newTestPipeline(reasoner *testutil.MockReasoner, notifier *testutil.MockNotifier) (*Pipeline, *history.Log, *memory.Facts) {
	db := store.NewMemory()
	hist := history.NewLog(db, 0)
	facts := memory.NewFacts(db)

	d := dispatch.NewDispatcher(notifier, dispatch.Config{OwnerContact: "owner@example.com"})
	d.Register(dispatch.NewSendMessageHandler(notifier, "owner@example.com"))

	p := New(reasoner, decision.NewNormalizer(""), d, hist, facts, notifier, "owner@example.com")
	return p, hist, facts
}

func msg(text string) core.InboundMessage {
	return core.InboundMessage{Channel: core.ChannelSMS, Sender: "owner", Text: text}
}

func TestHandleChatDeliversResponse(t *testing.T) {
	reasoner := &testutil.MockReasoner{
		RespondFunc: func(ctx context.Context, input string, history []core.Turn, memories []string, scope core.Scope) (string, error) {
			return `{"response": "You have nothing scheduled today."}`, nil
		},
	}
	notifier := &testutil.MockNotifier{}
	p, hist, _ := newTestPipeline(reasoner, notifier)

	result, err := p.Handle(context.Background(), msg("what's on today?"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Decision.Response != "You have nothing scheduled today." {
		t.Errorf("response = %q", result.Decision.Response)
	}

	// No action from the model means the synthesized delivery ran.
	if len(result.Actions) != 1 || !result.Actions[0].Success {
		t.Fatalf("actions = %+v", result.Actions)
	}
	if result.Actions[0].Action != "send_message" {
		t.Errorf("action = %q", result.Actions[0].Action)
	}
	if len(notifier.Deliveries) != 1 {
		t.Errorf("deliveries = %+v", notifier.Deliveries)
	}

	turns := hist.Turns(string(core.ChannelSMS))
	if len(turns) != 2 || turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("history = %+v", turns)
	}
}

func TestHandlePassesHistoryAndScope(t *testing.T) {
	var gotHistory []core.Turn
	var gotScope core.Scope
	reasoner := &testutil.MockReasoner{
		RespondFunc: func(ctx context.Context, input string, history []core.Turn, memories []string, scope core.Scope) (string, error) {
			gotHistory = history
			gotScope = scope
			return `{"response": "ok"}`, nil
		},
	}
	p, hist, _ := newTestPipeline(reasoner, &testutil.MockNotifier{})

	if err := hist.Append(string(core.ChannelSMS), core.Turn{Role: "user", Content: "earlier"}); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Handle(context.Background(), msg("now")); err != nil {
		t.Fatal(err)
	}
	if len(gotHistory) != 1 || gotHistory[0].Content != "earlier" {
		t.Errorf("history = %+v", gotHistory)
	}
	if gotScope != core.ScopeGeneral {
		t.Errorf("blank scope should default to general, got %q", gotScope)
	}
}

func TestHandleAppliesMemoryOps(t *testing.T) {
	reasoner := &testutil.MockReasoner{
		RespondFunc: func(ctx context.Context, input string, history []core.Turn, memories []string, scope core.Scope) (string, error) {
			return `{"response": "noted", "memory": {"add": ["cat is named Biscuit"]}}`, nil
		},
	}
	p, _, facts := newTestPipeline(reasoner, &testutil.MockNotifier{})

	if _, err := p.Handle(context.Background(), msg("my cat is named Biscuit")); err != nil {
		t.Fatal(err)
	}
	recent, err := facts.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Text != "cat is named Biscuit" {
		t.Errorf("facts = %+v", recent)
	}
}

func TestHandleReasonerUnreachable(t *testing.T) {
	reasoner := &testutil.MockReasoner{
		RespondFunc: func(ctx context.Context, input string, history []core.Turn, memories []string, scope core.Scope) (string, error) {
			return "", fmt.Errorf("%w: connection refused", core.ErrReasonerUnavailable)
		},
	}
	notifier := &testutil.MockNotifier{}
	p, hist, _ := newTestPipeline(reasoner, notifier)

	_, err := p.Handle(context.Background(), msg("hello?"))
	if err == nil {
		t.Fatal("reasoner outage must surface as an error")
	}

	// The owner got the best-effort outage notice.
	if len(notifier.Deliveries) != 1 {
		t.Fatalf("deliveries = %+v", notifier.Deliveries)
	}

	// Nothing was committed to history.
	if turns := hist.Turns(string(core.ChannelSMS)); len(turns) != 0 {
		t.Errorf("history = %+v", turns)
	}
}

func TestHandleMalformedModelOutputStillDelivers(t *testing.T) {
	reasoner := &testutil.MockReasoner{
		RespondFunc: func(ctx context.Context, input string, history []core.Turn, memories []string, scope core.Scope) (string, error) {
			return "total garbage, not json", nil
		},
	}
	notifier := &testutil.MockNotifier{}
	p, _, _ := newTestPipeline(reasoner, notifier)

	result, err := p.Handle(context.Background(), msg("hi"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Decision.Response == "" {
		t.Error("fallback response missing")
	}
	if len(notifier.Deliveries) != 1 {
		t.Errorf("fallback response must still be delivered, deliveries = %+v", notifier.Deliveries)
	}
}
