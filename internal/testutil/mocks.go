// Package testutil provides mocks and fixtures shared by package tests.
package testutil

import (
	"context"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/mailbox"
)

// MockMailbox implements mailbox.Mailbox with function fields. Unset
// functions behave as cheap no-ops so tests only wire what they assert on.
type MockMailbox struct {
	AccountList []mailbox.Account

	SendEmailFunc             func(ctx context.Context, req mailbox.SendRequest) error
	RecentEmailsFunc          func(ctx context.Context, accountID string, limit int) ([]mailbox.EmailSummary, error)
	SearchSequenceNumbersFunc func(ctx context.Context, accountID string, criteria core.SearchCriteria, limit int) ([]int, error)
	MarkReadFunc              func(ctx context.Context, accountID string, seq int) error
	MarkUnreadFunc            func(ctx context.Context, accountID string, seq int) error
	MarkSpamFunc              func(ctx context.Context, accountID string, seq int) error
	DeleteEmailFunc           func(ctx context.Context, accountID string, seq int) error
	MoveEmailFunc             func(ctx context.Context, accountID string, seq int, folder string) error
	UnsubscribeInfoFunc       func(ctx context.Context, accountID string, seq int) (*mailbox.UnsubscribeDetails, error)

	// Sent records every SendEmail request, wired or not.
	Sent []mailbox.SendRequest
}

func (m *MockMailbox) Accounts() []mailbox.Account {
	if m.AccountList == nil {
		return []mailbox.Account{{ID: "personal", Email: "owner@example.com"}}
	}
	return m.AccountList
}

func (m *MockMailbox) SendEmail(ctx context.Context, req mailbox.SendRequest) error {
	m.Sent = append(m.Sent, req)
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, req)
	}
	return nil
}

func (m *MockMailbox) RecentEmails(ctx context.Context, accountID string, limit int) ([]mailbox.EmailSummary, error) {
	if m.RecentEmailsFunc != nil {
		return m.RecentEmailsFunc(ctx, accountID, limit)
	}
	return nil, nil
}

func (m *MockMailbox) SearchSequenceNumbers(ctx context.Context, accountID string, criteria core.SearchCriteria, limit int) ([]int, error) {
	if m.SearchSequenceNumbersFunc != nil {
		return m.SearchSequenceNumbersFunc(ctx, accountID, criteria, limit)
	}
	return nil, nil
}

func (m *MockMailbox) MarkRead(ctx context.Context, accountID string, seq int) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, accountID, seq)
	}
	return nil
}

func (m *MockMailbox) MarkUnread(ctx context.Context, accountID string, seq int) error {
	if m.MarkUnreadFunc != nil {
		return m.MarkUnreadFunc(ctx, accountID, seq)
	}
	return nil
}

func (m *MockMailbox) MarkSpam(ctx context.Context, accountID string, seq int) error {
	if m.MarkSpamFunc != nil {
		return m.MarkSpamFunc(ctx, accountID, seq)
	}
	return nil
}

func (m *MockMailbox) DeleteEmail(ctx context.Context, accountID string, seq int) error {
	if m.DeleteEmailFunc != nil {
		return m.DeleteEmailFunc(ctx, accountID, seq)
	}
	return nil
}

func (m *MockMailbox) MoveEmail(ctx context.Context, accountID string, seq int, folder string) error {
	if m.MoveEmailFunc != nil {
		return m.MoveEmailFunc(ctx, accountID, seq, folder)
	}
	return nil
}

func (m *MockMailbox) UnsubscribeInfo(ctx context.Context, accountID string, seq int) (*mailbox.UnsubscribeDetails, error) {
	if m.UnsubscribeInfoFunc != nil {
		return m.UnsubscribeInfoFunc(ctx, accountID, seq)
	}
	return &mailbox.UnsubscribeDetails{}, nil
}

// MockReasoner implements llm.Reasoner with a function field.
type MockReasoner struct {
	RespondFunc func(ctx context.Context, input string, history []core.Turn, memories []string, scope core.Scope) (string, error)
}

func (m *MockReasoner) Respond(ctx context.Context, input string, history []core.Turn, memories []string, scope core.Scope) (string, error) {
	if m.RespondFunc != nil {
		return m.RespondFunc(ctx, input, history, memories, scope)
	}
	return `{"response": "ok"}`, nil
}

// Delivery is one recorded notification.
type Delivery struct {
	Target  string
	Message string
}

// MockNotifier implements notify.Notifier and records deliveries.
type MockNotifier struct {
	DeliverFunc func(ctx context.Context, target, message string) error
	Deliveries  []Delivery
}

func (m *MockNotifier) Deliver(ctx context.Context, target, message string) error {
	m.Deliveries = append(m.Deliveries, Delivery{Target: target, Message: message})
	if m.DeliverFunc != nil {
		return m.DeliverFunc(ctx, target, message)
	}
	return nil
}
