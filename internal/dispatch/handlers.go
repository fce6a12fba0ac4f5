package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/mailbox"
	"github.com/valet-hq/valet/internal/memory"
	"github.com/valet-hq/valet/internal/notify"
	"github.com/valet-hq/valet/internal/reminders"
	"github.com/valet-hq/valet/internal/resolve"
)

// Handlers share a common shape: resolve the account, resolve the target
// where one is needed, invoke exactly one collaborator method, and return a
// small details map. Handlers that push their own user-facing summary set
// SkipOwnerNotification so the dispatcher's notify policy does not deliver
// a second message.

// ==================== Send Message ====================

// SendMessageHandler delivers the free-text response through the default
// notification channel. This is the synthesized fallback action of the dual
// action sets rule.
type SendMessageHandler struct {
	notifier notify.Notifier
	owner    string
}

// NewSendMessageHandler creates the default-channel delivery handler.
func NewSendMessageHandler(notifier notify.Notifier, owner string) *SendMessageHandler {
	return &SendMessageHandler{notifier: notifier, owner: owner}
}

func (h *SendMessageHandler) Name() string { return "send_message" }

func (h *SendMessageHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	if h.notifier == nil || h.owner == "" {
		return nil, core.ErrNoOwnerContact
	}
	message := plan.FirstString("message", "text")
	if message == "" {
		message = plan.Response
	}
	if message == "" {
		return nil, fmt.Errorf("nothing to send")
	}
	if err := h.notifier.Deliver(ctx, h.owner, message); err != nil {
		return nil, err
	}
	// The message itself was the delivery.
	return &HandlerResult{
		Details:               map[string]any{"target": h.owner},
		SkipOwnerNotification: true,
	}, nil
}

// ==================== Send Email ====================

// SendEmailHandler sends an email from one of the configured accounts.
type SendEmailHandler struct {
	mail mailbox.Mailbox
}

// NewSendEmailHandler creates a send handler.
func NewSendEmailHandler(mail mailbox.Mailbox) *SendEmailHandler {
	return &SendEmailHandler{mail: mail}
}

func (h *SendEmailHandler) Name() string { return "send_email" }

func (h *SendEmailHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	if h.mail == nil {
		return nil, core.ErrMailboxNotConfigured
	}
	account, err := resolve.Account(h.mail.Accounts(), plan.FirstString("account", "accountId", "account_id", "from_account"))
	if err != nil {
		return nil, err
	}

	to := plan.FirstString("to", "recipient", "email")
	if to == "" {
		return nil, fmt.Errorf("no recipient")
	}
	subject := plan.FirstString("subject", "subject_line", "title")
	body := plan.FirstString("body", "content", "text", "message")
	if body == "" {
		body = plan.Response
	}

	err = h.mail.SendEmail(ctx, mailbox.SendRequest{
		AccountID: account.ID,
		To:        to,
		Subject:   subject,
		Body:      body,
	})
	if err != nil {
		return nil, err
	}
	return &HandlerResult{Details: map[string]any{
		"accountId": account.ID,
		"to":        to,
		"subject":   subject,
	}}, nil
}

// ==================== Check Email ====================

// CheckEmailHandler summarizes the most recent inbox messages and pushes
// the summary to the owner itself.
type CheckEmailHandler struct {
	mail     mailbox.Mailbox
	notifier notify.Notifier
	owner    string
}

// NewCheckEmailHandler creates a check handler.
func NewCheckEmailHandler(mail mailbox.Mailbox, notifier notify.Notifier, owner string) *CheckEmailHandler {
	return &CheckEmailHandler{mail: mail, notifier: notifier, owner: owner}
}

func (h *CheckEmailHandler) Name() string { return "check_email" }

func (h *CheckEmailHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	if h.mail == nil {
		return nil, core.ErrMailboxNotConfigured
	}
	account, err := resolve.Account(h.mail.Accounts(), plan.FirstString("account", "accountId", "account_id"))
	if err != nil {
		return nil, err
	}

	limit := intField(plan, 5, "limit", "count")
	emails, err := h.mail.RecentEmails(ctx, account.ID, limit)
	if err != nil {
		return nil, err
	}

	summary := summarizeEmails(account.ID, emails)
	if h.notifier != nil && h.owner != "" {
		if err := h.notifier.Deliver(ctx, h.owner, summary); err != nil {
			return nil, err
		}
	}
	return &HandlerResult{
		Details:               map[string]any{"accountId": account.ID, "count": len(emails)},
		SkipOwnerNotification: true,
	}, nil
}

func summarizeEmails(accountID string, emails []mailbox.EmailSummary) string {
	if len(emails) == 0 {
		return fmt.Sprintf("No recent email in %s.", accountID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Recent email in %s:\n", accountID)
	for _, e := range emails {
		marker := ""
		if e.Unread {
			marker = "[unread] "
		}
		fmt.Fprintf(&b, "#%d %s%s - %s\n", e.SeqNum, marker, e.From, e.Subject)
	}
	return b.String()
}

// ==================== Search Email ====================

// SearchEmailHandler derives criteria from the plan, searches, and reports
// the matches to the owner itself.
type SearchEmailHandler struct {
	mail     mailbox.Mailbox
	notifier notify.Notifier
	owner    string
}

// NewSearchEmailHandler creates a search handler.
func NewSearchEmailHandler(mail mailbox.Mailbox, notifier notify.Notifier, owner string) *SearchEmailHandler {
	return &SearchEmailHandler{mail: mail, notifier: notifier, owner: owner}
}

func (h *SearchEmailHandler) Name() string { return "search_email" }

func (h *SearchEmailHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	if h.mail == nil {
		return nil, core.ErrMailboxNotConfigured
	}
	account, err := resolve.Account(h.mail.Accounts(), plan.FirstString("account", "accountId", "account_id"))
	if err != nil {
		return nil, err
	}

	criteria := resolve.Criteria(plan)
	if criteria.Empty() {
		return nil, core.ErrMissingIdentification
	}

	seqs, err := h.mail.SearchSequenceNumbers(ctx, account.ID, criteria, 5)
	if err != nil {
		return nil, err
	}

	var summary string
	if len(seqs) == 0 {
		summary = fmt.Sprintf("No email in %s matched %s.", account.ID, criteria)
	} else {
		summary = fmt.Sprintf("Found %d matches in %s for %s.", len(seqs), account.ID, criteria)
	}
	if h.notifier != nil && h.owner != "" {
		if err := h.notifier.Deliver(ctx, h.owner, summary); err != nil {
			return nil, err
		}
	}
	return &HandlerResult{
		Details:               map[string]any{"accountId": account.ID, "matches": seqs},
		SkipOwnerNotification: true,
	}, nil
}

// ==================== Flag / Delete / Move ====================

// flagOp is one single-message mailbox operation.
type flagOp func(m mailbox.Mailbox, ctx context.Context, accountID string, seq int) error

// FlagHandler covers mark_read, mark_unread, mark_spam and delete_email:
// resolve account, resolve target, one mailbox call.
type FlagHandler struct {
	name     string
	mail     mailbox.Mailbox
	resolver *resolve.Resolver
	op       flagOp
}

// NewMarkReadHandler creates the mark_read handler.
func NewMarkReadHandler(mail mailbox.Mailbox, resolver *resolve.Resolver) *FlagHandler {
	return &FlagHandler{name: "mark_read", mail: mail, resolver: resolver,
		op: func(m mailbox.Mailbox, ctx context.Context, a string, seq int) error { return m.MarkRead(ctx, a, seq) }}
}

// NewMarkUnreadHandler creates the mark_unread handler.
func NewMarkUnreadHandler(mail mailbox.Mailbox, resolver *resolve.Resolver) *FlagHandler {
	return &FlagHandler{name: "mark_unread", mail: mail, resolver: resolver,
		op: func(m mailbox.Mailbox, ctx context.Context, a string, seq int) error { return m.MarkUnread(ctx, a, seq) }}
}

// NewMarkSpamHandler creates the mark_spam handler.
func NewMarkSpamHandler(mail mailbox.Mailbox, resolver *resolve.Resolver) *FlagHandler {
	return &FlagHandler{name: "mark_spam", mail: mail, resolver: resolver,
		op: func(m mailbox.Mailbox, ctx context.Context, a string, seq int) error { return m.MarkSpam(ctx, a, seq) }}
}

// NewDeleteEmailHandler creates the delete_email handler.
func NewDeleteEmailHandler(mail mailbox.Mailbox, resolver *resolve.Resolver) *FlagHandler {
	return &FlagHandler{name: "delete_email", mail: mail, resolver: resolver,
		op: func(m mailbox.Mailbox, ctx context.Context, a string, seq int) error { return m.DeleteEmail(ctx, a, seq) }}
}

func (h *FlagHandler) Name() string { return h.name }

func (h *FlagHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	if h.mail == nil {
		return nil, core.ErrMailboxNotConfigured
	}
	account, err := resolve.Account(h.mail.Accounts(), plan.FirstString("account", "accountId", "account_id"))
	if err != nil {
		return nil, err
	}
	seq, err := h.resolver.Target(ctx, account.ID, plan)
	if err != nil {
		return nil, err
	}
	if err := h.op(h.mail, ctx, account.ID, seq); err != nil {
		return nil, err
	}
	return &HandlerResult{Details: map[string]any{
		"accountId": account.ID,
		"emailId":   seq,
	}}, nil
}

// MoveEmailHandler moves a message into a folder.
type MoveEmailHandler struct {
	mail     mailbox.Mailbox
	resolver *resolve.Resolver
}

// NewMoveEmailHandler creates the move_email handler.
func NewMoveEmailHandler(mail mailbox.Mailbox, resolver *resolve.Resolver) *MoveEmailHandler {
	return &MoveEmailHandler{mail: mail, resolver: resolver}
}

func (h *MoveEmailHandler) Name() string { return "move_email" }

func (h *MoveEmailHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	if h.mail == nil {
		return nil, core.ErrMailboxNotConfigured
	}
	account, err := resolve.Account(h.mail.Accounts(), plan.FirstString("account", "accountId", "account_id"))
	if err != nil {
		return nil, err
	}
	folder := plan.FirstString("folder", "label", "destination")
	if folder == "" {
		return nil, fmt.Errorf("no destination folder")
	}
	seq, err := h.resolver.Target(ctx, account.ID, plan)
	if err != nil {
		return nil, err
	}
	if err := h.mail.MoveEmail(ctx, account.ID, seq, folder); err != nil {
		return nil, err
	}
	return &HandlerResult{Details: map[string]any{
		"accountId": account.ID,
		"emailId":   seq,
		"folder":    folder,
	}}, nil
}

// ==================== Unsubscribe ====================

// UnsubscribeHandler extracts unsubscribe options from a message and pushes
// them to the owner itself.
type UnsubscribeHandler struct {
	mail     mailbox.Mailbox
	resolver *resolve.Resolver
	notifier notify.Notifier
	owner    string
}

// NewUnsubscribeHandler creates an unsubscribe handler.
func NewUnsubscribeHandler(mail mailbox.Mailbox, resolver *resolve.Resolver, notifier notify.Notifier, owner string) *UnsubscribeHandler {
	return &UnsubscribeHandler{mail: mail, resolver: resolver, notifier: notifier, owner: owner}
}

func (h *UnsubscribeHandler) Name() string { return "unsubscribe" }

func (h *UnsubscribeHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	if h.mail == nil {
		return nil, core.ErrMailboxNotConfigured
	}
	account, err := resolve.Account(h.mail.Accounts(), plan.FirstString("account", "accountId", "account_id"))
	if err != nil {
		return nil, err
	}
	seq, err := h.resolver.Target(ctx, account.ID, plan)
	if err != nil {
		return nil, err
	}
	info, err := h.mail.UnsubscribeInfo(ctx, account.ID, seq)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Unsubscribe options for %q from %s:\n", info.Subject, info.From)
	if info.ListUnsubscribe != "" {
		fmt.Fprintf(&b, "List-Unsubscribe: %s\n", info.ListUnsubscribe)
	}
	for _, link := range info.Links {
		fmt.Fprintf(&b, "- %s\n", link)
	}
	if info.ListUnsubscribe == "" && len(info.Links) == 0 {
		b.WriteString("No unsubscribe mechanism found.\n")
	}
	if h.notifier != nil && h.owner != "" {
		if err := h.notifier.Deliver(ctx, h.owner, b.String()); err != nil {
			return nil, err
		}
	}
	return &HandlerResult{
		Details: map[string]any{
			"accountId": account.ID,
			"emailId":   seq,
			"links":     info.Links,
		},
		SkipOwnerNotification: true,
	}, nil
}

// ==================== Reminders ====================

// ScheduleReminderHandler schedules a follow-up wake-up.
type ScheduleReminderHandler struct {
	store *reminders.Store
}

// NewScheduleReminderHandler creates a schedule_reminder handler.
func NewScheduleReminderHandler(store *reminders.Store) *ScheduleReminderHandler {
	return &ScheduleReminderHandler{store: store}
}

func (h *ScheduleReminderHandler) Name() string { return "schedule_reminder" }

func (h *ScheduleReminderHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	task := plan.FirstString("task", "reminder", "description", "text")
	if task == "" {
		return nil, fmt.Errorf("no reminder task")
	}
	delay := delayFromPlan(plan)
	reminderCtx := plan.FirstString("context", "reason")
	category := plan.FirstString("category")

	id, err := h.store.ScheduleWakeup(task, reminderCtx, category, delay)
	if err != nil {
		return nil, err
	}
	return &HandlerResult{Details: map[string]any{
		"reminderId": id,
		"delay":      delay.String(),
	}}, nil
}

// delayFromPlan reads the requested delay. Minutes, hours and days fields
// are accepted; a plan with no usable delay defaults to one hour.
func delayFromPlan(plan core.Plan) time.Duration {
	if m := intField(plan, 0, "delay_minutes", "delayMinutes", "minutes", "in_minutes"); m > 0 {
		return time.Duration(m) * time.Minute
	}
	if hr := intField(plan, 0, "delay_hours", "delayHours", "hours"); hr > 0 {
		return time.Duration(hr) * time.Hour
	}
	if d := intField(plan, 0, "delay_days", "days"); d > 0 {
		return time.Duration(d) * 24 * time.Hour
	}
	return time.Hour
}

// ListRemindersHandler enumerates pending reminders.
type ListRemindersHandler struct {
	store *reminders.Store
}

// NewListRemindersHandler creates a list_reminders handler.
func NewListRemindersHandler(store *reminders.Store) *ListRemindersHandler {
	return &ListRemindersHandler{store: store}
}

func (h *ListRemindersHandler) Name() string { return "list_reminders" }

func (h *ListRemindersHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	pending, err := h.store.PendingReminders()
	if err != nil {
		return nil, err
	}
	return &HandlerResult{Details: map[string]any{
		"count":     len(pending),
		"reminders": pending,
	}}, nil
}

// CancelReminderHandler cancels a reminder by id.
type CancelReminderHandler struct {
	store *reminders.Store
}

// NewCancelReminderHandler creates a cancel_reminder handler.
func NewCancelReminderHandler(store *reminders.Store) *CancelReminderHandler {
	return &CancelReminderHandler{store: store}
}

func (h *CancelReminderHandler) Name() string { return "cancel_reminder" }

func (h *CancelReminderHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	id := plan.FirstString("reminderId", "reminder_id", "id")
	if id == "" {
		return nil, fmt.Errorf("no reminder id")
	}
	if err := h.store.CancelReminder(id); err != nil {
		return nil, err
	}
	return &HandlerResult{Details: map[string]any{"reminderId": id}}, nil
}

// ==================== Memory ====================

// RememberHandler persists a fact into the memory store.
type RememberHandler struct {
	facts *memory.Facts
}

// NewRememberHandler creates a remember handler.
func NewRememberHandler(facts *memory.Facts) *RememberHandler {
	return &RememberHandler{facts: facts}
}

func (h *RememberHandler) Name() string { return "remember" }

func (h *RememberHandler) Execute(ctx context.Context, plan core.Plan) (*HandlerResult, error) {
	fact := plan.FirstString("fact", "memory", "note", "text")
	if fact == "" {
		return nil, fmt.Errorf("nothing to remember")
	}
	id, err := h.facts.Add(fact)
	if err != nil {
		return nil, err
	}
	return &HandlerResult{Details: map[string]any{"memoryId": id}}, nil
}

// ==================== Registration ====================

// Deps carries the collaborators handlers need.
type Deps struct {
	Mailbox   mailbox.Mailbox
	Resolver  *resolve.Resolver
	Reminders *reminders.Store
	Facts     *memory.Facts
	Notifier  notify.Notifier
	Owner     string
}

// RegisterAll registers every handler whose collaborators are available.
func RegisterAll(d *Dispatcher, deps Deps) {
	d.Register(NewSendMessageHandler(deps.Notifier, deps.Owner))

	if deps.Mailbox != nil {
		d.Register(NewSendEmailHandler(deps.Mailbox))
		d.Register(NewCheckEmailHandler(deps.Mailbox, deps.Notifier, deps.Owner))
		d.Register(NewSearchEmailHandler(deps.Mailbox, deps.Notifier, deps.Owner))
		d.Register(NewMarkReadHandler(deps.Mailbox, deps.Resolver))
		d.Register(NewMarkUnreadHandler(deps.Mailbox, deps.Resolver))
		d.Register(NewMarkSpamHandler(deps.Mailbox, deps.Resolver))
		d.Register(NewDeleteEmailHandler(deps.Mailbox, deps.Resolver))
		d.Register(NewMoveEmailHandler(deps.Mailbox, deps.Resolver))
		d.Register(NewUnsubscribeHandler(deps.Mailbox, deps.Resolver, deps.Notifier, deps.Owner))
	}

	if deps.Reminders != nil {
		d.Register(NewScheduleReminderHandler(deps.Reminders))
		d.Register(NewListRemindersHandler(deps.Reminders))
		d.Register(NewCancelReminderHandler(deps.Reminders))
	}

	if deps.Facts != nil {
		d.Register(NewRememberHandler(deps.Facts))
	}
}

// intField reads an integer field, accepting JSON numbers and digit
// strings. Returns def when no key yields a positive value.
func intField(plan core.Plan, def int, keys ...string) int {
	for _, key := range keys {
		if f, ok := plan.Fields[key].(float64); ok && f > 0 {
			return int(f)
		}
		if s := plan.String(key); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				return n
			}
		}
	}
	return def
}
