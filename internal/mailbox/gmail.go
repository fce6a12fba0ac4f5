package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/valet-hq/valet/internal/core"
)

// Gmail implements Mailbox over the Gmail API. Sequence numbers are assigned
// per account as messages are listed or searched, and live only for the
// process lifetime; the session map translates them back to Gmail message ids
// when an action fires.
type Gmail struct {
	accounts []Account
	services map[string]*gmail.Service // account id -> API client

	mu      sync.Mutex
	session map[string][]string // account id -> seq-1 indexed message ids
}

// NewGmail creates a Gmail mailbox over pre-authenticated services, keyed by
// account id. Every account must have a service.
func NewGmail(accounts []Account, services map[string]*gmail.Service) (*Gmail, error) {
	for _, a := range accounts {
		if services[a.ID] == nil {
			return nil, fmt.Errorf("no gmail service for account %q", a.ID)
		}
	}
	return &Gmail{
		accounts: accounts,
		services: services,
		session:  make(map[string][]string),
	}, nil
}

// Accounts lists the configured accounts.
func (g *Gmail) Accounts() []Account {
	out := make([]Account, len(g.accounts))
	copy(out, g.accounts)
	return out
}

func (g *Gmail) service(accountID string) (*gmail.Service, error) {
	svc, ok := g.services[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownAccount, accountID)
	}
	return svc, nil
}

// assign records message ids for an account's session and returns their
// sequence numbers. Ids already in the session keep their existing numbers.
func (g *Gmail) assign(accountID string, ids []string) []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	known := make(map[string]int, len(g.session[accountID]))
	for i, id := range g.session[accountID] {
		known[id] = i + 1
	}

	seqs := make([]int, 0, len(ids))
	for _, id := range ids {
		seq, ok := known[id]
		if !ok {
			g.session[accountID] = append(g.session[accountID], id)
			seq = len(g.session[accountID])
			known[id] = seq
		}
		seqs = append(seqs, seq)
	}
	return seqs
}

// messageID translates a session sequence number back to a Gmail message id.
func (g *Gmail) messageID(accountID string, seq int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := g.session[accountID]
	if seq < 1 || seq > len(ids) {
		return "", fmt.Errorf("sequence number %d not in session for account %s", seq, accountID)
	}
	return ids[seq-1], nil
}

// SendEmail sends a plain-text message.
func (g *Gmail) SendEmail(ctx context.Context, req SendRequest) error {
	svc, err := g.service(req.AccountID)
	if err != nil {
		return err
	}

	var raw strings.Builder
	raw.WriteString(fmt.Sprintf("To: %s\r\n", req.To))
	raw.WriteString(fmt.Sprintf("Subject: %s\r\n", req.Subject))
	raw.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	raw.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	raw.WriteString("\r\n")
	raw.WriteString(req.Body)

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString([]byte(raw.String()))}
	if _, err := svc.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// RecentEmails lists the newest inbox messages, most recent first.
func (g *Gmail) RecentEmails(ctx context.Context, accountID string, limit int) ([]EmailSummary, error) {
	svc, err := g.service(accountID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	resp, err := svc.Users.Messages.List("me").
		LabelIds("INBOX").
		MaxResults(int64(limit)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	seqs := g.assign(accountID, ids)

	summaries := make([]EmailSummary, 0, len(ids))
	for i, id := range ids {
		msg, err := svc.Users.Messages.Get("me", id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get message: %w", err)
		}
		s := EmailSummary{SeqNum: seqs[i], Snippet: msg.Snippet}
		for _, label := range msg.LabelIds {
			if label == "UNREAD" {
				s.Unread = true
				break
			}
		}
		if msg.Payload != nil {
			for _, h := range msg.Payload.Headers {
				switch strings.ToLower(h.Name) {
				case "from":
					s.From = h.Value
				case "subject":
					s.Subject = h.Value
				case "date":
					if t, err := parseDate(h.Value); err == nil {
						s.Date = t
					}
				}
			}
		}
		if s.Date.IsZero() {
			s.Date = time.UnixMilli(msg.InternalDate)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// SearchSequenceNumbers runs a Gmail query built from the criteria and
// returns session sequence numbers, most relevant first.
func (g *Gmail) SearchSequenceNumbers(ctx context.Context, accountID string, criteria core.SearchCriteria, limit int) ([]int, error) {
	if criteria.Empty() {
		return nil, fmt.Errorf("refusing to search with empty criteria")
	}
	svc, err := g.service(accountID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	resp, err := svc.Users.Messages.List("me").
		Q(buildQuery(criteria)).
		MaxResults(int64(limit)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return g.assign(accountID, ids), nil
}

func buildQuery(c core.SearchCriteria) string {
	var parts []string
	if c.Sender != "" {
		parts = append(parts, fmt.Sprintf("from:(%s)", c.Sender))
	}
	if c.Subject != "" {
		parts = append(parts, fmt.Sprintf("subject:(%s)", c.Subject))
	}
	if c.Content != "" {
		parts = append(parts, fmt.Sprintf("%q", c.Content))
	}
	return strings.Join(parts, " ")
}

func (g *Gmail) modify(ctx context.Context, accountID string, seq int, add, remove []string) error {
	svc, err := g.service(accountID)
	if err != nil {
		return err
	}
	id, err := g.messageID(accountID, seq)
	if err != nil {
		return err
	}
	_, err = svc.Users.Messages.Modify("me", id, &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("modify message: %w", err)
	}
	return nil
}

// MarkRead clears the unread flag.
func (g *Gmail) MarkRead(ctx context.Context, accountID string, seq int) error {
	return g.modify(ctx, accountID, seq, nil, []string{"UNREAD"})
}

// MarkUnread sets the unread flag.
func (g *Gmail) MarkUnread(ctx context.Context, accountID string, seq int) error {
	return g.modify(ctx, accountID, seq, []string{"UNREAD"}, nil)
}

// MarkSpam moves the message to spam.
func (g *Gmail) MarkSpam(ctx context.Context, accountID string, seq int) error {
	return g.modify(ctx, accountID, seq, []string{"SPAM"}, []string{"INBOX"})
}

// DeleteEmail moves the message to trash.
func (g *Gmail) DeleteEmail(ctx context.Context, accountID string, seq int) error {
	svc, err := g.service(accountID)
	if err != nil {
		return err
	}
	id, err := g.messageID(accountID, seq)
	if err != nil {
		return err
	}
	if _, err := svc.Users.Messages.Trash("me", id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash message: %w", err)
	}
	return nil
}

// MoveEmail applies the folder label (created on demand) and removes INBOX.
func (g *Gmail) MoveEmail(ctx context.Context, accountID string, seq int, folder string) error {
	svc, err := g.service(accountID)
	if err != nil {
		return err
	}
	labelID, err := getOrCreateLabel(ctx, svc, folder)
	if err != nil {
		return fmt.Errorf("resolve label: %w", err)
	}
	return g.modify(ctx, accountID, seq, []string{labelID}, []string{"INBOX"})
}

func getOrCreateLabel(ctx context.Context, svc *gmail.Service, name string) (string, error) {
	labels, err := svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	for _, label := range labels.Labels {
		if strings.EqualFold(label.Name, name) {
			return label.Id, nil
		}
	}

	created, err := svc.Users.Labels.Create("me", &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

// UnsubscribeInfo pulls the List-Unsubscribe header and any unsubscribe
// links out of the message body.
func (g *Gmail) UnsubscribeInfo(ctx context.Context, accountID string, seq int) (*UnsubscribeDetails, error) {
	svc, err := g.service(accountID)
	if err != nil {
		return nil, err
	}
	id, err := g.messageID(accountID, seq)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	info := &UnsubscribeDetails{}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "list-unsubscribe":
				info.ListUnsubscribe = h.Value
			case "from":
				info.From = h.Value
			case "subject":
				info.Subject = h.Value
			}
		}
		info.Links = unsubscribeLinks(extractBody(msg.Payload))
	}
	return info, nil
}

// unsubscribeLinks finds http(s) links whose URL mentions unsubscribing.
func unsubscribeLinks(body string) []string {
	var links []string
	lower := strings.ToLower(body)
	for i := 0; i < len(lower); {
		idx := strings.Index(lower[i:], "http")
		if idx < 0 {
			break
		}
		start := i + idx
		end := start
		for end < len(body) && !strings.ContainsRune(" \t\r\n\"'<>)]", rune(body[end])) {
			end++
		}
		url := strings.TrimRight(body[start:end], ".,;")
		if strings.Contains(strings.ToLower(url), "unsub") {
			links = append(links, url)
		}
		i = end
	}
	return links
}

// extractBody extracts plain text from the message payload, recursing into
// multipart messages.
func extractBody(payload *gmail.MessagePart) string {
	if payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(decoded)
		}
	}
	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				return string(decoded)
			}
		}
		if len(part.Parts) > 0 {
			if body := extractBody(part); body != "" {
				return body
			}
		}
	}
	for _, part := range payload.Parts {
		if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				return string(decoded)
			}
		}
	}
	return ""
}

// parseDate tries the date formats seen in the wild.
func parseDate(s string) (time.Time, error) {
	formats := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
		time.RFC822Z,
		time.RFC822,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
