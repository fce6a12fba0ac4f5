// Package inbox polls configured accounts for unread mail from approved
// senders and routes each message through the pipeline under the email
// permission context.
package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/logging"
	"github.com/valet-hq/valet/internal/mailbox"
	"github.com/valet-hq/valet/internal/pipeline"
)

const pollBatch = 10

// Poller drives one poll pass per invocation.
type Poller struct {
	mail           mailbox.Mailbox
	pipe           *pipeline.Pipeline
	allowedSenders map[string]bool

	// seen tracks processed messages per account so a slow mark-read does
	// not double-process across passes. Entries are evicted once the
	// message drops out of the recent window, keeping the map bounded by
	// the window size.
	seen map[string]bool
}

// NewPoller creates a poller. Only mail from allowedSenders is routed.
func NewPoller(mail mailbox.Mailbox, pipe *pipeline.Pipeline, allowedSenders []string) *Poller {
	allowed := make(map[string]bool, len(allowedSenders))
	for _, s := range allowedSenders {
		allowed[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return &Poller{
		mail:           mail,
		pipe:           pipe,
		allowedSenders: allowed,
		seen:           make(map[string]bool),
	}
}

// Poll runs one pass over every account.
func (p *Poller) Poll(ctx context.Context) error {
	var firstErr error
	for _, account := range p.mail.Accounts() {
		if err := p.pollAccount(ctx, account); err != nil {
			logging.Warn("poll %s: %v", account.ID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Poller) pollAccount(ctx context.Context, account mailbox.Account) error {
	emails, err := p.mail.RecentEmails(ctx, account.ID, pollBatch)
	if err != nil {
		return err
	}

	current := make(map[string]bool, len(emails))
	for _, e := range emails {
		if !e.Unread {
			continue
		}
		sender := normalizeAddress(e.From)
		if !p.allowedSenders[sender] {
			continue
		}
		key := fmt.Sprintf("%s/%s/%s", account.ID, sender, e.Subject)
		current[key] = true
		if p.seen[key] {
			continue
		}
		p.seen[key] = true

		text := fmt.Sprintf("Inbound email on %s from %s\nSubject: %s\n\n%s",
			account.ID, e.From, e.Subject, e.Snippet)
		_, err := p.pipe.Handle(ctx, core.InboundMessage{
			Channel:   core.ChannelEmail,
			Sender:    sender,
			Text:      text,
			Scope:     core.ScopeEmail,
			Timestamp: time.Now(),
		})
		if err != nil {
			return err
		}
		if err := p.mail.MarkRead(ctx, account.ID, e.SeqNum); err != nil {
			logging.Warn("mark read %s #%d: %v", account.ID, e.SeqNum, err)
		}
	}

	// A message no longer unread in the window cannot be re-processed, so
	// its entry has done its job.
	prefix := account.ID + "/"
	for key := range p.seen {
		if strings.HasPrefix(key, prefix) && !current[key] {
			delete(p.seen, key)
		}
	}
	return nil
}

// normalizeAddress extracts the bare address from a "Name <addr>" header.
func normalizeAddress(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.LastIndex(from, "<"); i >= 0 {
		from = strings.TrimRight(from[i+1:], ">")
	}
	return strings.ToLower(strings.TrimSpace(from))
}
