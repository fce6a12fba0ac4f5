// Package digest builds the daily morning summary: unread mail per account
// and upcoming reminders, delivered over the notification channel.
package digest

import (
	"context"
	"fmt"
	"strings"

	"github.com/valet-hq/valet/internal/logging"
	"github.com/valet-hq/valet/internal/mailbox"
	"github.com/valet-hq/valet/internal/notify"
	"github.com/valet-hq/valet/internal/reminders"
)

const digestBatch = 10

// Builder assembles and delivers the digest.
type Builder struct {
	mail      mailbox.Mailbox
	reminders *reminders.Store
	notifier  notify.Notifier
	owner     string
}

// NewBuilder creates a digest builder.
func NewBuilder(mail mailbox.Mailbox, rem *reminders.Store, notifier notify.Notifier, owner string) *Builder {
	return &Builder{mail: mail, reminders: rem, notifier: notifier, owner: owner}
}

// Deliver builds today's digest and sends it to the owner. An account that
// fails to list is reported in the digest, not fatal to it.
func (b *Builder) Deliver(ctx context.Context) error {
	if b.notifier == nil || b.owner == "" {
		return fmt.Errorf("no digest target configured")
	}

	var sb strings.Builder
	sb.WriteString("Good morning. ")

	if b.mail != nil {
		for _, account := range b.mail.Accounts() {
			emails, err := b.mail.RecentEmails(ctx, account.ID, digestBatch)
			if err != nil {
				logging.Warn("digest list %s: %v", account.ID, err)
				fmt.Fprintf(&sb, "%s: couldn't check. ", account.ID)
				continue
			}
			unread := 0
			for _, e := range emails {
				if e.Unread {
					unread++
				}
			}
			fmt.Fprintf(&sb, "%s: %d unread. ", account.ID, unread)
		}
	}

	if b.reminders != nil {
		pending, err := b.reminders.PendingReminders()
		if err != nil {
			logging.Warn("digest reminders: %v", err)
		} else if len(pending) > 0 {
			fmt.Fprintf(&sb, "%d reminders pending", len(pending))
			next := pending[0]
			fmt.Fprintf(&sb, ", next %q in %s.", next.Label, next.TimeUntil)
		} else {
			sb.WriteString("No reminders pending.")
		}
	}

	return b.notifier.Deliver(ctx, b.owner, sb.String())
}
