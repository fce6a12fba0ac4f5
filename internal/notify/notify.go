// Package notify delivers short messages to the owner. The default
// implementation rides an email-to-SMS gateway: a message becomes an email
// to the carrier gateway address, which forwards it as a text.
package notify

import (
	"context"
	"fmt"

	"github.com/valet-hq/valet/internal/logging"
	"github.com/valet-hq/valet/internal/mailbox"
)

// Notifier delivers a message to a target.
type Notifier interface {
	Deliver(ctx context.Context, target, message string) error
}

// SMSGateway sends notifications by emailing the carrier's SMS gateway.
type SMSGateway struct {
	mail      mailbox.Mailbox
	accountID string
}

// NewSMSGateway creates a gateway notifier sending from the given account.
func NewSMSGateway(mail mailbox.Mailbox, accountID string) *SMSGateway {
	return &SMSGateway{mail: mail, accountID: accountID}
}

// Deliver emails the message to the gateway address. SMS gateways ignore
// subjects, so none is set.
func (g *SMSGateway) Deliver(ctx context.Context, target, message string) error {
	if target == "" {
		return fmt.Errorf("no notification target")
	}
	err := g.mail.SendEmail(ctx, mailbox.SendRequest{
		AccountID: g.accountID,
		To:        target,
		Body:      message,
	})
	if err != nil {
		return fmt.Errorf("gateway delivery: %w", err)
	}
	logging.Debug("delivered notification to %s", target)
	return nil
}

// Console prints notifications to the log. Used by the debug REPL and in
// degraded setups with no mailbox.
type Console struct{}

// Deliver logs the message.
func (Console) Deliver(ctx context.Context, target, message string) error {
	logging.Info("notify %s: %s", target, message)
	return nil
}
