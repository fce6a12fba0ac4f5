// Package mailbox defines the email transport interface the core consumes,
// and a Gmail-backed implementation. Sequence numbers are session-scoped
// integer positions, not stable cross-session ids.
package mailbox

import (
	"context"
	"time"

	"github.com/valet-hq/valet/internal/core"
)

// Account is a configured email account.
type Account struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// EmailSummary is what list and search operations return per message.
type EmailSummary struct {
	SeqNum  int       `json:"seq_num"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Snippet string    `json:"snippet"`
	Date    time.Time `json:"date"`
	Unread  bool      `json:"unread"`
}

// SendRequest describes an outbound email.
type SendRequest struct {
	AccountID string
	To        string
	Subject   string
	Body      string
}

// UnsubscribeDetails carries what a mailbox knows about opting out of a
// sender's list.
type UnsubscribeDetails struct {
	Links           []string `json:"links"`
	ListUnsubscribe string   `json:"list_unsubscribe"`
	From            string   `json:"from"`
	Subject         string   `json:"subject"`
}

// Mailbox is the transport interface. Implementations own the mapping from
// session-scoped sequence numbers to whatever the backing protocol uses.
type Mailbox interface {
	// Accounts lists the configured accounts.
	Accounts() []Account

	// SendEmail sends a message from the given account.
	SendEmail(ctx context.Context, req SendRequest) error

	// RecentEmails returns the newest messages, most recent first,
	// assigning session sequence numbers.
	RecentEmails(ctx context.Context, accountID string, limit int) ([]EmailSummary, error)

	// SearchSequenceNumbers searches the account and returns sequence
	// numbers ordered by relevance, most relevant first.
	SearchSequenceNumbers(ctx context.Context, accountID string, criteria core.SearchCriteria, limit int) ([]int, error)

	// MarkRead, MarkUnread and MarkSpam flag a message by sequence number.
	MarkRead(ctx context.Context, accountID string, seq int) error
	MarkUnread(ctx context.Context, accountID string, seq int) error
	MarkSpam(ctx context.Context, accountID string, seq int) error

	// DeleteEmail moves a message to trash.
	DeleteEmail(ctx context.Context, accountID string, seq int) error

	// MoveEmail moves a message into a folder/label.
	MoveEmail(ctx context.Context, accountID string, seq int, folder string) error

	// UnsubscribeInfo extracts unsubscribe options from a message.
	UnsubscribeInfo(ctx context.Context, accountID string, seq int) (*UnsubscribeDetails, error)
}
