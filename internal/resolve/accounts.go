package resolve

import (
	"strings"

	"github.com/valet-hq/valet/internal/mailbox"
)

// Account matches a requested account token against the configured accounts,
// case-insensitively, by id or address. There is no fallback to a default
// account: absence or mismatch is an error naming the valid set, because a
// destructive email action must never run against a guessed mailbox.
func Account(accounts []mailbox.Account, requested string) (mailbox.Account, error) {
	requested = strings.TrimSpace(requested)

	valid := make([]string, 0, len(accounts))
	for _, a := range accounts {
		valid = append(valid, a.ID)
	}

	if requested == "" {
		if len(accounts) == 1 {
			return accounts[0], nil
		}
		return mailbox.Account{}, &ResolutionError{Kind: KindUnknownAccount, Account: requested, Valid: valid}
	}

	for _, a := range accounts {
		if strings.EqualFold(a.ID, requested) || strings.EqualFold(a.Email, requested) {
			return a, nil
		}
	}
	return mailbox.Account{}, &ResolutionError{Kind: KindUnknownAccount, Account: requested, Valid: valid}
}
