package resolve

import (
	"errors"
	"strings"
	"testing"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/mailbox"
)

func TestAccount(t *testing.T) {
	accounts := []mailbox.Account{
		{ID: "personal", Email: "me@example.com"},
		{ID: "work", Email: "me@company.com"},
	}

	t.Run("match by id", func(t *testing.T) {
		got, err := Account(accounts, "work")
		if err != nil {
			t.Fatalf("Account: %v", err)
		}
		if got.ID != "work" {
			t.Errorf("got %q", got.ID)
		}
	})

	t.Run("match by address", func(t *testing.T) {
		got, err := Account(accounts, "me@example.com")
		if err != nil {
			t.Fatalf("Account: %v", err)
		}
		if got.ID != "personal" {
			t.Errorf("got %q", got.ID)
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		got, err := Account(accounts, "WORK")
		if err != nil {
			t.Fatalf("Account: %v", err)
		}
		if got.ID != "work" {
			t.Errorf("got %q", got.ID)
		}
	})

	t.Run("no default among multiple accounts", func(t *testing.T) {
		_, err := Account(accounts, "")
		if !errors.Is(err, core.ErrUnknownAccount) {
			t.Fatalf("want ErrUnknownAccount, got %v", err)
		}
	})

	t.Run("unknown token names valid set", func(t *testing.T) {
		_, err := Account(accounts, "school")
		if !errors.Is(err, core.ErrUnknownAccount) {
			t.Fatalf("want ErrUnknownAccount, got %v", err)
		}
		msg := err.Error()
		if !strings.Contains(msg, "personal") || !strings.Contains(msg, "work") {
			t.Errorf("error should name valid accounts, got %q", msg)
		}
	})

	t.Run("single account accepts blank", func(t *testing.T) {
		got, err := Account(accounts[:1], "")
		if err != nil {
			t.Fatalf("Account: %v", err)
		}
		if got.ID != "personal" {
			t.Errorf("got %q", got.ID)
		}
	})
}
