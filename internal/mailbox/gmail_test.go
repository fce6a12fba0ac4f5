package mailbox

import (
	"testing"
	"time"

	"github.com/valet-hq/valet/internal/core"
)

func newSessionOnly() *Gmail {
	return &Gmail{session: make(map[string][]string)}
}

func TestSessionSequenceNumbers(t *testing.T) {
	g := newSessionOnly()

	seqs := g.assign("personal", []string{"msg-a", "msg-b", "msg-c"})
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Fatalf("seqs = %v", seqs)
	}

	t.Run("known ids keep their numbers", func(t *testing.T) {
		again := g.assign("personal", []string{"msg-b", "msg-d"})
		if again[0] != 2 {
			t.Errorf("msg-b renumbered to %d", again[0])
		}
		if again[1] != 4 {
			t.Errorf("new id got %d, want 4", again[1])
		}
	})

	t.Run("accounts are isolated", func(t *testing.T) {
		other := g.assign("work", []string{"msg-a"})
		if other[0] != 1 {
			t.Errorf("work session should start at 1, got %d", other[0])
		}
	})

	t.Run("translate back", func(t *testing.T) {
		id, err := g.messageID("personal", 2)
		if err != nil {
			t.Fatal(err)
		}
		if id != "msg-b" {
			t.Errorf("id = %q", id)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		if _, err := g.messageID("personal", 99); err == nil {
			t.Error("want error for unknown sequence number")
		}
		if _, err := g.messageID("personal", 0); err == nil {
			t.Error("want error for zero")
		}
	})
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name string
		c    core.SearchCriteria
		want string
	}{
		{"sender only", core.SearchCriteria{Sender: "a@b.c"}, "from:(a@b.c)"},
		{"subject only", core.SearchCriteria{Subject: "invoice"}, "subject:(invoice)"},
		{"content quoted", core.SearchCriteria{Content: "project x"}, `"project x"`},
		{
			"all three",
			core.SearchCriteria{Sender: "a@b.c", Subject: "hi", Content: "lunch"},
			`from:(a@b.c) subject:(hi) "lunch"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.c); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnsubscribeLinks(t *testing.T) {
	body := `Hello!
Click https://news.example.com/unsubscribe?u=123 to opt out.
More at https://example.com/home and http://tracker.example.net/unsub/abc.
`
	links := unsubscribeLinks(body)
	if len(links) != 2 {
		t.Fatalf("links = %v", links)
	}
	if links[0] != "https://news.example.com/unsubscribe?u=123" {
		t.Errorf("first link = %q", links[0])
	}
	if links[1] != "http://tracker.example.net/unsub/abc" {
		t.Errorf("second link = %q", links[1])
	}
}

func TestParseDate(t *testing.T) {
	inputs := []string{
		"Mon, 24 Aug 2026 09:00:00 +0000",
		"24 Aug 2026 09:00:00 +0000",
	}
	for _, in := range inputs {
		got, err := parseDate(in)
		if err != nil {
			t.Errorf("parseDate(%q): %v", in, err)
			continue
		}
		want := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("parseDate(%q) = %s", in, got)
		}
	}

	if _, err := parseDate("not a date"); err == nil {
		t.Error("want error for garbage")
	}
}
