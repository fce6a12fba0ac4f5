package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/valet-hq/valet/internal/core"
)

type fakeSearcher struct {
	results  []int
	err      error
	criteria core.SearchCriteria
	calls    int
}

func (f *fakeSearcher) SearchSequenceNumbers(ctx context.Context, accountID string, criteria core.SearchCriteria, limit int) ([]int, error) {
	f.calls++
	f.criteria = criteria
	return f.results, f.err
}

func planWith(fields map[string]any) core.Plan {
	return core.Plan{Fields: fields}
}

func TestTargetDirectIdentifier(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   int
	}{
		{"emailId string", map[string]any{"emailId": "42"}, 42},
		{"email_id string", map[string]any{"email_id": "7"}, 7},
		{"uid", map[string]any{"uid": "3"}, 3},
		{"json number", map[string]any{"messageId": float64(12)}, 12},
		{"first key wins", map[string]any{"emailId": "5", "uid": "9"}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{}
			r := NewResolver(searcher)
			got, err := r.Target(context.Background(), "personal", planWith(tt.fields))
			if err != nil {
				t.Fatalf("Target: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
			if searcher.calls != 0 {
				t.Errorf("direct identifier should not search, got %d calls", searcher.calls)
			}
		})
	}
}

func TestTargetSearchTakesMostRelevant(t *testing.T) {
	searcher := &fakeSearcher{results: []int{42, 17, 3}}
	r := NewResolver(searcher)

	got, err := r.Target(context.Background(), "personal", planWith(map[string]any{"sender": "newsletter@example.com"}))
	if err != nil {
		t.Fatalf("Target: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want first result 42", got)
	}
	if searcher.criteria.Sender != "newsletter@example.com" {
		t.Errorf("criteria sender = %q", searcher.criteria.Sender)
	}
}

func TestTargetMissingIdentification(t *testing.T) {
	r := NewResolver(&fakeSearcher{})
	_, err := r.Target(context.Background(), "personal", planWith(map[string]any{"response": "sure thing"}))
	if !errors.Is(err, core.ErrMissingIdentification) {
		t.Fatalf("want ErrMissingIdentification, got %v", err)
	}
}

func TestTargetNoMatch(t *testing.T) {
	r := NewResolver(&fakeSearcher{results: nil})
	_, err := r.Target(context.Background(), "personal", planWith(map[string]any{"subject": "missing"}))
	if !errors.Is(err, core.ErrNoMatch) {
		t.Fatalf("want ErrNoMatch, got %v", err)
	}
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("want *ResolutionError, got %T", err)
	}
	if rerr.Criteria.Subject != "missing" {
		t.Errorf("error should carry criteria, got %s", rerr.Criteria)
	}
}

func TestTargetSearchError(t *testing.T) {
	boom := fmt.Errorf("imap timeout")
	r := NewResolver(&fakeSearcher{err: boom})
	_, err := r.Target(context.Background(), "personal", planWith(map[string]any{"subject": "x"}))
	if !errors.Is(err, boom) {
		t.Fatalf("search error should propagate, got %v", err)
	}
}

func TestCriteriaAliases(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   core.SearchCriteria
	}{
		{
			"canonical names",
			map[string]any{"subject": "hello", "sender": "a@b.c", "content": "lunch"},
			core.SearchCriteria{Subject: "hello", Sender: "a@b.c", Content: "lunch"},
		},
		{
			"aliases map to canonical",
			map[string]any{"subject_line": "hi", "from": "x@y.z", "keywords": "report"},
			core.SearchCriteria{Subject: "hi", Sender: "x@y.z", Content: "report"},
		},
		{
			"first writer wins per canonical",
			map[string]any{"subject": "first", "title": "second"},
			core.SearchCriteria{Subject: "first"},
		},
		{
			"response is never a criterion",
			map[string]any{},
			core.SearchCriteria{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Criteria(planWith(tt.fields))
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCriteriaFallbackClassification(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  core.SearchCriteria
	}{
		{"address is sender", "person@example.com", core.SearchCriteria{Sender: "person@example.com"}},
		{"sender-ish word", "the newsletter", core.SearchCriteria{Sender: "the newsletter"}},
		{"from prefix", "from amazon", core.SearchCriteria{Sender: "from amazon"}},
		{"subject-ish word", "urgent delivery", core.SearchCriteria{Subject: "urgent delivery"}},
		{"reply prefix", "Re: quarterly numbers", core.SearchCriteria{Subject: "Re: quarterly numbers"}},
		{"everything else is content", "that thing about the car", core.SearchCriteria{Content: "that thing about the car"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Criteria(planWith(map[string]any{"emailId": tt.value}))
			if got != tt.want {
				t.Errorf("classify(%q) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseStrictInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{" 7 ", 7, true},
		{"0", 0, true},
		{"42abc", 0, false},
		{"4.2", 0, false},
		{"-3", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseStrictInt(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseStrictInt(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
