// Package resolve turns a loosely-typed plan into exactly one addressable
// email, or fails with a typed resolution error. Plans arrive from a
// non-deterministic reasoning step that uses inconsistent field names, so the
// resolver is liberal in what it accepts but strict in refusing to act on
// ambiguous or absent signal.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/valet-hq/valet/internal/core"
)

// Searcher is the search collaborator the resolver queries. Results are
// sequence numbers ordered by relevance, most relevant first.
type Searcher interface {
	SearchSequenceNumbers(ctx context.Context, accountID string, criteria core.SearchCriteria, limit int) ([]int, error)
}

// ErrorKind classifies resolution failures.
type ErrorKind int

const (
	// KindMissingIdentification means the plan carried no usable
	// identifying fields at all.
	KindMissingIdentification ErrorKind = iota

	// KindNoMatch means a search ran but returned zero results.
	KindNoMatch

	// KindUnknownAccount means the requested account token matched no
	// configured account.
	KindUnknownAccount
)

// ResolutionError is the typed failure for identifier and account
// resolution. Callers branch on Kind (or errors.Is against the core
// sentinels) rather than parsing messages.
type ResolutionError struct {
	Kind     ErrorKind
	Criteria core.SearchCriteria
	Account  string
	Valid    []string
}

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case KindNoMatch:
		return fmt.Sprintf("no email matched criteria: %s", e.Criteria)
	case KindUnknownAccount:
		return fmt.Sprintf("unknown account %q, valid accounts: %s", e.Account, strings.Join(e.Valid, ", "))
	default:
		return "plan contains no fields that identify an email"
	}
}

// Unwrap maps the kind onto the matching core sentinel so callers can use
// errors.Is without importing this package's kinds.
func (e *ResolutionError) Unwrap() error {
	switch e.Kind {
	case KindNoMatch:
		return core.ErrNoMatch
	case KindUnknownAccount:
		return core.ErrUnknownAccount
	default:
		return core.ErrMissingIdentification
	}
}

// directIDKeys are scanned in order for an explicit identifier. A value that
// parses as a strict decimal integer short-circuits resolution; non-integer
// values become fallback strings for heuristic classification.
var directIDKeys = []string{"emailId", "email_id", "uid", "messageId", "message_id"}

// criteriaAliases maps plan field names onto the canonical criteria, scanned
// in order with first-writer-wins per canonical name. Free-text reply fields
// are deliberately not listed: the user-facing response must never become a
// search term.
var criteriaAliases = []struct {
	key       string
	canonical string
}{
	{"subject", "subject"},
	{"subject_line", "subject"},
	{"subjectLine", "subject"},
	{"emailSubject", "subject"},
	{"email_subject", "subject"},
	{"title", "subject"},
	{"sender", "sender"},
	{"from", "sender"},
	{"sender_email", "sender"},
	{"senderEmail", "sender"},
	{"from_address", "sender"},
	{"fromAddress", "sender"},
	{"content", "content"},
	{"body", "content"},
	{"text", "content"},
	{"keywords", "content"},
	{"search", "content"},
	{"query", "content"},
}

// searchLimit caps how many sequence numbers a search may return. The
// resolver only ever uses the first.
const searchLimit = 5

// Resolver resolves plans to email sequence numbers.
type Resolver struct {
	searcher Searcher
}

// NewResolver creates a resolver around a search collaborator.
func NewResolver(searcher Searcher) *Resolver {
	return &Resolver{searcher: searcher}
}

// Target resolves the plan to a single sequence number in the account's
// mailbox, or returns a *ResolutionError. A direct integer identifier wins
// without touching the search collaborator; otherwise criteria are derived
// from the plan and searched, taking the most relevant result.
func (r *Resolver) Target(ctx context.Context, accountID string, plan core.Plan) (int, error) {
	if seq, ok := directIdentifier(plan); ok {
		return seq, nil
	}

	criteria := Criteria(plan)
	if criteria.Empty() {
		return 0, &ResolutionError{Kind: KindMissingIdentification}
	}

	seqs, err := r.searcher.SearchSequenceNumbers(ctx, accountID, criteria, searchLimit)
	if err != nil {
		return 0, fmt.Errorf("email search failed: %w", err)
	}
	if len(seqs) == 0 {
		return 0, &ResolutionError{Kind: KindNoMatch, Criteria: criteria}
	}
	return seqs[0], nil
}

// directIdentifier scans the ordered identifier keys for a strict decimal
// integer. The first parse wins.
func directIdentifier(plan core.Plan) (int, bool) {
	for _, key := range directIDKeys {
		v := plan.String(key)
		if v == "" {
			// Models occasionally emit numeric ids as JSON numbers.
			if f, ok := plan.Fields[key].(float64); ok && f == float64(int(f)) && f >= 0 {
				return int(f), true
			}
			continue
		}
		if seq, ok := parseStrictInt(v); ok {
			return seq, true
		}
	}
	return 0, false
}

// Criteria derives search criteria from the plan: structured aliases first,
// then the fallback heuristic over non-integer identifier values when the
// aliases produced nothing.
func Criteria(plan core.Plan) core.SearchCriteria {
	var c core.SearchCriteria
	for _, alias := range criteriaAliases {
		v := plan.String(alias.key)
		if v == "" {
			continue
		}
		switch alias.canonical {
		case "subject":
			if c.Subject == "" {
				c.Subject = v
			}
		case "sender":
			if c.Sender == "" {
				c.Sender = v
			}
		case "content":
			if c.Content == "" {
				c.Content = v
			}
		}
	}
	if !c.Empty() {
		return c
	}

	// Fallback: the plan put something non-numeric in an identifier slot.
	// Classify the first such value.
	for _, key := range directIDKeys {
		v := plan.String(key)
		if v == "" {
			continue
		}
		if _, ok := parseStrictInt(v); ok {
			continue
		}
		return classifyFallback(v)
	}
	return c
}

// classifyFallback buckets a free-form identifier string into one criterion
// using ordered heuristics.
func classifyFallback(value string) core.SearchCriteria {
	lower := strings.ToLower(value)

	if strings.Contains(value, "@") {
		return core.SearchCriteria{Sender: value}
	}
	if looksLikeSender(lower) {
		return core.SearchCriteria{Sender: value}
	}
	if looksLikeSubject(lower) {
		return core.SearchCriteria{Subject: value}
	}
	return core.SearchCriteria{Content: value}
}

var senderWords = []string{"support", "team", "noreply", "no-reply", "newsletter", "notifications", "billing"}

func looksLikeSender(lower string) bool {
	if strings.HasPrefix(lower, "from ") || strings.HasPrefix(lower, "from:") {
		return true
	}
	for _, w := range senderWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

var subjectWords = []string{"urgent", "meeting", "invoice", "receipt", "reminder", "confirmation", "order"}

func looksLikeSubject(lower string) bool {
	if strings.HasPrefix(lower, "re:") || strings.HasPrefix(lower, "fwd:") || strings.HasPrefix(lower, "fw:") {
		return true
	}
	for _, w := range subjectWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// parseStrictInt parses a non-negative decimal integer. The entire trimmed
// string must be digits; "42abc" and "4.2" are not identifiers.
func parseStrictInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
