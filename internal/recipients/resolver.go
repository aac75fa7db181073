package recipients

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
	"github.com/unclebandit/mailqueue-backend/internal/model"
)

type Source string

const (
	SourceScan  Source = "scan"
	SourcePaste Source = "paste"
)

// Request selects where recipients come from. Text holds one address per line
// for SourcePaste.
type Request struct {
	Source Source
	Text   string
}

// SubscriberLookup is the part of the subscriber store the resolver needs.
type SubscriberLookup interface {
	ListSubscribed(ctx context.Context) ([]string, error)
	UnsubscribedAmong(ctx context.Context, emails []string) (map[string]bool, error)
}

type Resolver struct {
	Subscribers SubscriberLookup
}

func NewResolver(subs SubscriberLookup) *Resolver {
	return &Resolver{Subscribers: subs}
}

var emailPattern = regexp.MustCompile(`^[a-z0-9.!#$%&'*+/=?^_{|}~-]+@[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)+$`)

// Normalize trims and lower-cases an address and reports whether it is a
// syntactically valid address within the RFC 5321 length bound.
func Normalize(raw string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(raw))
	if e == "" || len(e) > model.MaxEmailLength {
		return "", false
	}
	if !emailPattern.MatchString(e) {
		return "", false
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", false
	}
	return e, true
}

// Resolve returns the deduplicated, validated, unsubscribe-filtered address
// list in first-seen order. An empty result is ErrNoRecipients.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]string, error) {
	var raw []string
	switch req.Source {
	case SourceScan:
		subs, err := r.Subscribers.ListSubscribed(ctx)
		if err != nil {
			return nil, fmt.Errorf("list subscribers: %w", err)
		}
		raw = subs
	case SourcePaste:
		raw = strings.Split(strings.ReplaceAll(req.Text, "\r\n", "\n"), "\n")
	default:
		return nil, appErrors.NewValidation("source", "must be scan or paste")
	}

	seen := make(map[string]struct{}, len(raw))
	emails := make([]string, 0, len(raw))
	for _, line := range raw {
		e, ok := Normalize(line)
		if !ok {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		emails = append(emails, e)
	}

	if len(emails) > 0 {
		unsub, err := r.Subscribers.UnsubscribedAmong(ctx, emails)
		if err != nil {
			return nil, fmt.Errorf("filter unsubscribed: %w", err)
		}
		kept := emails[:0]
		for _, e := range emails {
			if !unsub[e] {
				kept = append(kept, e)
			}
		}
		emails = kept
	}

	if len(emails) == 0 {
		return nil, appErrors.ErrNoRecipients
	}
	return emails, nil
}
