package vetting

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

// ErrNotConfigured is returned by lookups that have no credential.
var ErrNotConfigured = errors.New("lookup credential not configured")

// Outcome is a lookup's raw answer.
type Outcome int

const (
	OutcomeClean Outcome = iota
	OutcomeDetected
)

// Lookup is a remote reputation check for a URL.
type Lookup interface {
	Lookup(ctx context.Context, rawURL string) (Outcome, error)
	Configured() bool
}

// Normalize maps a lookup result to a vote. A missing credential counts as
// "no evidence of harm" and votes benign, unlike every other failure.
func Normalize(outcome Outcome, err error) Vote {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return VoteBenign
	case err != nil:
		return VoteError
	case outcome == OutcomeDetected:
		return VoteMalicious
	case outcome == OutcomeClean:
		return VoteBenign
	default:
		return VoteError
	}
}

// Signal is one external lookup with its time budget. Each call makes a
// single attempt; failures are never retried.
type Signal struct {
	Name    string
	Lookup  Lookup
	Timeout time.Duration
}

// Configured reports whether the lookup can run with real credentials.
func (s Signal) Configured() bool {
	return s.Lookup != nil && s.Lookup.Configured()
}

// Vote runs the lookup and normalizes its result.
func (s Signal) Vote(ctx context.Context, rawURL string) Vote {
	tag := strings.ToUpper(s.Name)
	if s.Lookup == nil {
		log.Printf("[%s] lookup disabled", tag)
		return VoteError
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	outcome, err := s.Lookup.Lookup(ctx, rawURL)
	vote := Normalize(outcome, err)
	switch {
	case errors.Is(err, ErrNotConfigured):
		log.Printf("[%s] not configured, treating %s as %s", tag, rawURL, vote)
	case err != nil:
		log.Printf("[%s] lookup failed for %s: %v", tag, rawURL, err)
	}
	return vote
}
